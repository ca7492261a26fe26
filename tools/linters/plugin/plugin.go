// Command plugin exposes the repository's analyzers to golangci-lint as a Go plugin.
package main

import (
	"golang.org/x/tools/go/analysis"

	"overflow.app/questions/tools/linters/enumvalidator"
)

func New(conf any) ([]*analysis.Analyzer, error) {
	return []*analysis.Analyzer{enumvalidator.Analyzer}, nil
}

// main is required for `go build ./...`; the package is loaded with -buildmode=plugin.
func main() {}
