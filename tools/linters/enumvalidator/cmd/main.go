package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"overflow.app/questions/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
