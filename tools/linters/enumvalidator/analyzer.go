package enumvalidator

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

var Analyzer = &analysis.Analyzer{
	Name: "enumvalidator",
	Doc:  "checks that event type, outcome and field group values use defined constants, not string literals",
	Run:  run,
}

// Enum types whose values travel on the wire or label metrics. A typo in a
// literal would silently route an event to the unknown-type path.
var enumTypes = map[string]bool{
	"EventType":  true,
	"Outcome":    true,
	"FieldGroup": true,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			switch node := n.(type) {
			case *ast.AssignStmt:
				checkAssign(pass, node)
			case *ast.CompositeLit:
				checkComposite(pass, node)
			}
			return true
		})
	}
	return nil, nil
}

func checkAssign(pass *analysis.Pass, assign *ast.AssignStmt) {
	for i, lhs := range assign.Lhs {
		if i >= len(assign.Rhs) {
			continue
		}
		sel, ok := lhs.(*ast.SelectorExpr)
		if !ok {
			continue
		}
		if isEnum(pass.TypesInfo.TypeOf(sel)) && isStringLiteral(assign.Rhs[i]) {
			pass.Reportf(assign.Pos(),
				"enum field %s assigned string literal; use defined constant instead",
				sel.Sel.Name)
		}
	}
}

func checkComposite(pass *analysis.Pass, lit *ast.CompositeLit) {
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		if isEnum(pass.TypesInfo.TypeOf(kv.Value)) && isStringLiteral(kv.Value) {
			pass.Reportf(kv.Pos(),
				"enum field %s set from string literal; use defined constant instead",
				key.Name)
		}
	}
}

func isEnum(t types.Type) bool {
	if t == nil {
		return false
	}
	named, ok := t.(*types.Named)
	return ok && enumTypes[named.Obj().Name()]
}

func isStringLiteral(expr ast.Expr) bool {
	lit, ok := expr.(*ast.BasicLit)
	return ok && lit.Kind == token.STRING
}
