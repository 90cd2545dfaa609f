package yaegihost

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// topLevelNames extracts the identifiers a code fragment may have bound
// in the interpreter namespace. Fragments come in two shapes: full
// declarations (func, var, const, type) and REPL statement lists. Names
// that turn out block-scoped are pruned at the next snapshot, so over-
// collecting here is harmless.
func topLevelNames(code string) []string {
	fset := token.NewFileSet()
	if file, err := parser.ParseFile(fset, "repl.go", "package main\n"+code, 0); err == nil {
		return fileDeclNames(file)
	}
	file, err := parser.ParseFile(fset, "repl.go", "package main\nfunc _() {\n"+code+"\n}", 0)
	if err != nil {
		return nil
	}
	var names []string
	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.AssignStmt:
			if node.Tok != token.DEFINE {
				return true
			}
			for _, lhs := range node.Lhs {
				if id, ok := lhs.(*ast.Ident); ok && id.Name != "_" {
					names = append(names, id.Name)
				}
			}
		case *ast.DeclStmt:
			if gd, ok := node.Decl.(*ast.GenDecl); ok {
				names = append(names, genDeclNames(gd)...)
			}
		}
		return true
	})
	return names
}

func fileDeclNames(file *ast.File) []string {
	var names []string
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.Name != "_" {
				names = append(names, d.Name.Name)
			}
		case *ast.GenDecl:
			names = append(names, genDeclNames(d)...)
		}
	}
	return names
}

func genDeclNames(d *ast.GenDecl) []string {
	var names []string
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.ValueSpec:
			for _, id := range s.Names {
				if id.Name != "_" {
					names = append(names, id.Name)
				}
			}
		case *ast.TypeSpec:
			if s.Name.Name != "_" {
				names = append(names, s.Name.Name)
			}
		}
	}
	return names
}
