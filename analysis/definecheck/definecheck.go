// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package definecheck provides an analyzer that checks that bigpregel
// jobs are defined during package initialization.
package definecheck

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var Analyzer = &analysis.Analyzer{
	Name: "bigpregel_define",
	Doc: `check that bigpregel jobs are defined at initialization

Remote workers locate a job by the name it was registered with through
exec.Define, so every binary must register the same jobs, in the same
way, before a session starts. The analyzer reports calls to exec.Define
that are made from within functions other than package init functions,
including function literals. Such registrations are either missed by
workers or panic when the function runs twice.`,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

const defineFullName = "github.com/grailbio/bigpregel/exec.Define"

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	inspect.WithStack([]ast.Node{&ast.CallExpr{}}, func(node ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			return true
		}
		call := node.(*ast.CallExpr)
		fn := callee(pass.TypesInfo, call)
		if fn == nil || fn.FullName() != defineFullName {
			return true
		}
		if name, ok := enclosingFunc(stack); ok {
			pass.ReportRangef(call, "bigpregel: exec.Define called from %s; jobs must be defined at package initialization", name)
		}
		return true
	})
	return nil, nil
}

// callee returns the function called by call, if it is a (possibly
// instantiated) package-level function.
func callee(info *types.Info, call *ast.CallExpr) *types.Func {
	fun := call.Fun
unwrap:
	for {
		switch expr := fun.(type) {
		case *ast.ParenExpr:
			fun = expr.X
		case *ast.IndexExpr:
			fun = expr.X
		case *ast.IndexListExpr:
			fun = expr.X
		default:
			break unwrap
		}
	}
	var ident *ast.Ident
	switch expr := fun.(type) {
	case *ast.Ident:
		ident = expr
	case *ast.SelectorExpr:
		ident = expr.Sel
	default:
		return nil
	}
	fn, _ := info.Uses[ident].(*types.Func)
	return fn
}

// enclosingFunc returns the name of the innermost function enclosing
// the last node of stack, and whether that function is one from which
// jobs may not be defined. Package init functions are allowed; any
// function literal is not, regardless of where it appears.
func enclosingFunc(stack []ast.Node) (string, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		switch fn := stack[i].(type) {
		case *ast.FuncLit:
			return "a function literal", true
		case *ast.FuncDecl:
			if fn.Recv == nil && fn.Name.Name == "init" {
				return "", false
			}
			return fn.Name.Name, true
		}
	}
	return "", false
}
