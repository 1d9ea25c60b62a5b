package solver

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
)

// Derived-variable expressions use Go arithmetic syntax over existing
// variable names and numeric literals: +, -, *, /, unary minus, parens,
// and the functions abs, sqrt, exp, log. Evaluation is differentiable:
// partials propagate through every operation.

type exprNode interface {
	eval(vars map[string]value, nFree int) (value, error)
}

// parseExpr parses an expression with the standard library Go parser
// and lowers the AST to a differentiable node tree.
func parseExpr(src string) (exprNode, error) {
	tree, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("solver: parse expression %q: %w", src, err)
	}
	return lower(tree)
}

func lower(e ast.Expr) (exprNode, error) {
	switch n := e.(type) {
	case *ast.Ident:
		return identNode{name: n.Name}, nil
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("solver: unsupported literal %s", n.Value)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("solver: bad numeric literal %s: %w", n.Value, err)
		}
		return litNode{v: v}, nil
	case *ast.ParenExpr:
		return lower(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.SUB {
			return nil, fmt.Errorf("solver: unsupported unary operator %s", n.Op)
		}
		x, err := lower(n.X)
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	case *ast.BinaryExpr:
		x, err := lower(n.X)
		if err != nil {
			return nil, err
		}
		y, err := lower(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
			return binNode{op: n.Op, x: x, y: y}, nil
		default:
			return nil, fmt.Errorf("solver: unsupported operator %s", n.Op)
		}
	case *ast.CallExpr:
		ident, ok := n.Fun.(*ast.Ident)
		if !ok || len(n.Args) != 1 {
			return nil, fmt.Errorf("solver: unsupported call expression")
		}
		arg, err := lower(n.Args[0])
		if err != nil {
			return nil, err
		}
		if _, ok := unaryFuncs[ident.Name]; !ok {
			return nil, fmt.Errorf("solver: unknown function %q", ident.Name)
		}
		return callNode{name: ident.Name, x: arg}, nil
	default:
		return nil, fmt.Errorf("solver: unsupported expression node %T", e)
	}
}

type identNode struct{ name string }

func (n identNode) eval(vars map[string]value, _ int) (value, error) {
	v, ok := vars[n.name]
	if !ok {
		return value{}, fmt.Errorf("unknown variable %q", n.name)
	}
	return v, nil
}

type litNode struct{ v float64 }

func (n litNode) eval(_ map[string]value, _ int) (value, error) {
	return value{v: []float64{n.v}, g: make([][]float64, 1)}, nil
}

type negNode struct{ x exprNode }

func (n negNode) eval(vars map[string]value, nFree int) (value, error) {
	xv, err := n.x.eval(vars, nFree)
	if err != nil {
		return value{}, err
	}
	out := value{v: make([]float64, xv.dim()), g: make([][]float64, xv.dim())}
	for i := range xv.v {
		out.v[i] = -xv.v[i]
		out.g[i] = scaleRow(xv.g[i], -1, nFree)
	}
	return out, nil
}

type binNode struct {
	op   token.Token
	x, y exprNode
}

func (n binNode) eval(vars map[string]value, nFree int) (value, error) {
	xv, err := n.x.eval(vars, nFree)
	if err != nil {
		return value{}, err
	}
	yv, err := n.y.eval(vars, nFree)
	if err != nil {
		return value{}, err
	}

	dim := xv.dim()
	if yv.dim() > dim {
		dim = yv.dim()
	}
	if xv, err = broadcast(xv, dim); err != nil {
		return value{}, err
	}
	if yv, err = broadcast(yv, dim); err != nil {
		return value{}, err
	}

	out := value{v: make([]float64, dim), g: make([][]float64, dim)}
	for i := 0; i < dim; i++ {
		a, b := xv.v[i], yv.v[i]
		ga, gb := xv.g[i], yv.g[i]
		switch n.op {
		case token.ADD:
			out.v[i] = a + b
			out.g[i] = combineRows(ga, 1, gb, 1, nFree)
		case token.SUB:
			out.v[i] = a - b
			out.g[i] = combineRows(ga, 1, gb, -1, nFree)
		case token.MUL:
			out.v[i] = a * b
			out.g[i] = combineRows(ga, b, gb, a, nFree)
		case token.QUO:
			if b == 0 {
				return value{}, fmt.Errorf("division by zero")
			}
			out.v[i] = a / b
			out.g[i] = combineRows(ga, 1/b, gb, -a/(b*b), nFree)
		}
	}
	return out, nil
}

var unaryFuncs = map[string]struct {
	f  func(float64) float64
	df func(float64) float64
}{
	"abs": {math.Abs, func(x float64) float64 {
		if x < 0 {
			return -1
		}
		return 1
	}},
	"sqrt": {math.Sqrt, func(x float64) float64 { return 0.5 / math.Sqrt(x) }},
	"exp":  {math.Exp, math.Exp},
	"log":  {math.Log, func(x float64) float64 { return 1 / x }},
}

type callNode struct {
	name string
	x    exprNode
}

func (n callNode) eval(vars map[string]value, nFree int) (value, error) {
	xv, err := n.x.eval(vars, nFree)
	if err != nil {
		return value{}, err
	}
	fn := unaryFuncs[n.name]
	out := value{v: make([]float64, xv.dim()), g: make([][]float64, xv.dim())}
	for i := range xv.v {
		out.v[i] = fn.f(xv.v[i])
		out.g[i] = scaleRow(xv.g[i], fn.df(xv.v[i]), nFree)
	}
	return out, nil
}

// scaleRow returns k times a gradient row; nil rows stay nil (zero).
func scaleRow(row []float64, k float64, nFree int) []float64 {
	if row == nil {
		return nil
	}
	out := make([]float64, nFree)
	for j, v := range row {
		out[j] = k * v
	}
	return out
}

// combineRows returns ka*a + kb*b over gradient rows, treating nil as
// zero.
func combineRows(a []float64, ka float64, b []float64, kb float64, nFree int) []float64 {
	if a == nil && b == nil {
		return nil
	}
	out := make([]float64, nFree)
	for j := range out {
		if a != nil {
			out[j] += ka * a[j]
		}
		if b != nil {
			out[j] += kb * b[j]
		}
	}
	return out
}
