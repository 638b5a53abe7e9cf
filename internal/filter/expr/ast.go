// Package expr implements the monitor condition expression language (spec
// §4.5.1): a small AND/OR/comparison grammar evaluated against a
// caller-supplied parameter map of (value, kind) pairs.
package expr

// Expr is a parsed expression tree node.
type Expr interface {
	isExpr()
}

// And is a short-circuiting logical conjunction, left to right.
type And struct {
	Left, Right Expr
}

// Or is a short-circuiting logical disjunction, left to right.
type Or struct {
	Left, Right Expr
}

// Op is a comparison/membership operator.
type Op string

const (
	OpEq         Op = "=="
	OpNe         Op = "!="
	OpGt         Op = ">"
	OpGe         Op = ">="
	OpLt         Op = "<"
	OpLe         Op = "<="
	OpContains   Op = "contains"
	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
)

// PathStep is one segment of a Lhs path: either a .Key field access or a
// [Index] array access.
type PathStep struct {
	Key      string
	Index    int
	IsIndex  bool
}

// Lhs is Name(.Key|[Index])*.
type Lhs struct {
	Name  string
	Steps []PathStep
}

// Literal is a parsed Rhs value: a scalar, or an array/object literal used
// with the contains operator.
type Literal struct {
	Kind  LiteralKind
	Str   string
	Num   float64
	Bool  bool
	Array []Literal
	Obj   map[string]Literal
}

// LiteralKind tags which field of Literal is populated.
type LiteralKind string

const (
	LiteralString LiteralKind = "string"
	LiteralNumber LiteralKind = "number"
	LiteralBool   LiteralKind = "bool"
	LiteralNull   LiteralKind = "null"
	LiteralArray  LiteralKind = "array"
	LiteralObject LiteralKind = "object"
)

// Condition is Lhs Op Rhs.
type Condition struct {
	Lhs Lhs
	Op  Op
	Rhs Literal
}

func (*And) isExpr()       {}
func (*Or) isExpr()        {}
func (*Condition) isExpr() {}
