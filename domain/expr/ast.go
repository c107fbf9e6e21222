package expr

import "pretenderdb/domain/attr"

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Operand is a value-producing expression node: a document path, a bound
// value placeholder, or a value-returning function.
type Operand interface {
	isOperand()
}

// PathOperand references a document path; name placeholders are resolved
// at parse time, so the path holds actual attribute names.
type PathOperand struct {
	Path attr.Path
}

// ValueOperand carries the bound value of a :placeholder.
type ValueOperand struct {
	Placeholder string
	Value       attr.Value
}

// FuncOperand is a value-returning function, such as size.
type FuncOperand struct {
	Name string
	Args []Operand
}

func (PathOperand) isOperand()  {}
func (ValueOperand) isOperand() {}
func (FuncOperand) isOperand()  {}

// Condition is a boolean expression node.
type Condition interface {
	isCondition()
}

// CompareCondition applies a comparison operator to two operands.
type CompareCondition struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

// BetweenCondition tests lower <= operand <= upper.
type BetweenCondition struct {
	Operand Operand
	Lower   Operand
	Upper   Operand
}

// InCondition tests membership of the operand in a literal list.
type InCondition struct {
	Operand Operand
	List    []Operand
}

// AndCondition is a conjunction.
type AndCondition struct {
	Left  Condition
	Right Condition
}

// OrCondition is a disjunction.
type OrCondition struct {
	Left  Condition
	Right Condition
}

// NotCondition is a negation.
type NotCondition struct {
	Inner Condition
}

// FuncCondition is a boolean-returning function call: attribute_exists,
// attribute_not_exists, attribute_type, begins_with, contains.
type FuncCondition struct {
	Name string
	Args []Operand
}

func (CompareCondition) isCondition() {}
func (BetweenCondition) isCondition() {}
func (InCondition) isCondition()      {}
func (AndCondition) isCondition()     {}
func (OrCondition) isCondition()      {}
func (NotCondition) isCondition()     {}
func (FuncCondition) isCondition()    {}

// UpdateAction is one clause action of an update expression.
type UpdateAction struct {
	Kind  UpdateActionKind
	Path  attr.Path
	Value Operand // SET operand, or the literal value for ADD/DELETE
}

// UpdateActionKind discriminates SET, REMOVE, ADD and DELETE actions.
type UpdateActionKind string

const (
	ActionSet    UpdateActionKind = "SET"
	ActionRemove UpdateActionKind = "REMOVE"
	ActionAdd    UpdateActionKind = "ADD"
	ActionDelete UpdateActionKind = "DELETE"
)

// ArithmeticOperand is a SET operand of the form a + b or a - b.
type ArithmeticOperand struct {
	Plus  bool
	Left  Operand
	Right Operand
}

func (ArithmeticOperand) isOperand() {}

// UpdateExpression is the parsed list of actions, in source order.
type UpdateExpression struct {
	Actions []UpdateAction
}

// Projection is the parsed list of projection paths.
type Projection struct {
	Paths []attr.Path
}
