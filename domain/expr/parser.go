package expr

import (
	"fmt"
	"strconv"
	"strings"

	"pretenderdb/domain/attr"
)

// Boolean-returning functions usable wherever a condition is expected.
var booleanFunctions = map[string]int{
	"attribute_exists":     1,
	"attribute_not_exists": 1,
	"attribute_type":       2,
	"begins_with":          2,
	"contains":             2,
}

// Value-returning functions usable as comparison operands.
var operandFunctions = map[string]int{
	"size": 1,
}

// Functions allowed only on the right-hand side of a SET action.
var setFunctions = map[string]int{
	"if_not_exists": 2,
	"list_append":   2,
}

type parser struct {
	tokens []token
	pos    int
	env    *Env
}

func newParser(input string, env *Env) (*parser, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	return &parser{tokens: tokens, env: env}, nil
}

func (p *parser) peek() token       { return p.tokens[p.pos] }
func (p *parser) next() token       { t := p.tokens[p.pos]; p.pos++; return t }
func (p *parser) accept(k tokenKind) bool {
	if p.peek().kind == k {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != k {
		return token{}, fmt.Errorf("expected %s, got %s", what, t)
	}
	return t, nil
}

func (p *parser) atEnd() bool { return p.peek().kind == tokenEOF }

// ParseCondition parses a filter or condition expression.
func ParseCondition(input string, env *Env) (Condition, error) {
	p, err := newParser(input, env)
	if err != nil {
		return nil, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected token %s after expression", p.peek())
	}
	return cond, nil
}

func (p *parser) parseOr() (Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = OrCondition{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Condition, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = AndCondition{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Condition, error) {
	if p.accept(tokenNot) {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NotCondition{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Condition, error) {
	if p.peek().kind == tokenLParen {
		// Could be a parenthesized condition; operands never start with "(".
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, `")"`); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if p.peek().kind == tokenIdent {
		name := p.peek().text
		if arity, ok := booleanFunctions[name]; ok && p.tokens[p.pos+1].kind == tokenLParen {
			p.next()
			args, err := p.parseArgs(arity, name)
			if err != nil {
				return nil, err
			}
			return FuncCondition{Name: name, Args: args}, nil
		}
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch t := p.peek(); t.kind {
	case tokenEq, tokenNe, tokenLt, tokenLe, tokenGt, tokenGe:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return CompareCondition{Op: CompareOp(t.text), Left: left, Right: right}, nil
	case tokenBetween:
		p.next()
		lower, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenAnd, "AND"); err != nil {
			return nil, err
		}
		upper, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return BetweenCondition{Operand: left, Lower: lower, Upper: upper}, nil
	case tokenIn:
		p.next()
		if _, err := p.expect(tokenLParen, `"("`); err != nil {
			return nil, err
		}
		var list []Operand
		for {
			op, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			list = append(list, op)
			if !p.accept(tokenComma) {
				break
			}
		}
		if _, err := p.expect(tokenRParen, `")"`); err != nil {
			return nil, err
		}
		return InCondition{Operand: left, List: list}, nil
	default:
		return nil, fmt.Errorf("expected comparator, BETWEEN or IN, got %s", t)
	}
}

func (p *parser) parseArgs(arity int, fn string) ([]Operand, error) {
	if _, err := p.expect(tokenLParen, `"("`); err != nil {
		return nil, err
	}
	var args []Operand
	for {
		op, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		args = append(args, op)
		if !p.accept(tokenComma) {
			break
		}
	}
	if _, err := p.expect(tokenRParen, `")"`); err != nil {
		return nil, err
	}
	if len(args) != arity {
		return nil, fmt.Errorf("function %s takes %d arguments, got %d", fn, arity, len(args))
	}
	return args, nil
}

func (p *parser) parseOperand() (Operand, error) {
	switch t := p.peek(); t.kind {
	case tokenValuePlaceholder:
		p.next()
		v, err := p.env.ResolveValue(t.text)
		if err != nil {
			return nil, err
		}
		return ValueOperand{Placeholder: t.text, Value: v}, nil
	case tokenIdent:
		if arity, ok := operandFunctions[t.text]; ok && p.tokens[p.pos+1].kind == tokenLParen {
			name := t.text
			p.next()
			args, err := p.parseArgs(arity, name)
			if err != nil {
				return nil, err
			}
			return FuncOperand{Name: name, Args: args}, nil
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return PathOperand{Path: path}, nil
	case tokenNamePlaceholder:
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return PathOperand{Path: path}, nil
	default:
		return nil, fmt.Errorf("expected operand, got %s", t)
	}
}

// parsePath consumes a document path: segments joined by "." with optional
// "[index]" steps. Name placeholders resolve through the environment; bare
// identifiers must not collide with reserved words.
func (p *parser) parsePath() (attr.Path, error) {
	first, err := p.parsePathField()
	if err != nil {
		return nil, err
	}
	path := attr.Path{attr.FieldSegment(first)}
	for {
		switch p.peek().kind {
		case tokenDot:
			p.next()
			field, err := p.parsePathField()
			if err != nil {
				return nil, err
			}
			path = append(path, attr.FieldSegment(field))
		case tokenLBracket:
			p.next()
			idx, err := p.expect(tokenNumber, "list index")
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(idx.text)
			if err != nil {
				return nil, fmt.Errorf("invalid list index %q", idx.text)
			}
			if _, err := p.expect(tokenRBracket, `"]"`); err != nil {
				return nil, err
			}
			path = append(path, attr.IndexSegment(n))
		default:
			return path, nil
		}
	}
}

func (p *parser) parsePathField() (string, error) {
	switch t := p.next(); t.kind {
	case tokenIdent:
		if isReserved(t.text) {
			return "", fmt.Errorf("attribute name is a reserved keyword; reserved keyword: %s", t.text)
		}
		return t.text, nil
	case tokenNamePlaceholder:
		return p.env.ResolveName(t.text)
	default:
		return "", fmt.Errorf("expected attribute name, got %s", t)
	}
}

// ParseProjection parses a projection expression: comma-separated paths.
func ParseProjection(input string, env *Env) (*Projection, error) {
	p, err := newParser(input, env)
	if err != nil {
		return nil, err
	}
	var paths []attr.Path
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if !p.accept(tokenComma) {
			break
		}
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected token %s in projection expression", p.peek())
	}
	return &Projection{Paths: paths}, nil
}

// ParseUpdate parses an update expression: SET, REMOVE, ADD and DELETE
// clauses, each at most once, each holding comma-separated actions.
func ParseUpdate(input string, env *Env) (*UpdateExpression, error) {
	p, err := newParser(input, env)
	if err != nil {
		return nil, err
	}
	upd := &UpdateExpression{}
	seen := map[tokenKind]bool{}
	for !p.atEnd() {
		clause := p.next()
		switch clause.kind {
		case tokenSet, tokenRemove, tokenAdd, tokenDelete:
		default:
			return nil, fmt.Errorf("expected SET, REMOVE, ADD or DELETE, got %s", clause)
		}
		if seen[clause.kind] {
			return nil, fmt.Errorf("the %q section can only be used once in an update expression", strings.ToUpper(clause.text))
		}
		seen[clause.kind] = true
		for {
			var action UpdateAction
			switch clause.kind {
			case tokenSet:
				action, err = p.parseSetAction()
			case tokenRemove:
				action, err = p.parseRemoveAction()
			case tokenAdd:
				action, err = p.parseAddDeleteAction(ActionAdd)
			case tokenDelete:
				action, err = p.parseAddDeleteAction(ActionDelete)
			}
			if err != nil {
				return nil, err
			}
			upd.Actions = append(upd.Actions, action)
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if len(upd.Actions) == 0 {
		return nil, fmt.Errorf("update expression is empty")
	}
	if err := checkOverlappingPaths(upd.Actions); err != nil {
		return nil, err
	}
	return upd, nil
}

func (p *parser) parseSetAction() (UpdateAction, error) {
	path, err := p.parsePath()
	if err != nil {
		return UpdateAction{}, err
	}
	if _, err := p.expect(tokenEq, `"="`); err != nil {
		return UpdateAction{}, err
	}
	operand, err := p.parseSetOperand()
	if err != nil {
		return UpdateAction{}, err
	}
	return UpdateAction{Kind: ActionSet, Path: path, Value: operand}, nil
}

func (p *parser) parseSetOperand() (Operand, error) {
	left, err := p.parseSetTerm()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokenPlus, tokenMinus:
		plus := p.next().kind == tokenPlus
		right, err := p.parseSetTerm()
		if err != nil {
			return nil, err
		}
		return ArithmeticOperand{Plus: plus, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseSetTerm() (Operand, error) {
	if t := p.peek(); t.kind == tokenIdent {
		if arity, ok := setFunctions[t.text]; ok && p.tokens[p.pos+1].kind == tokenLParen {
			name := t.text
			p.next()
			if _, err := p.expect(tokenLParen, `"("`); err != nil {
				return nil, err
			}
			var args []Operand
			for {
				var arg Operand
				var err error
				if name == "if_not_exists" && len(args) == 0 {
					// First argument must be a path.
					path, perr := p.parsePath()
					if perr != nil {
						return nil, perr
					}
					arg = PathOperand{Path: path}
				} else {
					arg, err = p.parseSetOperand()
					if err != nil {
						return nil, err
					}
				}
				args = append(args, arg)
				if !p.accept(tokenComma) {
					break
				}
			}
			if _, err := p.expect(tokenRParen, `")"`); err != nil {
				return nil, err
			}
			if len(args) != arity {
				return nil, fmt.Errorf("function %s takes %d arguments, got %d", name, arity, len(args))
			}
			return FuncOperand{Name: name, Args: args}, nil
		}
	}
	return p.parseOperand()
}

func (p *parser) parseRemoveAction() (UpdateAction, error) {
	path, err := p.parsePath()
	if err != nil {
		return UpdateAction{}, err
	}
	return UpdateAction{Kind: ActionRemove, Path: path}, nil
}

func (p *parser) parseAddDeleteAction(kind UpdateActionKind) (UpdateAction, error) {
	path, err := p.parsePath()
	if err != nil {
		return UpdateAction{}, err
	}
	t, err := p.expect(tokenValuePlaceholder, "expression attribute value")
	if err != nil {
		return UpdateAction{}, err
	}
	v, err := p.env.ResolveValue(t.text)
	if err != nil {
		return UpdateAction{}, err
	}
	return UpdateAction{Kind: kind, Path: path, Value: ValueOperand{Placeholder: t.text, Value: v}}, nil
}

// checkOverlappingPaths rejects two actions targeting the same path or a
// path nested under another action's path.
func checkOverlappingPaths(actions []UpdateAction) error {
	for i := range actions {
		for j := i + 1; j < len(actions); j++ {
			a, b := actions[i].Path.String(), actions[j].Path.String()
			if a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".") ||
				strings.HasPrefix(a, b+"[") || strings.HasPrefix(b, a+"[") {
				return fmt.Errorf("two document paths overlap with each other; path one: [%s], path two: [%s]", a, b)
			}
		}
	}
	return nil
}
