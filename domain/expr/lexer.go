// Package expr implements the DynamoDB expression language: one grammar
// lexed and parsed into an AST, with context-gated compilation for key
// conditions, filters, conditions, updates and projections, and a
// recursive evaluator over (item, names, values).
package expr

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNamePlaceholder  // #name
	tokenValuePlaceholder // :name
	tokenNumber           // list index literal
	tokenDot
	tokenComma
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenEq
	tokenNe
	tokenLt
	tokenLe
	tokenGt
	tokenGe
	tokenPlus
	tokenMinus
	tokenAnd
	tokenOr
	tokenNot
	tokenBetween
	tokenIn
	tokenSet
	tokenRemove
	tokenAdd
	tokenDelete
)

var keywordTokens = map[string]tokenKind{
	"AND":     tokenAnd,
	"OR":      tokenOr,
	"NOT":     tokenNot,
	"BETWEEN": tokenBetween,
	"IN":      tokenIn,
	"SET":     tokenSet,
	"REMOVE":  tokenRemove,
	"ADD":     tokenAdd,
	"DELETE":  tokenDelete,
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokenEOF {
		return "<end of expression>"
	}
	return fmt.Sprintf("%q", t.text)
}

// lex splits an expression into tokens. Keywords are recognized
// case-insensitively; identifiers keep their spelling.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '.':
			tokens = append(tokens, token{tokenDot, ".", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		case c == '[':
			tokens = append(tokens, token{tokenLBracket, "[", i})
			i++
		case c == ']':
			tokens = append(tokens, token{tokenRBracket, "]", i})
			i++
		case c == '+':
			tokens = append(tokens, token{tokenPlus, "+", i})
			i++
		case c == '-':
			tokens = append(tokens, token{tokenMinus, "-", i})
			i++
		case c == '=':
			tokens = append(tokens, token{tokenEq, "=", i})
			i++
		case c == '<':
			switch {
			case strings.HasPrefix(input[i:], "<>"):
				tokens = append(tokens, token{tokenNe, "<>", i})
				i += 2
			case strings.HasPrefix(input[i:], "<="):
				tokens = append(tokens, token{tokenLe, "<=", i})
				i += 2
			default:
				tokens = append(tokens, token{tokenLt, "<", i})
				i++
			}
		case c == '>':
			if strings.HasPrefix(input[i:], ">=") {
				tokens = append(tokens, token{tokenGe, ">=", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokenGt, ">", i})
				i++
			}
		case c == '#' || c == ':':
			start := i
			i++
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("dangling %q at offset %d", string(c), start)
			}
			kind := tokenNamePlaceholder
			if c == ':' {
				kind = tokenValuePlaceholder
			}
			tokens = append(tokens, token{kind, input[start:i], start})
		case isDigit(c):
			start := i
			for i < len(input) && isDigit(input[i]) {
				i++
			}
			tokens = append(tokens, token{tokenNumber, input[start:i], start})
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			word := input[start:i]
			if kind, ok := keywordTokens[strings.ToUpper(word)]; ok {
				tokens = append(tokens, token{kind, word, start})
			} else {
				tokens = append(tokens, token{tokenIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", string(c), i)
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(input)})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
