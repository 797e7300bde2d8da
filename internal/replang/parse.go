package replang

import (
	"fmt"
	"strconv"
	"unicode"
)

// Expr is a parsed expression.
type Expr interface {
	eval() (Value, error)
}

type litExpr struct{ v Value }

type nameExpr struct {
	name string
	pos  int
}

type appExpr struct {
	fn   Expr
	args []Expr
}

func (e litExpr) eval() (Value, error) { return e.v, nil }

func (e nameExpr) eval() (Value, error) {
	if _, ok := builtins[e.name]; !ok {
		return Value{}, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("unknown name %q", e.name)}
	}
	return Value{Kind: KindFunc, Func: e.name}, nil
}

func (e appExpr) eval() (Value, error) {
	fn, err := e.fn.eval()
	if err != nil {
		return Value{}, err
	}
	args := make([]Value, len(e.args))
	for i, a := range e.args {
		if args[i], err = a.eval(); err != nil {
			return Value{}, err
		}
	}
	return Apply(fn, args...)
}

// ParseError reports malformed source.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Msg)
}

// Parse parses a single expression.
func Parse(src string) (Expr, error) {
	p := &parser{src: src}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, &ParseError{Pos: p.pos, Msg: "trailing input"}
	}
	return e, nil
}

// Eval parses and evaluates src.
func Eval(src string) (Value, error) {
	e, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	return e.eval()
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) expr() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, &ParseError{Pos: p.pos, Msg: "unexpected end of input"}
	}

	switch p.src[p.pos] {
	case ')':
		return nil, &ParseError{Pos: p.pos, Msg: "unexpected ')'"}
	case '(':
		start := p.pos
		p.pos++
		var items []Expr
		for {
			p.skipSpace()
			if p.pos >= len(p.src) {
				return nil, &ParseError{Pos: start, Msg: "unclosed '('"}
			}
			if p.src[p.pos] == ')' {
				p.pos++
				break
			}
			item, err := p.expr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if len(items) == 0 {
			return nil, &ParseError{Pos: start, Msg: "empty application"}
		}
		if len(items) == 1 {
			return items[0], nil
		}
		return appExpr{fn: items[0], args: items[1:]}, nil
	}

	start := p.pos
	for p.pos < len(p.src) && !unicode.IsSpace(rune(p.src[p.pos])) && p.src[p.pos] != '(' && p.src[p.pos] != ')' {
		p.pos++
	}
	return atom(p.src[start:p.pos], start), nil
}

func atom(tok string, pos int) Expr {
	switch tok {
	case "true":
		return litExpr{Bool(true)}
	case "false":
		return litExpr{Bool(false)}
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return litExpr{Int(n)}
	}
	return nameExpr{name: tok, pos: pos}
}
