package entitystore

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// paramRef is a positional placeholder (@N) inside a parsed but unbound expression.
type paramRef int

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokParam
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type memberLookup func(name string) (canonical string, accessor func(any) any, ok bool)

func tokenize(input string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(input) {
		c := rune(input[i])

		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
		case c == ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++

		case c == '@':
			start := i
			i++
			for i < len(input) && unicode.IsDigit(rune(input[i])) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("%w: placeholder without index at offset %d", ErrInvalidExpression, start)
			}
			tokens = append(tokens, token{tokParam, input[start+1 : i], start})

		case c == '"' || c == '\'':
			text, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, text, i})
			i = next

		case unicode.IsDigit(c) || (c == '-' && i+1 < len(input) && unicode.IsDigit(rune(input[i+1]))):
			start := i
			i++
			for i < len(input) && (unicode.IsDigit(rune(input[i])) || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})

		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(input) && (unicode.IsLetter(rune(input[i])) || unicode.IsDigit(rune(input[i])) || input[i] == '_' || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokIdent, input[start:i], start})

		default:
			op, ok := scanOperator(input, i)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidExpression, c, i)
			}
			tokens = append(tokens, token{tokOp, op, i})
			i += len(op)
		}
	}

	return append(tokens, token{tokEOF, "", len(input)}), nil
}

func scanOperator(input string, i int) (string, bool) {
	for _, op := range []string{"==", "!=", ">=", "<=", "&&", "||", ">", "<", "!"} {
		if strings.HasPrefix(input[i:], op) {
			return op, true
		}
	}

	return "", false
}

func scanString(input string, start int) (string, int, error) {
	quote := input[start]

	i := start + 1
	for i < len(input) {
		switch input[i] {
		case '\\':
			i += 2
			continue
		case quote:
			raw := input[start : i+1]
			if quote == '\'' {
				raw = `"` + strings.ReplaceAll(strings.ReplaceAll(raw[1:len(raw)-1], `\'`, `'`), `"`, `\"`) + `"`
			}

			text, err := strconv.Unquote(raw)
			if err != nil {
				return "", 0, fmt.Errorf("%w: malformed string at offset %d", ErrInvalidExpression, start)
			}

			return text, i + 1, nil
		}
		i++
	}

	return "", 0, fmt.Errorf("%w: unterminated string at offset %d", ErrInvalidExpression, start)
}

type parser struct {
	tokens []token
	pos    int
	lookup memberLookup
}

func parseExpression(input string, lookup memberLookup) (Expr, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, lookup: lookup}
	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}

	return expr, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}

	return t
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	}

	return fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidExpression, t.text, t.pos)
}

func (p *parser) isKeyword(t token, keywords ...string) bool {
	if t.kind != tokIdent {
		return false
	}

	for _, k := range keywords {
		if strings.EqualFold(t.text, k) {
			return true
		}
	}

	return false
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for t := p.peek(); (t.kind == tokOp && t.text == "||") || p.isKeyword(t, "or"); t = p.peek() {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = Or{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for t := p.peek(); (t.kind == tokOp && t.text == "&&") || p.isKeyword(t, "and"); t = p.peek() {
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = And{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if t := p.peek(); (t.kind == tokOp && t.text == "!") || p.isKeyword(t, "not") {
		p.next()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return Not{Operand: operand}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()

	switch {
	case t.kind == tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.unexpected(closing)
		}

		return expr, nil

	case p.isKeyword(t, "true"):
		return Constant{Value: true}, nil

	case p.isKeyword(t, "false"):
		return Constant{Value: false}, nil

	case t.kind == tokIdent:
		return p.parseComparison(t)

	default:
		return nil, p.unexpected(t)
	}
}

func (p *parser) parseComparison(member token) (Expr, error) {
	name, accessor, ok := p.lookup(member.text)
	if !ok {
		return nil, fmt.Errorf("%w: unknown member %q at offset %d", ErrInvalidExpression, member.text, member.pos)
	}

	var op Operator

	t := p.peek()
	switch {
	case t.kind == tokOp && isComparisonOperator(t.text):
		op = Operator(t.text)
	case p.isKeyword(t, "in"):
		op = OpIn
	case p.isKeyword(t, "contains"):
		op = OpContains
	case p.isKeyword(t, "startswith"):
		op = OpStartsWith
	default:
		// a bare member is a boolean test
		return Comparison{Field: name, Op: OpEq, Value: true, accessor: accessor}, nil
	}

	p.next()

	value, isNull, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if isNull {
		switch op {
		case OpEq:
			return Comparison{Field: name, Op: OpIsNull, accessor: accessor}, nil
		case OpNotEq:
			return Not{Operand: Comparison{Field: name, Op: OpIsNull, accessor: accessor}}, nil
		default:
			return nil, fmt.Errorf("%w: null can only be compared with == or != at offset %d", ErrInvalidExpression, t.pos)
		}
	}

	return Comparison{Field: name, Op: op, Value: value, accessor: accessor}, nil
}

func isComparisonOperator(op string) bool {
	switch Operator(op) {
	case OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte:
		return true
	default:
		return false
	}
}

func (p *parser) parseOperand() (any, bool, error) {
	t := p.next()

	switch {
	case t.kind == tokParam:
		index, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, false, fmt.Errorf("%w: bad placeholder at offset %d", ErrInvalidExpression, t.pos)
		}
		return paramRef(index), false, nil

	case t.kind == tokNumber:
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return n, false, nil
		}

		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, false, fmt.Errorf("%w: bad number %q at offset %d", ErrInvalidExpression, t.text, t.pos)
		}
		return f, false, nil

	case t.kind == tokString:
		return t.text, false, nil

	case p.isKeyword(t, "true"):
		return true, false, nil

	case p.isKeyword(t, "false"):
		return false, false, nil

	case p.isKeyword(t, "null"):
		return nil, true, nil

	case t.kind == tokLBracket:
		return p.parseList()

	default:
		return nil, false, p.unexpected(t)
	}
}

func (p *parser) parseList() (any, bool, error) {
	list := make([]any, 0)

	if p.peek().kind == tokRBracket {
		p.next()
		return list, false, nil
	}

	for {
		value, isNull, err := p.parseOperand()
		if err != nil {
			return nil, false, err
		}

		if isNull {
			value = nil
		}

		list = append(list, value)

		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRBracket:
			return list, false, nil
		default:
			return nil, false, p.unexpected(t)
		}
	}
}

// bindParams returns a copy of template with every placeholder replaced by its parameter.
func bindParams(template Expr, params []any) (Expr, error) {
	switch n := template.(type) {
	case Comparison:
		value, err := bindValue(n.Value, params)
		if err != nil {
			return nil, err
		}

		n.Value = value

		return n, nil

	case And:
		left, err := bindParams(n.Left, params)
		if err != nil {
			return nil, err
		}

		right, err := bindParams(n.Right, params)
		if err != nil {
			return nil, err
		}

		return And{Left: left, Right: right}, nil

	case Or:
		left, err := bindParams(n.Left, params)
		if err != nil {
			return nil, err
		}

		right, err := bindParams(n.Right, params)
		if err != nil {
			return nil, err
		}

		return Or{Left: left, Right: right}, nil

	case Not:
		operand, err := bindParams(n.Operand, params)
		if err != nil {
			return nil, err
		}

		return Not{Operand: operand}, nil

	default:
		return template, nil
	}
}

func bindValue(value any, params []any) (any, error) {
	switch v := value.(type) {
	case paramRef:
		if int(v) >= len(params) {
			return nil, fmt.Errorf("%w: placeholder @%d has no parameter, %d given", ErrInvalidExpression, int(v), len(params))
		}

		return params[v], nil

	case []any:
		bound := make([]any, 0, len(v))
		for _, item := range v {
			b, err := bindValue(item, params)
			if err != nil {
				return nil, err
			}
			bound = append(bound, b)
		}

		return bound, nil

	default:
		return value, nil
	}
}
