package cypher

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression grammar, precedence climbing. Lowest to highest:
// OR, XOR, AND, NOT, comparison (chained), +/-, * / %, ^ (right), unary,
// postfix (property, index, slice), atom.

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.acceptKw("OR") {
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", L: left, R: right}
	}
	return left, nil
}

func (p *Parser) parseXor() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKw("XOR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "XOR", L: left, R: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKw("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", L: left, R: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.acceptKw("NOT") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

// comparison operators that chain: a < b <= c means a < b AND b <= c.
func comparisonOp(t Token) (string, bool) {
	if t.Kind == TokenOp {
		switch t.Text {
		case "=", "<>", "<", "<=", ">", ">=", "=~":
			return t.Text, true
		}
		return "", false
	}
	if t.Kind == TokenIdent {
		switch {
		case t.IsKeyword("IN"):
			return "IN", true
		case t.IsKeyword("CONTAINS"):
			return "CONTAINS", true
		}
	}
	return "", false
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var chain Expr
	prev := left
	for {
		// postfix IS [NOT] NULL binds at comparison level
		if p.cur().IsKeyword("IS") {
			p.pos++
			negate := p.acceptKw("NOT")
			if err := p.expectKw("NULL"); err != nil {
				return nil, err
			}
			test := Expr(&IsNull{Target: prev, Negate: negate})
			if chain == nil {
				chain = test
			} else {
				chain = &Binary{Op: "AND", L: chain, R: test}
			}
			prev = test
			continue
		}
		// STARTS WITH / ENDS WITH are two-token operators
		if p.cur().IsKeyword("STARTS") {
			p.pos++
			if err := p.expectKw("WITH"); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			cmp := Expr(&Binary{Op: "STARTS WITH", L: prev, R: right})
			chain = andChain(chain, cmp)
			prev = right
			continue
		}
		if p.cur().IsKeyword("ENDS") {
			p.pos++
			if err := p.expectKw("WITH"); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			cmp := Expr(&Binary{Op: "ENDS WITH", L: prev, R: right})
			chain = andChain(chain, cmp)
			prev = right
			continue
		}
		op, ok := comparisonOp(p.cur())
		if !ok {
			break
		}
		p.pos++
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp := Expr(&Binary{Op: op, L: prev, R: right})
		chain = andChain(chain, cmp)
		prev = right
	}
	if chain != nil {
		return chain, nil
	}
	return left, nil
}

func andChain(chain, cmp Expr) Expr {
	if chain == nil {
		return cmp
	}
	return &Binary{Op: "AND", L: chain, R: cmp}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.Kind != TokenOp || (t.Text != "+" && t.Text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.Text, L: left, R: right}
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.Kind != TokenOp || (t.Text != "*" && t.Text != "/" && t.Text != "%") {
			return left, nil
		}
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.Text, L: left, R: right}
	}
}

func (p *Parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == TokenOp && p.cur().Text == "^" {
		p.pos++
		right, err := p.parsePower() // right associative
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "^", L: left, R: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	t := p.cur()
	if t.Kind == TokenOp && (t.Text == "-" || t.Text == "+") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.Text, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.cur().Kind == TokenOp && p.cur().Text == ".":
			// property access; a dotted function name was already consumed
			// by parseAtom, so any '.' here is property navigation.
			p.pos++
			key, err := p.expectIdent("property name")
			if err != nil {
				return nil, err
			}
			expr = &PropertyAccess{Target: expr, Key: key}
		case p.cur().Kind == TokenOp && p.cur().Text == "[":
			p.pos++
			var from Expr
			if !(p.cur().Kind == TokenOp && p.cur().Text == "..") {
				from, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
			if p.acceptOp("..") {
				var to Expr
				if !(p.cur().Kind == TokenOp && p.cur().Text == "]") {
					to, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
				if err := p.expectOp("]"); err != nil {
					return nil, err
				}
				expr = &SliceAccess{Target: expr, From: from, To: to}
			} else {
				if err := p.expectOp("]"); err != nil {
					return nil, err
				}
				expr = &IndexAccess{Target: expr, Index: from}
			}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseAtom() (Expr, error) {
	t := p.cur()
	switch t.Kind {
	case TokenInt:
		p.pos++
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, parseErrorf(t.Line, t.Col, "invalid integer literal %q", t.Text)
		}
		return &Literal{Value: n}, nil
	case TokenFloat:
		p.pos++
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, parseErrorf(t.Line, t.Col, "invalid float literal %q", t.Text)
		}
		return &Literal{Value: f}, nil
	case TokenString:
		p.pos++
		return &Literal{Value: t.Text}, nil
	case TokenParam:
		p.pos++
		return &Param{Name: t.Text}, nil
	case TokenIdent:
		switch {
		case t.IsKeyword("true"):
			p.pos++
			return &Literal{Value: true}, nil
		case t.IsKeyword("false"):
			p.pos++
			return &Literal{Value: false}, nil
		case t.IsKeyword("null"):
			p.pos++
			return &Literal{Value: nil}, nil
		case t.IsKeyword("CASE"):
			p.pos++
			return p.parseCase()
		}
		if isQuantifier(t) && p.peek(1).Kind == TokenOp && p.peek(1).Text == "(" {
			return p.parseQuantifier()
		}
		return p.parseNameOrCall()
	case TokenOp:
		switch t.Text {
		case "(":
			// Either a parenthesized expression or a bare pattern used as a
			// predicate; try the pattern first and backtrack.
			if expr, ok := p.tryPatternPredicate(); ok {
				return expr, nil
			}
			p.pos++
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return expr, nil
		case "[":
			return p.parseListAtom()
		case "{":
			return p.parseMapLit()
		}
	}
	return nil, p.errorf("expected an expression, found %s", p.describe(t))
}

func isQuantifier(t Token) bool {
	return t.IsKeyword("any") || t.IsKeyword("all") ||
		t.IsKeyword("none") || t.IsKeyword("single")
}

// parseNameOrCall handles variables, dotted function names, and plain
// function calls. `apoc.text.join(...)` is one function name; `n.name`
// (no trailing parenthesis) is a variable plus property accesses.
func (p *Parser) parseNameOrCall() (Expr, error) {
	first, err := p.expectIdent("identifier")
	if err != nil {
		return nil, err
	}
	segments := []string{first}
	mark := p.pos
	for p.cur().Kind == TokenOp && p.cur().Text == "." && p.peek(1).Kind == TokenIdent {
		p.pos++
		segments = append(segments, p.next().Text)
	}
	if p.cur().Kind == TokenOp && p.cur().Text == "(" {
		return p.parseCallArgs(strings.Join(segments, "."))
	}
	// Not a call: rewind the dotted lookahead so postfix parsing sees the
	// property accesses.
	p.pos = mark
	return &Variable{Name: first}, nil
}

func (p *Parser) parseCallArgs(name string) (Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	call := &FuncCall{Name: name}
	if p.acceptOp("*") {
		call.Star = true
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	if p.acceptKw("DISTINCT") {
		call.Distinct = true
	}
	if p.acceptOp(")") {
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) parseCase() (Expr, error) {
	c := &CaseExpr{}
	if !p.cur().IsKeyword("WHEN") {
		input, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Input = input
	}
	for p.acceptKw("WHEN") {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKw("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, CaseWhen{Cond: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		return nil, p.errorf("CASE requires at least one WHEN")
	}
	if p.acceptKw("ELSE") {
		elseExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Else = elseExpr
	}
	if err := p.expectKw("END"); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseQuantifier() (Expr, error) {
	quant := strings.ToLower(p.next().Text)
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	variable, err := p.expectIdent("variable")
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("IN"); err != nil {
		return nil, err
	}
	source, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	q := &QuantifiedExpr{Quantifier: quant, Variable: variable, Source: source}
	if p.acceptKw("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		q.Where = where
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return q, nil
}

// parseListAtom disambiguates list literals, list comprehensions and
// pattern comprehensions, all of which open with '['.
func (p *Parser) parseListAtom() (Expr, error) {
	if err := p.expectOp("["); err != nil {
		return nil, err
	}
	// pattern comprehension: [(a)-[:R]->(b) … | expr]
	if p.cur().Kind == TokenOp && p.cur().Text == "(" {
		mark := p.pos
		part, err := p.parsePatternPart()
		if err == nil && len(part.Rels) > 0 {
			pc := &PatternComprehension{Part: part}
			if p.acceptKw("WHERE") {
				where, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				pc.Where = where
			}
			if err := p.expectOp("|"); err != nil {
				return nil, err
			}
			project, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pc.Project = project
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			return pc, nil
		}
		p.pos = mark
	}
	// list comprehension: [x IN xs WHERE p | e]
	if p.cur().Kind == TokenIdent && p.peek(1).IsKeyword("IN") {
		variable := p.next().Text
		p.pos++ // IN
		source, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lc := &ListComprehension{Variable: variable, Source: source}
		if p.acceptKw("WHERE") {
			where, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lc.Where = where
		}
		if p.acceptOp("|") {
			project, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lc.Project = project
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return lc, nil
	}
	// plain list literal
	list := &ListLit{}
	if p.acceptOp("]") {
		return list, nil
	}
	for {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseMapLit() (Expr, error) {
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	m := &MapLit{}
	if p.acceptOp("}") {
		return m, nil
	}
	for {
		key, err := p.expectIdent("map key")
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, MapEntry{Key: key, Value: value})
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return m, nil
}

// tryPatternPredicate attempts to read a bare relationship pattern used as
// a boolean predicate; it backtracks when the parenthesis turns out to be
// a grouped expression.
func (p *Parser) tryPatternPredicate() (Expr, bool) {
	mark := p.pos
	part, err := p.parsePatternPart()
	if err != nil || len(part.Rels) == 0 {
		p.pos = mark
		return nil, false
	}
	return &PatternPredicate{Part: part}, true
}

// exprText renders an expression as source-like text for default result
// column names.
func exprText(e Expr) string {
	switch v := e.(type) {
	case *Literal:
		switch val := v.Value.(type) {
		case nil:
			return "null"
		case string:
			return "'" + val + "'"
		default:
			return fmt.Sprint(val)
		}
	case *Param:
		return "$" + v.Name
	case *Variable:
		return v.Name
	case *PropertyAccess:
		return exprText(v.Target) + "." + v.Key
	case *IndexAccess:
		return exprText(v.Target) + "[" + exprText(v.Index) + "]"
	case *SliceAccess:
		from, to := "", ""
		if v.From != nil {
			from = exprText(v.From)
		}
		if v.To != nil {
			to = exprText(v.To)
		}
		return exprText(v.Target) + "[" + from + ".." + to + "]"
	case *ListLit:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = exprText(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *MapLit:
		parts := make([]string, len(v.Entries))
		for i, entry := range v.Entries {
			parts[i] = entry.Key + ": " + exprText(entry.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Unary:
		if v.Op == "NOT" {
			return "NOT " + exprText(v.Operand)
		}
		return v.Op + exprText(v.Operand)
	case *Binary:
		op := v.Op
		if op == "AND" || op == "OR" || op == "XOR" || op == "IN" ||
			op == "STARTS WITH" || op == "ENDS WITH" || op == "CONTAINS" {
			return exprText(v.L) + " " + op + " " + exprText(v.R)
		}
		return exprText(v.L) + op + exprText(v.R)
	case *IsNull:
		if v.Negate {
			return exprText(v.Target) + " IS NOT NULL"
		}
		return exprText(v.Target) + " IS NULL"
	case *FuncCall:
		if v.Star {
			return v.Name + "(*)"
		}
		parts := make([]string, len(v.Args))
		for i, arg := range v.Args {
			parts[i] = exprText(arg)
		}
		prefix := ""
		if v.Distinct {
			prefix = "DISTINCT "
		}
		return v.Name + "(" + prefix + strings.Join(parts, ", ") + ")"
	case *CaseExpr:
		return "CASE"
	case *ListComprehension:
		return "[" + v.Variable + " IN " + exprText(v.Source) + " …]"
	case *PatternComprehension:
		return "[pattern …]"
	case *QuantifiedExpr:
		return v.Quantifier + "(…)"
	case *PatternPredicate:
		return "pattern"
	default:
		return "expr"
	}
}
