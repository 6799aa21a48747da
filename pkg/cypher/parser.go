package cypher

import (
	"strconv"
	"strings"
)

// Parser is a recursive-descent parser over the token stream. It reports
// the first problem it finds, naming the offending token and what was
// expected.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses a statement.
func Parse(query string) (*Statement, error) {
	tokens, err := NewLexer(query).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.acceptOp(";")
	if p.cur().Kind != TokenEOF {
		return nil, p.errorf("unexpected %s after end of statement", p.describe(p.cur()))
	}
	return stmt, nil
}

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) next() Token { t := p.tokens[p.pos]; p.pos++; return t }

func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) describe(t Token) string {
	switch t.Kind {
	case TokenEOF:
		return "end of input"
	case TokenString:
		return "string " + strconv.Quote(t.Text)
	default:
		return strconv.Quote(t.Text)
	}
}

func (p *Parser) errorf(format string, args ...any) error {
	t := p.cur()
	return parseErrorf(t.Line, t.Col, format, args...)
}

func (p *Parser) acceptOp(op string) bool {
	if t := p.cur(); t.Kind == TokenOp && t.Text == op {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return p.errorf("expected %q, found %s", op, p.describe(p.cur()))
	}
	return nil
}

func (p *Parser) acceptKw(kw string) bool {
	if p.cur().IsKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectKw(kw string) error {
	if !p.acceptKw(kw) {
		return p.errorf("expected %s, found %s", strings.ToUpper(kw), p.describe(p.cur()))
	}
	return nil
}

// expectIdent consumes an identifier (variable, label, name). Keywords are
// identifiers at the lexical level and are not rejected here.
func (p *Parser) expectIdent(what string) (string, error) {
	if t := p.cur(); t.Kind == TokenIdent {
		p.pos++
		return t.Text, nil
	}
	return "", p.errorf("expected %s, found %s", what, p.describe(p.cur()))
}

func (p *Parser) parseStatement() (*Statement, error) {
	stmt := &Statement{}
	for {
		single, err := p.parseSingleQuery()
		if err != nil {
			return nil, err
		}
		stmt.Parts = append(stmt.Parts, single)
		if !p.acceptKw("UNION") {
			break
		}
		stmt.UnionAll = append(stmt.UnionAll, p.acceptKw("ALL"))
	}
	return stmt, nil
}

func (p *Parser) parseSingleQuery() (*SingleQuery, error) {
	q := &SingleQuery{}
	for {
		t := p.cur()
		if t.Kind == TokenEOF || t.IsKeyword("UNION") ||
			(t.Kind == TokenOp && t.Text == ";") {
			break
		}
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}
	if len(q.Clauses) == 0 {
		return nil, p.errorf("empty query")
	}
	return q, nil
}

func (p *Parser) parseClause() (Clause, error) {
	t := p.cur()
	switch {
	case t.IsKeyword("MATCH"):
		p.pos++
		return p.parseMatch(false)
	case t.IsKeyword("OPTIONAL"):
		p.pos++
		if err := p.expectKw("MATCH"); err != nil {
			return nil, err
		}
		return p.parseMatch(true)
	case t.IsKeyword("CREATE"):
		p.pos++
		switch {
		case p.cur().IsKeyword("INDEX"):
			p.pos++
			return p.parseCreateIndex(false)
		case p.cur().IsKeyword("CONSTRAINT"):
			p.pos++
			return p.parseCreateConstraint()
		}
		parts, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		return &CreateClause{Parts: parts}, nil
	case t.IsKeyword("MERGE"):
		p.pos++
		return p.parseMerge()
	case t.IsKeyword("SET"):
		p.pos++
		items, err := p.parseSetItems()
		if err != nil {
			return nil, err
		}
		return &SetClause{Items: items}, nil
	case t.IsKeyword("REMOVE"):
		p.pos++
		return p.parseRemove()
	case t.IsKeyword("DELETE"):
		p.pos++
		return p.parseDelete(false)
	case t.IsKeyword("DETACH"):
		p.pos++
		if err := p.expectKw("DELETE"); err != nil {
			return nil, err
		}
		return p.parseDelete(true)
	case t.IsKeyword("WITH"):
		p.pos++
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		w := &WithClause{Projection: proj}
		if p.acceptKw("WHERE") {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			w.Where = expr
		}
		return w, nil
	case t.IsKeyword("UNWIND"):
		p.pos++
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKw("AS"); err != nil {
			return nil, err
		}
		alias, err := p.expectIdent("alias")
		if err != nil {
			return nil, err
		}
		return &UnwindClause{Expr: expr, Alias: alias}, nil
	case t.IsKeyword("RETURN"):
		p.pos++
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		return &ReturnClause{Projection: proj}, nil
	case t.IsKeyword("CALL"):
		p.pos++
		return p.parseCall()
	case t.IsKeyword("SHOW"):
		p.pos++
		switch {
		case p.acceptKw("INDEXES") || p.acceptKw("INDEX"):
			return &ShowClause{What: "INDEXES"}, nil
		case p.acceptKw("CONSTRAINTS") || p.acceptKw("CONSTRAINT"):
			return &ShowClause{What: "CONSTRAINTS"}, nil
		default:
			return nil, p.errorf("expected INDEXES or CONSTRAINTS after SHOW, found %s", p.describe(p.cur()))
		}
	case t.IsKeyword("DROP"):
		p.pos++
		switch {
		case p.acceptKw("INDEX"):
			return p.parseDropIndex()
		case p.acceptKw("CONSTRAINT"):
			return p.parseDropConstraint()
		default:
			return nil, p.errorf("expected INDEX or CONSTRAINT after DROP, found %s", p.describe(p.cur()))
		}
	}
	return nil, p.errorf("expected a clause keyword, found %s", p.describe(t))
}

func (p *Parser) parseMatch(optional bool) (Clause, error) {
	parts, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	m := &MatchClause{Parts: parts, Optional: optional}
	if p.acceptKw("WHERE") {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Where = expr
	}
	return m, nil
}

func (p *Parser) parseMerge() (Clause, error) {
	part, err := p.parsePatternPart()
	if err != nil {
		return nil, err
	}
	m := &MergeClause{Part: part}
	for p.cur().IsKeyword("ON") {
		p.pos++
		switch {
		case p.acceptKw("CREATE"):
			if err := p.expectKw("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnCreate = append(m.OnCreate, items...)
		case p.acceptKw("MATCH"):
			if err := p.expectKw("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnMatch = append(m.OnMatch, items...)
		default:
			return nil, p.errorf("expected CREATE or MATCH after ON, found %s", p.describe(p.cur()))
		}
	}
	return m, nil
}

func (p *Parser) parseSetItems() ([]SetItem, error) {
	var items []SetItem
	for {
		item, err := p.parseSetItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.acceptOp(",") {
			return items, nil
		}
	}
}

func (p *Parser) parseSetItem() (SetItem, error) {
	name, err := p.expectIdent("variable")
	if err != nil {
		return SetItem{}, err
	}
	switch {
	case p.acceptOp("."):
		prop, err := p.expectIdent("property name")
		if err != nil {
			return SetItem{}, err
		}
		if err := p.expectOp("="); err != nil {
			return SetItem{}, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return SetItem{}, err
		}
		return SetItem{Kind: SetProperty, Variable: name, Property: prop, Value: value}, nil
	case p.acceptOp("+="):
		value, err := p.parseExpr()
		if err != nil {
			return SetItem{}, err
		}
		return SetItem{Kind: SetMergeMap, Variable: name, Value: value}, nil
	case p.acceptOp("="):
		value, err := p.parseExpr()
		if err != nil {
			return SetItem{}, err
		}
		return SetItem{Kind: SetReplaceMap, Variable: name, Value: value}, nil
	case p.cur().Kind == TokenOp && p.cur().Text == ":":
		var labels []string
		for p.acceptOp(":") {
			label, err := p.expectIdent("label")
			if err != nil {
				return SetItem{}, err
			}
			labels = append(labels, label)
		}
		return SetItem{Kind: SetLabels, Variable: name, Labels: labels}, nil
	}
	return SetItem{}, p.errorf("expected '.', '=', '+=' or ':' in SET item, found %s", p.describe(p.cur()))
}

func (p *Parser) parseRemove() (Clause, error) {
	clause := &RemoveClause{}
	for {
		name, err := p.expectIdent("variable")
		if err != nil {
			return nil, err
		}
		if p.acceptOp(".") {
			prop, err := p.expectIdent("property name")
			if err != nil {
				return nil, err
			}
			clause.Items = append(clause.Items, RemoveItem{Variable: name, Property: prop})
		} else if p.cur().Kind == TokenOp && p.cur().Text == ":" {
			var labels []string
			for p.acceptOp(":") {
				label, err := p.expectIdent("label")
				if err != nil {
					return nil, err
				}
				labels = append(labels, label)
			}
			clause.Items = append(clause.Items, RemoveItem{Variable: name, Labels: labels})
		} else {
			return nil, p.errorf("expected '.' or ':' in REMOVE item, found %s", p.describe(p.cur()))
		}
		if !p.acceptOp(",") {
			return clause, nil
		}
	}
}

func (p *Parser) parseDelete(detach bool) (Clause, error) {
	clause := &DeleteClause{Detach: detach}
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		clause.Exprs = append(clause.Exprs, expr)
		if !p.acceptOp(",") {
			return clause, nil
		}
	}
}

func (p *Parser) parseProjection() (*Projection, error) {
	proj := &Projection{}
	if p.acceptKw("DISTINCT") {
		proj.Distinct = true
	}
	if p.acceptOp("*") {
		proj.Star = true
	} else {
		for {
			item, err := p.parseProjectionItem()
			if err != nil {
				return nil, err
			}
			proj.Items = append(proj.Items, item)
			if !p.acceptOp(",") {
				break
			}
		}
	}
	if p.cur().IsKeyword("ORDER") {
		p.pos++
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Expr: expr}
			if p.acceptKw("DESC") || p.acceptKw("DESCENDING") {
				item.Desc = true
			} else if p.acceptKw("ASC") || p.acceptKw("ASCENDING") {
				item.Desc = false
			}
			proj.OrderBy = append(proj.OrderBy, item)
			if !p.acceptOp(",") {
				break
			}
		}
	}
	if p.acceptKw("SKIP") {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		proj.Skip = expr
	}
	if p.acceptKw("LIMIT") {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		proj.Limit = expr
	}
	return proj, nil
}

func (p *Parser) parseProjectionItem() (ProjectionItem, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return ProjectionItem{}, err
	}
	item := ProjectionItem{Expr: expr, Alias: exprText(expr)}
	if p.acceptKw("AS") {
		alias, err := p.expectIdent("alias")
		if err != nil {
			return ProjectionItem{}, err
		}
		item.Alias = alias
	}
	return item, nil
}

func (p *Parser) parseCall() (Clause, error) {
	name, err := p.expectIdent("procedure name")
	if err != nil {
		return nil, err
	}
	for p.acceptOp(".") {
		part, err := p.expectIdent("procedure name")
		if err != nil {
			return nil, err
		}
		name += "." + part
	}
	call := &CallClause{Name: name}
	if p.acceptOp("(") {
		if !p.acceptOp(")") {
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
		}
	}
	if p.acceptKw("YIELD") {
		if p.acceptOp("*") {
			call.YieldAll = true
		} else {
			for {
				col, err := p.expectIdent("yield column")
				if err != nil {
					return nil, err
				}
				item := YieldItem{Column: col, Alias: col}
				if p.acceptKw("AS") {
					alias, err := p.expectIdent("alias")
					if err != nil {
						return nil, err
					}
					item.Alias = alias
				}
				call.Yield = append(call.Yield, item)
				if !p.acceptOp(",") {
					break
				}
			}
		}
		if p.acceptKw("WHERE") {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Where = expr
		}
	}
	return call, nil
}

// CREATE INDEX [name] [IF NOT EXISTS] FOR (n:Label) ON (n.prop)
// CREATE INDEX … FOR ()-[r:TYPE]-() ON (r.prop)
func (p *Parser) parseCreateIndex(unique bool) (Clause, error) {
	clause := &CreateIndexClause{Unique: unique}
	if t := p.cur(); t.Kind == TokenIdent && !t.IsKeyword("FOR") && !t.IsKeyword("IF") {
		clause.Name = t.Text
		p.pos++
	}
	var err error
	clause.IfNotExists, err = p.parseIfNotExists()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("FOR"); err != nil {
		return nil, err
	}
	onRel, variable, label, err := p.parseSchemaTarget()
	if err != nil {
		return nil, err
	}
	clause.OnRel = onRel
	clause.Label = label
	if err := p.expectKw("ON"); err != nil {
		return nil, err
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	v, err := p.expectIdent("variable")
	if err != nil {
		return nil, err
	}
	if v != variable {
		return nil, p.errorf("unknown variable %q in ON clause", v)
	}
	if err := p.expectOp("."); err != nil {
		return nil, err
	}
	clause.Property, err = p.expectIdent("property name")
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return clause, nil
}

// parseSchemaTarget parses (n:Label) or ()-[r:TYPE]-() and returns
// (isRelationship, variable, labelOrType).
func (p *Parser) parseSchemaTarget() (bool, string, string, error) {
	if err := p.expectOp("("); err != nil {
		return false, "", "", err
	}
	if p.acceptOp(")") {
		// relationship form: ()-[r:TYPE]-()
		if !p.acceptOp("<-") && !p.acceptOp("-") {
			return false, "", "", p.errorf("expected relationship pattern, found %s", p.describe(p.cur()))
		}
		if err := p.expectOp("["); err != nil {
			return false, "", "", err
		}
		variable, err := p.expectIdent("variable")
		if err != nil {
			return false, "", "", err
		}
		if err := p.expectOp(":"); err != nil {
			return false, "", "", err
		}
		relType, err := p.expectIdent("relationship type")
		if err != nil {
			return false, "", "", err
		}
		if err := p.expectOp("]"); err != nil {
			return false, "", "", err
		}
		if !p.acceptOp("->") && !p.acceptOp("-") {
			return false, "", "", p.errorf("expected '-' after ']', found %s", p.describe(p.cur()))
		}
		if err := p.expectOp("("); err != nil {
			return false, "", "", err
		}
		if err := p.expectOp(")"); err != nil {
			return false, "", "", err
		}
		return true, variable, relType, nil
	}
	variable, err := p.expectIdent("variable")
	if err != nil {
		return false, "", "", err
	}
	if err := p.expectOp(":"); err != nil {
		return false, "", "", err
	}
	label, err := p.expectIdent("label")
	if err != nil {
		return false, "", "", err
	}
	if err := p.expectOp(")"); err != nil {
		return false, "", "", err
	}
	return false, variable, label, nil
}

func (p *Parser) parseIfNotExists() (bool, error) {
	if !p.acceptKw("IF") {
		return false, nil
	}
	if err := p.expectKw("NOT"); err != nil {
		return false, err
	}
	if err := p.expectKw("EXISTS"); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Parser) parseDropIndex() (Clause, error) {
	name, err := p.expectIdent("index name")
	if err != nil {
		return nil, err
	}
	clause := &DropIndexClause{Name: name}
	if p.acceptKw("IF") {
		if err := p.expectKw("EXISTS"); err != nil {
			return nil, err
		}
		clause.IfExists = true
	}
	return clause, nil
}

// CREATE CONSTRAINT [name] [IF NOT EXISTS] FOR (n:Label)
// REQUIRE n.prop IS UNIQUE | IS NOT NULL | IS :: TYPE
func (p *Parser) parseCreateConstraint() (Clause, error) {
	clause := &CreateConstraintClause{}
	if t := p.cur(); t.Kind == TokenIdent && !t.IsKeyword("FOR") && !t.IsKeyword("IF") {
		clause.Name = t.Text
		p.pos++
	}
	var err error
	clause.IfNotExists, err = p.parseIfNotExists()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("FOR"); err != nil {
		return nil, err
	}
	onRel, variable, label, err := p.parseSchemaTarget()
	if err != nil {
		return nil, err
	}
	clause.OnRel = onRel
	clause.Label = label
	if err := p.expectKw("REQUIRE"); err != nil {
		return nil, err
	}
	v, err := p.expectIdent("variable")
	if err != nil {
		return nil, err
	}
	if v != variable {
		return nil, p.errorf("unknown variable %q in REQUIRE clause", v)
	}
	if err := p.expectOp("."); err != nil {
		return nil, err
	}
	clause.Property, err = p.expectIdent("property name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("IS"); err != nil {
		return nil, err
	}
	switch {
	case p.acceptKw("UNIQUE"):
		clause.Kind = "uniqueness"
	case p.acceptKw("NOT"):
		if err := p.expectKw("NULL"); err != nil {
			return nil, err
		}
		clause.Kind = "existence"
	case p.acceptOp(":"):
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		typeName, err := p.expectIdent("type name")
		if err != nil {
			return nil, err
		}
		clause.Kind = "type"
		clause.ValueType = strings.ToUpper(typeName)
	case p.acceptKw("TYPED"):
		typeName, err := p.expectIdent("type name")
		if err != nil {
			return nil, err
		}
		clause.Kind = "type"
		clause.ValueType = strings.ToUpper(typeName)
	default:
		return nil, p.errorf("expected UNIQUE, NOT NULL or :: after IS, found %s", p.describe(p.cur()))
	}
	return clause, nil
}

func (p *Parser) parseDropConstraint() (Clause, error) {
	name, err := p.expectIdent("constraint name")
	if err != nil {
		return nil, err
	}
	clause := &DropConstraintClause{Name: name}
	if p.acceptKw("IF") {
		if err := p.expectKw("EXISTS"); err != nil {
			return nil, err
		}
		clause.IfExists = true
	}
	return clause, nil
}

// --- patterns ---

func (p *Parser) parsePattern() ([]*PatternPart, error) {
	var parts []*PatternPart
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if !p.acceptOp(",") {
			return parts, nil
		}
	}
}

func (p *Parser) parsePatternPart() (*PatternPart, error) {
	part := &PatternPart{}
	// path variable: v = (…)
	if p.cur().Kind == TokenIdent && p.peek(1).Kind == TokenOp && p.peek(1).Text == "=" {
		part.Variable = p.next().Text
		p.pos++ // '='
	}
	if p.cur().IsKeyword("shortestPath") {
		p.pos++
		part.Shortest = ShortestSingle
	} else if p.cur().IsKeyword("allShortestPaths") {
		p.pos++
		part.Shortest = ShortestAll
	}
	if part.Shortest != ShortestNone {
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
	}
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	part.Nodes = append(part.Nodes, node)
	for p.relAhead() {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		part.Rels = append(part.Rels, rel)
		part.Nodes = append(part.Nodes, node)
	}
	if part.Shortest != ShortestNone {
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		if len(part.Rels) != 1 {
			return nil, p.errorf("shortestPath requires a single relationship pattern")
		}
	}
	return part, nil
}

func (p *Parser) relAhead() bool {
	t := p.cur()
	return t.Kind == TokenOp && (t.Text == "-" || t.Text == "<-" || t.Text == "->")
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	node := &NodePattern{}
	if t := p.cur(); t.Kind == TokenIdent {
		node.Variable = t.Text
		p.pos++
	}
	for p.acceptOp(":") {
		label, err := p.expectIdent("label")
		if err != nil {
			return nil, err
		}
		node.Labels = append(node.Labels, label)
	}
	if p.cur().Kind == TokenOp && p.cur().Text == "{" {
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		node.Props = props
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseRelPattern() (*RelPattern, error) {
	rel := &RelPattern{Direction: DirBoth}
	leftArrow := false
	switch {
	case p.acceptOp("<-"):
		leftArrow = true
	case p.acceptOp("-"):
	case p.acceptOp("->"):
		return nil, p.errorf("relationship pattern cannot start with '->'")
	}
	if p.acceptOp("[") {
		if t := p.cur(); t.Kind == TokenIdent {
			rel.Variable = t.Text
			p.pos++
		}
		if p.acceptOp(":") {
			for {
				relType, err := p.expectIdent("relationship type")
				if err != nil {
					return nil, err
				}
				rel.Types = append(rel.Types, relType)
				if !p.acceptOp("|") {
					break
				}
				p.acceptOp(":") // legacy :A|:B form
			}
		}
		if p.acceptOp("*") {
			rel.VarLength = true
			if p.cur().Kind == TokenInt {
				n, _ := strconv.Atoi(p.next().Text)
				rel.MinHops = &n
				if p.acceptOp("..") {
					if p.cur().Kind == TokenInt {
						m, _ := strconv.Atoi(p.next().Text)
						rel.MaxHops = &m
					}
				} else {
					// *n is exactly n hops
					rel.MaxHops = &n
				}
			} else if p.acceptOp("..") {
				if p.cur().Kind == TokenInt {
					m, _ := strconv.Atoi(p.next().Text)
					rel.MaxHops = &m
				}
			}
		}
		if p.cur().Kind == TokenOp && p.cur().Text == "{" {
			props, err := p.parsePropertyMap()
			if err != nil {
				return nil, err
			}
			rel.Props = props
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
	}
	switch {
	case p.acceptOp("->"):
		if leftArrow {
			return nil, p.errorf("relationship cannot point both ways")
		}
		rel.Direction = DirRight
	case p.acceptOp("-"):
		if leftArrow {
			rel.Direction = DirLeft
		}
	default:
		return nil, p.errorf("expected '-' or '->' after relationship, found %s", p.describe(p.cur()))
	}
	return rel, nil
}

func (p *Parser) parsePropertyMap() (map[string]Expr, error) {
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	props := map[string]Expr{}
	if p.acceptOp("}") {
		return props, nil
	}
	for {
		key, err := p.expectIdent("property name")
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
		props[key] = value
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return props, nil
}
