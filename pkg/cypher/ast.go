package cypher

// Statement is a full query: one or more single queries joined by UNION.
type Statement struct {
	Parts []*SingleQuery
	// UnionAll[i] is true when Parts[i+1] joins with UNION ALL.
	UnionAll []bool
}

// SingleQuery is a linear clause chain.
type SingleQuery struct {
	Clauses []Clause
}

// Clause is one query clause.
type Clause interface{ clauseNode() }

// MatchClause is MATCH or OPTIONAL MATCH with an optional WHERE.
type MatchClause struct {
	Parts    []*PatternPart
	Optional bool
	Where    Expr
}

// CreateClause creates the pattern for every incoming frame.
type CreateClause struct {
	Parts []*PatternPart
}

// MergeClause matches the whole pattern or creates it atomically.
type MergeClause struct {
	Part     *PatternPart
	OnCreate []SetItem
	OnMatch  []SetItem
}

// SetClause mutates bound entities.
type SetClause struct {
	Items []SetItem
}

// SetKind discriminates SET item forms.
type SetKind int

const (
	SetProperty   SetKind = iota // n.prop = expr
	SetMergeMap                  // n += {map}
	SetReplaceMap                // n = {map}
	SetLabels                    // n:Label1:Label2
)

// SetItem is one SET (or ON CREATE / ON MATCH) action.
type SetItem struct {
	Kind     SetKind
	Variable string
	Property string
	Value    Expr
	Labels   []string
}

// RemoveClause removes properties or labels.
type RemoveClause struct {
	Items []RemoveItem
}

// RemoveItem is one REMOVE action: a property when Property is set,
// otherwise labels.
type RemoveItem struct {
	Variable string
	Property string
	Labels   []string
}

// DeleteClause deletes bound entities; Detach removes incident
// relationships first.
type DeleteClause struct {
	Exprs  []Expr
	Detach bool
}

// WithClause projects and optionally aggregates mid-pipeline.
type WithClause struct {
	Projection *Projection
	Where      Expr
}

// UnwindClause expands a list into one frame per element.
type UnwindClause struct {
	Expr  Expr
	Alias string
}

// ReturnClause is the final projection.
type ReturnClause struct {
	Projection *Projection
}

// CallClause invokes a registered procedure.
type CallClause struct {
	Name  string
	Args  []Expr
	Yield []YieldItem
	// YieldAll is CALL proc() YIELD * — every column under its own name.
	YieldAll bool
	Where    Expr
}

// YieldItem projects one procedure column, optionally renamed.
type YieldItem struct {
	Column string
	Alias  string
}

// ShowClause is SHOW INDEXES / SHOW CONSTRAINTS.
type ShowClause struct {
	What string // "INDEXES" | "CONSTRAINTS"
}

// CreateIndexClause is CREATE INDEX … FOR (n:Label) ON (n.prop).
type CreateIndexClause struct {
	Name        string
	IfNotExists bool
	OnRel       bool
	Label       string
	Property    string
	Unique      bool
}

// DropIndexClause drops an index by name.
type DropIndexClause struct {
	Name     string
	IfExists bool
}

// CreateConstraintClause is CREATE CONSTRAINT … REQUIRE ….
type CreateConstraintClause struct {
	Name        string
	IfNotExists bool
	OnRel       bool
	Label       string
	Property    string
	Kind        string // "uniqueness" | "existence" | "type"
	ValueType   string
}

// DropConstraintClause drops a constraint by name.
type DropConstraintClause struct {
	Name     string
	IfExists bool
}

func (*MatchClause) clauseNode()            {}
func (*CreateClause) clauseNode()           {}
func (*MergeClause) clauseNode()            {}
func (*SetClause) clauseNode()              {}
func (*RemoveClause) clauseNode()           {}
func (*DeleteClause) clauseNode()           {}
func (*WithClause) clauseNode()             {}
func (*UnwindClause) clauseNode()           {}
func (*ReturnClause) clauseNode()           {}
func (*CallClause) clauseNode()             {}
func (*ShowClause) clauseNode()             {}
func (*CreateIndexClause) clauseNode()      {}
func (*DropIndexClause) clauseNode()        {}
func (*CreateConstraintClause) clauseNode() {}
func (*DropConstraintClause) clauseNode()   {}

// Projection is the shared shape of WITH and RETURN.
type Projection struct {
	Distinct bool
	Star     bool
	Items    []ProjectionItem
	OrderBy  []OrderItem
	Skip     Expr
	Limit    Expr
}

// ProjectionItem is one projected expression with its output name.
type ProjectionItem struct {
	Expr  Expr
	Alias string // explicit alias, or the expression's source text
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// RelDirection is the arrow on a relationship pattern.
type RelDirection int

const (
	DirBoth  RelDirection = iota // -[]-
	DirRight                     // -[]->
	DirLeft                      // <-[]-
)

// ShortestKind marks shortestPath()/allShortestPaths() pattern heads.
type ShortestKind int

const (
	ShortestNone ShortestKind = iota
	ShortestSingle
	ShortestAll
)

// PatternPart is one comma-separated pattern: alternating node and
// relationship elements, optionally named as a path.
type PatternPart struct {
	Variable string // path variable, "" if unnamed
	Shortest ShortestKind
	Nodes    []*NodePattern // len(Nodes) == len(Rels)+1
	Rels     []*RelPattern
}

// NodePattern is (v:Label {props}).
type NodePattern struct {
	Variable string
	Labels   []string
	Props    map[string]Expr
}

// RelPattern is -[v:TYPE*m..n {props}]->.
type RelPattern struct {
	Variable  string
	Types     []string
	Props     map[string]Expr
	Direction RelDirection
	VarLength bool
	MinHops   *int
	MaxHops   *int
}

// Expr is one expression node.
type Expr interface{ exprNode() }

// Literal is a constant value.
type Literal struct {
	Value any
}

// Param is a $name parameter reference.
type Param struct {
	Name string
}

// Variable references a frame binding.
type Variable struct {
	Name string
}

// PropertyAccess is target.key; on lists it broadcasts over elements.
type PropertyAccess struct {
	Target Expr
	Key    string
}

// IndexAccess is target[idx] on lists and maps.
type IndexAccess struct {
	Target Expr
	Index  Expr
}

// SliceAccess is target[from..to]; either bound may be nil.
type SliceAccess struct {
	Target Expr
	From   Expr
	To     Expr
}

// ListLit is [a, b, c].
type ListLit struct {
	Items []Expr
}

// MapEntry preserves map-literal key order.
type MapEntry struct {
	Key   string
	Value Expr
}

// MapLit is {k: v, …}.
type MapLit struct {
	Entries []MapEntry
}

// Unary is NOT x, -x, +x.
type Unary struct {
	Op      string
	Operand Expr
}

// Binary covers boolean, comparison, arithmetic and string operators.
type Binary struct {
	Op string
	L  Expr
	R  Expr
}

// IsNull is x IS [NOT] NULL.
type IsNull struct {
	Target Expr
	Negate bool
}

// FuncCall is name(args); Star marks count(*).
type FuncCall struct {
	Name     string
	Args     []Expr
	Distinct bool
	Star     bool
}

// CaseExpr covers both simple and searched CASE.
type CaseExpr struct {
	Input Expr // nil for searched CASE
	Whens []CaseWhen
	Else  Expr
}

// CaseWhen is one WHEN … THEN … arm.
type CaseWhen struct {
	Cond   Expr
	Result Expr
}

// ListComprehension is [x IN xs WHERE p | e].
type ListComprehension struct {
	Variable string
	Source   Expr
	Where    Expr
	Project  Expr // nil means the element itself
}

// PatternComprehension is [(a)-[:R]->(b) WHERE p | e].
type PatternComprehension struct {
	Part    *PatternPart
	Where   Expr
	Project Expr
}

// QuantifiedExpr is any/all/none/single(x IN xs WHERE p).
type QuantifiedExpr struct {
	Quantifier string // "any" | "all" | "none" | "single"
	Variable   string
	Source     Expr
	Where      Expr
}

// PatternPredicate is a bare pattern used as a boolean in WHERE,
// e.g. WHERE (a)-[:KNOWS]->(b).
type PatternPredicate struct {
	Part *PatternPart
}

func (*Literal) exprNode()              {}
func (*Param) exprNode()                {}
func (*Variable) exprNode()             {}
func (*PropertyAccess) exprNode()       {}
func (*IndexAccess) exprNode()          {}
func (*SliceAccess) exprNode()          {}
func (*ListLit) exprNode()              {}
func (*MapLit) exprNode()               {}
func (*Unary) exprNode()                {}
func (*Binary) exprNode()               {}
func (*IsNull) exprNode()               {}
func (*FuncCall) exprNode()             {}
func (*CaseExpr) exprNode()             {}
func (*ListComprehension) exprNode()    {}
func (*PatternComprehension) exprNode() {}
func (*QuantifiedExpr) exprNode()       {}
func (*PatternPredicate) exprNode()     {}
