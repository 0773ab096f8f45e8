// Package sqlref extracts table, alias, column and CTE references from a
// single SQL statement.
//
// Extraction is a clause state machine over the token stream. Tokens are
// buffered per clause and each buffer is handed to a clause handler when the
// next clause keyword is seen at parenthesis depth zero. Parenthesised
// subqueries are extracted recursively and replaced with an opaque
// placeholder before the surrounding clause is examined.
package sqlref

import (
	"maps"
	"slices"
	"strings"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// maxNesting bounds subquery recursion.
const maxNesting = 64

// QualifiedName is a schema-qualified table name.
type QualifiedName struct {
	Schema string
	Name   string
}

// String returns schema.name, or name when no schema is set.
func (q QualifiedName) String() string {
	if q.Schema == "" {
		return q.Name
	}
	return q.Schema + "." + q.Name
}

// TableRef is one table reference found in a FROM, JOIN or DML target position.
type TableRef struct {
	Schema     string
	Name       string // "(CTE) name" for references to a common table expression
	Alias      string
	InSubquery bool
}

// IsCTE reports whether the reference names a common table expression.
func (t TableRef) IsCTE() bool {
	return core.IsCTEName(t.Name)
}

// Qualified returns the schema-qualified name of the reference.
func (t TableRef) Qualified() QualifiedName {
	return QualifiedName{Schema: t.Schema, Name: t.Name}
}

// ColumnRef is a column identifier referenced in the select list.
type ColumnRef struct {
	Qualifier string // alias or table name before the first dot
	Name      string
}

// ParseResult describes what a statement references.
type ParseResult struct {
	Operation core.OperationType

	// Tables holds every table in FROM, JOIN and DML target positions, in
	// order of first appearance. Tables found in subqueries are flattened in
	// with InSubquery set.
	Tables []TableRef

	// CTEs maps each common table expression to the tables its body
	// references. CTEOrder lists the names in declaration order.
	CTEs     map[string][]TableRef
	CTEOrder []string

	// Aliases maps each alias used at the top level to its table.
	Aliases map[string]QualifiedName

	// Columns is the select list for queries, or the written columns for
	// INSERT and UPDATE.
	Columns []string

	// ColumnRefs lists the column identifiers used in the top-level select list.
	ColumnRefs []ColumnRef

	// Target is the table written by INSERT, UPDATE or DELETE.
	Target *TableRef
}

func newParseResult() *ParseResult {
	return &ParseResult{
		Tables:  []TableRef{},
		CTEs:    make(map[string][]TableRef),
		Aliases: make(map[string]QualifiedName),
	}
}

// Extract parses a single SQL statement and returns the tables, aliases,
// columns and CTEs it references. Statements other than SELECT, INSERT,
// UPDATE and DELETE (MERGE, TRUNCATE, EXEC, ...) yield OperationOther. It
// returns a *ParseError for empty input, unbalanced parentheses, unterminated
// literals and text that does not start with a word.
func Extract(sql string) (*ParseResult, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}

	x := &extractor{
		src:    sql,
		result: newParseResult(),
	}

	toks, err = x.trimTerminator(toks)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, &ParseError{Pos: Position{Line: 1, Column: 1}, Message: "empty statement"}
	}
	if err := x.checkBalance(toks); err != nil {
		return nil, err
	}

	top := &sink{tables: &x.result.Tables, seen: make(map[TableRef]bool)}
	if err := x.statement(toks, scope{sink: top, top: true}); err != nil {
		return nil, err
	}
	x.resolveTarget(top)

	return x.result, nil
}

// sink collects the de-duplicated tables of one statement body.
type sink struct {
	tables *[]TableRef
	seen   map[TableRef]bool
}

func (s *sink) add(ref TableRef) {
	if s.seen[ref] {
		return
	}
	s.seen[ref] = true
	*s.tables = append(*s.tables, ref)
}

// scope says where the tables of a statement body go.
type scope struct {
	sink       *sink
	top        bool // aliases, columns and operation are recorded
	inSubquery bool
	depth      int
	ctes       map[string]string // lower-cased name -> declared name, visible here
}

func (sc scope) nested(s *sink) scope {
	return scope{sink: s, inSubquery: true, depth: sc.depth + 1, ctes: sc.ctes}
}

type extractor struct {
	src    string
	result *ParseResult

	// pendingTarget is an UPDATE or DELETE target that may be an alias
	// declared later in the FROM clause.
	pendingTarget *TableRef
}

func (x *extractor) errorAt(tok Token, msg string) *ParseError {
	return &ParseError{
		Fragment: fragmentAt(x.src, tok.Pos.Offset),
		Pos:      tok.Pos,
		Message:  msg,
	}
}

// trimTerminator drops trailing semicolons and rejects multiple statements.
func (x *extractor) trimTerminator(toks []Token) ([]Token, error) {
	for len(toks) > 0 && toks[len(toks)-1].Type == TOKEN_SEMICOLON {
		toks = toks[:len(toks)-1]
	}
	for _, t := range toks {
		if t.Type == TOKEN_SEMICOLON {
			return nil, x.errorAt(t, "multiple statements are not supported")
		}
	}
	return toks, nil
}

func (x *extractor) checkBalance(toks []Token) error {
	var open []Token
	for _, t := range toks {
		switch t.Type {
		case TOKEN_LPAREN:
			open = append(open, t)
		case TOKEN_RPAREN:
			if len(open) == 0 {
				return x.errorAt(t, "unbalanced parentheses: unexpected )")
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return x.errorAt(open[len(open)-1], "unbalanced parentheses: unclosed (")
	}
	return nil
}

func operationOf(t Token) core.OperationType {
	switch t.Type {
	case TOKEN_SELECT:
		return core.OperationSelect
	case TOKEN_INSERT:
		return core.OperationInsert
	case TOKEN_UPDATE:
		return core.OperationUpdate
	case TOKEN_DELETE:
		return core.OperationDelete
	default:
		return core.OperationOther
	}
}

// statement parses an optional WITH clause followed by the main statement.
func (x *extractor) statement(toks []Token, sc scope) error {
	if sc.depth > maxNesting {
		return x.errorAt(toks[0], "subqueries nested too deeply")
	}

	i := 0
	if toks[0].Type == TOKEN_WITH {
		// CTE names are visible to this statement and its subqueries only.
		sc.ctes = maps.Clone(sc.ctes)
		if sc.ctes == nil {
			sc.ctes = make(map[string]string)
		}
		var err error
		if i, err = x.withClause(toks, sc); err != nil {
			return err
		}
		if i >= len(toks) {
			return x.errorAt(toks[len(toks)-1], "WITH clause must be followed by a statement")
		}
	}

	main := toks[i:]
	op := operationOf(main[0])
	switch {
	case main[0].Type == TOKEN_LPAREN:
		// (SELECT ...) UNION (SELECT ...)
		op = core.OperationSelect
	case op == core.OperationOther:
		if !main[0].isName() {
			return x.errorAt(main[0], "expected a statement")
		}
		if sc.top {
			x.result.Operation = op
		}
		return x.otherStatement(main, sc)
	}
	if sc.top {
		x.result.Operation = op
	}

	return x.body(main, sc)
}

// otherStatement handles a statement whose verb is not SELECT, INSERT,
// UPDATE or DELETE. Tables are read from INTO, USING, FROM and JOIN items
// and from the names after TRUNCATE [TABLE]; everything else is only
// searched for subqueries.
func (x *extractor) otherStatement(toks []Token, sc scope) error {
	st := &bodyState{sc: sc, kw: toks[0]}
	cur := clauseNone
	i := 1
	if toks[0].upper() == "TRUNCATE" {
		cur = clauseFrom
		if i < len(toks) && toks[i].isName() && toks[i].upper() == "TABLE" {
			i++
		}
	}

	var buf []Token
	depth := 0
	for ; i < len(toks); i++ {
		t := toks[i]
		if depth == 0 {
			if next, width, ok := otherClauseAt(toks, i); ok {
				if err := x.flush(st, cur, buf); err != nil {
					return err
				}
				cur, buf, st.kw = next, nil, t
				i += width - 1
				continue
			}
		}
		switch t.Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
		}
		buf = append(buf, t)
	}

	return x.flush(st, cur, buf)
}

// otherClauseAt segments a statement handled by otherStatement. INTO and
// USING introduce a single table item.
func otherClauseAt(toks []Token, i int) (clause, int, bool) {
	switch toks[i].Type {
	case TOKEN_INTO, TOKEN_USING:
		return clauseJoin, 1, true
	case TOKEN_FROM:
		return clauseFrom, 1, true
	case TOKEN_ON, TOKEN_WHERE, TOKEN_WHEN, TOKEN_THEN, TOKEN_SET, TOKEN_VALUES,
		TOKEN_SELECT, TOKEN_INSERT, TOKEN_UPDATE, TOKEN_DELETE:
		return clauseNone, 1, true
	}
	if c, width, ok := clauseAt(toks, i, clauseNone); ok && c == clauseJoin {
		return c, width, true
	}
	return clauseNone, 0, false
}

// withClause parses WITH [RECURSIVE] name [(cols)] AS [[NOT] MATERIALIZED] (body) [, ...]
// and returns the index of the first token of the main statement.
func (x *extractor) withClause(toks []Token, sc scope) (int, error) {
	at := func(i int) Token {
		if i < len(toks) {
			return toks[i]
		}
		return toks[len(toks)-1]
	}

	i := 1
	if i < len(toks) && toks[i].isName() && toks[i].upper() == "RECURSIVE" {
		i++
	}

	for {
		if i >= len(toks) || !toks[i].isName() {
			return 0, x.errorAt(at(i), "expected CTE name")
		}
		name := toks[i].Literal
		i++

		if i < len(toks) && toks[i].Type == TOKEN_LPAREN {
			i = matchParen(toks, i) + 1
		}
		if i >= len(toks) || toks[i].Type != TOKEN_AS {
			return 0, x.errorAt(at(i), "expected AS after CTE name "+name)
		}
		i++
		if i < len(toks) && toks[i].Type == TOKEN_NOT {
			i++
		}
		if i < len(toks) && toks[i].isName() && toks[i].upper() == "MATERIALIZED" {
			i++
		}
		if i >= len(toks) || toks[i].Type != TOKEN_LPAREN {
			return 0, x.errorAt(at(i), "expected ( to open CTE "+name)
		}

		end := matchParen(toks, i)
		body := toks[i+1 : end]
		if len(body) == 0 {
			return 0, x.errorAt(toks[i], "empty CTE body for "+name)
		}

		// Declared before the body so recursive references are markers.
		sc.ctes[strings.ToLower(name)] = name

		refs := []TableRef{}
		cte := &sink{tables: &refs, seen: make(map[TableRef]bool)}
		if err := x.statement(body, sc.nested(cte)); err != nil {
			return 0, err
		}
		if prev, dup := x.result.CTEs[name]; dup {
			// The same name declared again in another scope.
			for _, ref := range refs {
				if !slices.Contains(prev, ref) {
					prev = append(prev, ref)
				}
			}
			refs = prev
		} else {
			x.result.CTEOrder = append(x.result.CTEOrder, name)
		}
		x.result.CTEs[name] = refs

		i = end + 1
		if i < len(toks) && toks[i].Type == TOKEN_COMMA {
			i++
			continue
		}
		return i, nil
	}
}

// clause is the state of the body state machine.
type clause int

const (
	clauseNone clause = iota
	clauseSelect
	clauseInto
	clauseFrom
	clauseJoin
	clauseOn
	clauseWhere
	clauseGroupBy
	clauseHaving
	clauseWindow
	clauseOrderBy
	clauseLimit
	clauseSetOp
	clauseInsert
	clauseValues
	clauseUpdate
	clauseSet
	clauseDelete
)

// bodyState tracks one statement body across clause flushes.
type bodyState struct {
	sc     scope
	branch int   // index of the current UNION/INTERSECT/EXCEPT branch
	kw     Token // keyword that opened the current clause
}

// body runs the clause state machine over a statement without its WITH clause.
func (x *extractor) body(toks []Token, sc scope) error {
	st := &bodyState{sc: sc, kw: toks[0]}
	cur := clauseNone
	var buf []Token
	depth := 0

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if depth == 0 {
			if next, width, ok := clauseAt(toks, i, cur); ok {
				if err := x.flush(st, cur, buf); err != nil {
					return err
				}
				if next == clauseSetOp {
					st.branch++
					next = clauseNone
				}
				cur, buf, st.kw = next, nil, t
				i += width - 1
				continue
			}
		}
		switch t.Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
		}
		buf = append(buf, t)
	}

	return x.flush(st, cur, buf)
}

// clauseAt reports whether toks[i] starts a new clause, and how many tokens
// the clause keyword spans.
func clauseAt(toks []Token, i int, cur clause) (clause, int, bool) {
	t := toks[i]
	nextIs := func(tt TokenType) bool {
		return i+1 < len(toks) && toks[i+1].Type == tt
	}

	switch t.Type {
	case TOKEN_SELECT:
		return clauseSelect, 1, true
	case TOKEN_INTO:
		if cur == clauseSelect {
			return clauseInto, 1, true
		}
	case TOKEN_FROM:
		return clauseFrom, 1, true
	case TOKEN_JOIN:
		return clauseJoin, 1, true
	case TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL, TOKEN_INNER, TOKEN_CROSS, TOKEN_NATURAL, TOKEN_OUTER:
		j := i
		for j < len(toks) && toks[j].Is(TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL, TOKEN_INNER, TOKEN_CROSS, TOKEN_NATURAL, TOKEN_OUTER) {
			j++
		}
		if j < len(toks) && (toks[j].Type == TOKEN_JOIN || (toks[j].isName() && toks[j].upper() == "APPLY")) {
			return clauseJoin, j - i + 1, true
		}
	case TOKEN_ON:
		if cur == clauseJoin {
			return clauseOn, 1, true
		}
	case TOKEN_USING:
		switch cur {
		case clauseJoin:
			return clauseOn, 1, true
		case clauseDelete:
			return clauseFrom, 1, true
		}
	case TOKEN_WHERE:
		return clauseWhere, 1, true
	case TOKEN_GROUP:
		if nextIs(TOKEN_BY) {
			return clauseGroupBy, 2, true
		}
	case TOKEN_HAVING:
		return clauseHaving, 1, true
	case TOKEN_WINDOW:
		return clauseWindow, 1, true
	case TOKEN_ORDER:
		if nextIs(TOKEN_BY) {
			return clauseOrderBy, 2, true
		}
	case TOKEN_LIMIT, TOKEN_OFFSET, TOKEN_FETCH:
		return clauseLimit, 1, true
	case TOKEN_UNION, TOKEN_INTERSECT, TOKEN_EXCEPT:
		if nextIs(TOKEN_ALL) || nextIs(TOKEN_DISTINCT) {
			return clauseSetOp, 2, true
		}
		return clauseSetOp, 1, true
	case TOKEN_INSERT:
		if i == 0 {
			if nextIs(TOKEN_INTO) {
				return clauseInsert, 2, true
			}
			return clauseInsert, 1, true
		}
	case TOKEN_VALUES:
		if cur == clauseInsert {
			return clauseValues, 1, true
		}
	case TOKEN_UPDATE:
		if i == 0 {
			return clauseUpdate, 1, true
		}
	case TOKEN_SET:
		if cur == clauseUpdate {
			return clauseSet, 1, true
		}
	case TOKEN_DELETE:
		if i == 0 {
			if nextIs(TOKEN_FROM) {
				return clauseDelete, 2, true
			}
			return clauseDelete, 1, true
		}
	}
	return clauseNone, 0, false
}

// flush hands a clause buffer to its handler.
func (x *extractor) flush(st *bodyState, c clause, buf []Token) error {
	switch c {
	case clauseSelect:
		return x.selectList(st, buf)
	case clauseInto:
		return x.tableItem(st, buf, "INTO")
	case clauseFrom:
		return x.fromList(st, buf)
	case clauseJoin:
		return x.tableItem(st, buf, "JOIN")
	case clauseNone, clauseOn, clauseWhere, clauseHaving, clauseValues:
		_, err := x.replaceSubqueries(st.sc, buf)
		return err
	case clauseGroupBy, clauseOrderBy, clauseLimit, clauseWindow:
		// Segmented only; these never reference tables.
		return nil
	case clauseInsert:
		return x.insertTarget(st, buf)
	case clauseUpdate:
		return x.dmlTarget(st, buf, "UPDATE")
	case clauseSet:
		return x.setList(st, buf)
	case clauseDelete:
		return x.dmlTarget(st, buf, "DELETE")
	}
	return nil
}

// replaceSubqueries extracts every parenthesised subquery in toks and
// returns toks with each one replaced by a TOKEN_SUBQUERY placeholder.
func (x *extractor) replaceSubqueries(sc scope, toks []Token) ([]Token, error) {
	out := toks
	for {
		start := findSubquery(out)
		if start < 0 {
			return out, nil
		}
		end := matchParen(out, start)
		if err := x.statement(out[start+1:end], sc.nested(sc.sink)); err != nil {
			return nil, err
		}
		placeholder := Token{Type: TOKEN_SUBQUERY, Literal: "(subquery)", Pos: out[start].Pos}
		replaced := make([]Token, 0, len(out)-(end-start))
		replaced = append(replaced, out[:start]...)
		replaced = append(replaced, placeholder)
		replaced = append(replaced, out[end+1:]...)
		out = replaced
	}
}

// findSubquery returns the index of the first "(" that opens a query, or -1.
func findSubquery(toks []Token) int {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].Type == TOKEN_LPAREN && toks[i+1].Is(TOKEN_SELECT, TOKEN_WITH) {
			return i
		}
	}
	return -1
}

func (x *extractor) fromList(st *bodyState, buf []Token) error {
	if len(buf) == 0 {
		return x.errorAt(st.kw, "expected table after FROM")
	}
	for _, item := range splitTokens(buf, TOKEN_COMMA) {
		if err := x.tableItem(st, item, "FROM"); err != nil {
			return err
		}
	}
	return nil
}

// tableItem records the table named by a single FROM or JOIN item.
func (x *extractor) tableItem(st *bodyState, item []Token, kw string) error {
	item, err := x.replaceSubqueries(st.sc, item)
	if err != nil {
		return err
	}
	if len(item) > 0 && item[0].Type == TOKEN_LATERAL {
		item = item[1:]
	}
	if len(item) == 0 {
		return x.errorAt(st.kw, "expected table after "+kw)
	}

	first := item[0]
	switch {
	case first.Type == TOKEN_SUBQUERY:
		// Derived table; its alias is not a table.
		return nil
	case first.Type == TOKEN_LPAREN && len(item) > 1 && item[1].Type == TOKEN_VALUES:
		// Inline VALUES list
		return nil
	case first.Type == TOKEN_LPAREN:
		// Parenthesised join: (a JOIN b ON ...)
		end := matchParen(item, 0)
		inner := append([]Token{{Type: TOKEN_FROM, Literal: "FROM", Pos: first.Pos}}, item[1:end]...)
		return x.body(inner, st.sc)
	case first.Type == TOKEN_PARAM:
		// Table variable
		return nil
	case !first.isName():
		return x.errorAt(first, "expected table name after "+kw)
	}

	name, i := qualifiedName(item)
	if i < len(item) && item[i].Type == TOKEN_LPAREN {
		// Table-valued function
		return nil
	}

	alias := ""
	if i < len(item) && item[i].Type == TOKEN_AS {
		i++
	}
	if i < len(item) && item[i].isName() {
		alias = item[i].Literal
	}

	x.addTable(st.sc, name, alias)
	return nil
}

// qualifiedName reads name(.name)* from the start of toks and splits it on
// the first dot. It returns the index of the first unread token.
func qualifiedName(toks []Token) (QualifiedName, int) {
	parts := []string{toks[0].Literal}
	i := 1
	for i+1 < len(toks) && toks[i].Type == TOKEN_DOT && toks[i+1].isName() {
		parts = append(parts, toks[i+1].Literal)
		i += 2
	}
	if len(parts) == 1 {
		return QualifiedName{Name: parts[0]}, i
	}
	return QualifiedName{Schema: parts[0], Name: strings.Join(parts[1:], ".")}, i
}

// tableRef builds a reference, substituting the CTE marker for CTE names.
func (x *extractor) tableRef(sc scope, name QualifiedName, alias string) TableRef {
	if name.Schema == "" {
		if decl, ok := sc.ctes[strings.ToLower(name.Name)]; ok {
			name.Name = core.CTEPrefix + decl
		}
	}
	return TableRef{Schema: name.Schema, Name: name.Name, Alias: alias, InSubquery: sc.inSubquery}
}

func (x *extractor) addTable(sc scope, name QualifiedName, alias string) TableRef {
	ref := x.tableRef(sc, name, alias)
	sc.sink.add(ref)
	if sc.top && alias != "" {
		x.result.Aliases[alias] = ref.Qualified()
	}
	return ref
}

func (x *extractor) selectList(st *bodyState, buf []Token) error {
	toks, err := x.replaceSubqueries(st.sc, buf)
	if err != nil {
		return err
	}
	if !st.sc.top || st.branch > 0 {
		return nil
	}

	toks = stripSelectModifiers(toks)
	write := x.result.Operation.IsWrite()
	for _, item := range splitTokens(toks, TOKEN_COMMA) {
		if len(item) == 0 {
			continue
		}
		name, refs := selectItem(item)
		if !write {
			x.result.Columns = append(x.result.Columns, name)
		}
		x.result.ColumnRefs = append(x.result.ColumnRefs, refs...)
	}
	return nil
}

// stripSelectModifiers removes DISTINCT, ALL, DISTINCT ON (...) and
// TOP n [PERCENT] [WITH TIES] from the front of a select list.
func stripSelectModifiers(toks []Token) []Token {
	for len(toks) > 0 {
		switch {
		case toks[0].Type == TOKEN_DISTINCT:
			toks = toks[1:]
			if len(toks) > 1 && toks[0].Type == TOKEN_ON && toks[1].Type == TOKEN_LPAREN {
				toks = toks[matchParen(toks, 1)+1:]
			}
		case toks[0].Type == TOKEN_ALL:
			toks = toks[1:]
		case toks[0].Type == TOKEN_TOP && len(toks) > 1:
			if toks[1].Type == TOKEN_LPAREN {
				toks = toks[matchParen(toks, 1)+1:]
			} else {
				toks = toks[2:]
			}
			if len(toks) > 0 && toks[0].isName() && toks[0].upper() == "PERCENT" {
				toks = toks[1:]
			}
			if len(toks) > 1 && toks[0].Type == TOKEN_WITH && toks[1].upper() == "TIES" {
				toks = toks[2:]
			}
		default:
			return toks
		}
	}
	return toks
}

// selectItem returns the output name of one select-list item and the
// column identifiers it uses.
func selectItem(item []Token) (string, []ColumnRef) {
	expr := item
	alias := ""
	if n := len(item); n >= 2 && item[n-1].isName() {
		prev := item[n-2]
		if prev.Type == TOKEN_AS || endsOperand(prev) {
			alias = item[n-1].Literal
			expr = item[:n-1]
			if prev.Type == TOKEN_AS {
				expr = item[:n-2]
			}
		}
	}

	refs := columnRefs(expr)
	if alias != "" {
		return alias, refs
	}
	return render(expr), refs
}

func endsOperand(t Token) bool {
	switch t.Type {
	case TOKEN_IDENT, TOKEN_NUMBER, TOKEN_STRING, TOKEN_PARAM, TOKEN_RPAREN,
		TOKEN_SUBQUERY, TOKEN_END, TOKEN_NULL:
		return true
	}
	return false
}

// columnRefs returns the column identifiers in an expression, skipping
// function names and type names.
func columnRefs(expr []Token) []ColumnRef {
	if len(expr) == 1 && expr[0].Type == TOKEN_STAR {
		return []ColumnRef{{Name: core.ColumnPlaceholder}}
	}

	var refs []ColumnRef
	for i := 0; i < len(expr); i++ {
		t := expr[i]
		if !t.isName() {
			continue
		}
		if i > 0 && (expr[i-1].Type == TOKEN_AS || (expr[i-1].Type == TOKEN_OP && expr[i-1].Literal == "::")) {
			continue
		}

		parts := []string{t.Literal}
		j := i + 1
		for j+1 < len(expr) && expr[j].Type == TOKEN_DOT && (expr[j+1].isName() || expr[j+1].Type == TOKEN_STAR) {
			parts = append(parts, expr[j+1].Literal)
			j += 2
		}
		i = j - 1
		if j < len(expr) && expr[j].Type == TOKEN_LPAREN {
			continue
		}

		if len(parts) == 1 {
			refs = append(refs, ColumnRef{Name: parts[0]})
		} else {
			refs = append(refs, ColumnRef{Qualifier: parts[0], Name: strings.Join(parts[1:], ".")})
		}
	}
	return refs
}

// insertTarget handles "t [(cols)]" after INSERT [INTO].
func (x *extractor) insertTarget(st *bodyState, buf []Token) error {
	if len(buf) == 0 || !buf[0].isName() {
		return x.errorAt(st.kw, "expected table after INSERT")
	}
	name, i := qualifiedName(buf)
	alias := ""
	if i < len(buf) && buf[i].Type == TOKEN_AS {
		i++
	}
	if i < len(buf) && buf[i].isName() {
		alias = buf[i].Literal
		i++
	}
	ref := x.addTable(st.sc, name, alias)
	if !st.sc.top {
		return nil
	}
	x.result.Target = &ref

	if i < len(buf) && buf[i].Type == TOKEN_LPAREN {
		end := matchParen(buf, i)
		for _, col := range splitTokens(buf[i+1:end], TOKEN_COMMA) {
			if len(col) > 0 {
				x.result.Columns = append(x.result.Columns, render(col))
			}
		}
	}
	return nil
}

// dmlTarget handles the target of UPDATE or DELETE. At the top level the
// target may be an alias declared in a later FROM clause, so it is resolved
// once the whole statement has been read.
func (x *extractor) dmlTarget(st *bodyState, buf []Token, kw string) error {
	if len(buf) == 0 || !buf[0].isName() {
		return x.errorAt(st.kw, "expected table after "+kw)
	}
	name, i := qualifiedName(buf)
	alias := ""
	if i < len(buf) && buf[i].Type == TOKEN_AS {
		i++
	}
	if i < len(buf) && buf[i].isName() {
		alias = buf[i].Literal
	}

	if !st.sc.top {
		x.addTable(st.sc, name, alias)
		return nil
	}
	ref := x.tableRef(st.sc, name, alias)
	x.pendingTarget = &ref
	if alias != "" {
		x.result.Aliases[alias] = ref.Qualified()
	}
	return nil
}

func (x *extractor) setList(st *bodyState, buf []Token) error {
	toks, err := x.replaceSubqueries(st.sc, buf)
	if err != nil {
		return err
	}
	if len(toks) == 0 {
		return x.errorAt(st.kw, "expected column = value in SET")
	}
	for _, item := range splitTokens(toks, TOKEN_COMMA) {
		eq := -1
		for i, t := range item {
			if t.Type == TOKEN_EQ {
				eq = i
				break
			}
		}
		if eq <= 0 {
			at := st.kw
			if len(item) > 0 {
				at = item[0]
			}
			return x.errorAt(at, "expected column = value in SET")
		}
		if st.sc.top {
			x.result.Columns = append(x.result.Columns, render(item[:eq]))
		}
	}
	return nil
}

// resolveTarget settles a pending UPDATE/DELETE target. "UPDATE o SET ... FROM
// orders o" names the alias o; the target is then the aliased table.
func (x *extractor) resolveTarget(top *sink) {
	pending := x.pendingTarget
	if pending == nil {
		return
	}
	if pending.Schema == "" && pending.Alias == "" {
		for _, t := range x.result.Tables {
			if t.Alias == pending.Name && !t.InSubquery {
				ref := t
				x.result.Target = &ref
				return
			}
		}
	}

	// The target appears before any FROM table in the statement text.
	if !top.seen[*pending] {
		top.seen[*pending] = true
		x.result.Tables = append([]TableRef{*pending}, x.result.Tables...)
	}
	ref := *pending
	x.result.Target = &ref
}
