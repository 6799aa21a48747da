package cypher

import (
	"errors"
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	tokens, err := NewLexer("MATCH (n:Person {name: 'Alice'}) RETURN n.age >= 21").Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	kinds := []struct {
		kind TokenKind
		text string
	}{
		{TokenIdent, "MATCH"}, {TokenOp, "("}, {TokenIdent, "n"}, {TokenOp, ":"},
		{TokenIdent, "Person"}, {TokenOp, "{"}, {TokenIdent, "name"}, {TokenOp, ":"},
		{TokenString, "Alice"}, {TokenOp, "}"}, {TokenOp, ")"}, {TokenIdent, "RETURN"},
		{TokenIdent, "n"}, {TokenOp, "."}, {TokenIdent, "age"}, {TokenOp, ">="},
		{TokenInt, "21"}, {TokenEOF, ""},
	}
	if len(tokens) != len(kinds) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(kinds), tokens)
	}
	for i, want := range kinds {
		if tokens[i].Kind != want.kind || tokens[i].Text != want.text {
			t.Errorf("token %d = (%v, %q), want (%v, %q)", i, tokens[i].Kind, tokens[i].Text, want.kind, want.text)
		}
	}
}

func TestLexerNumbersAndRanges(t *testing.T) {
	tokens, err := NewLexer("*1..3 2.5 1e3").Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	texts := []string{"*", "1", "..", "3", "2.5", "1e3"}
	kinds := []TokenKind{TokenOp, TokenInt, TokenOp, TokenInt, TokenFloat, TokenFloat}
	for i := range texts {
		if tokens[i].Text != texts[i] || tokens[i].Kind != kinds[i] {
			t.Errorf("token %d = (%v, %q), want (%v, %q)", i, tokens[i].Kind, tokens[i].Text, kinds[i], texts[i])
		}
	}
}

func TestLexerStringEscapes(t *testing.T) {
	tokens, err := NewLexer(`'a\'b' "c\nd" 'uA'`).Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	want := []string{"a'b", "c\nd", "uA"}
	for i, w := range want {
		if tokens[i].Text != w {
			t.Errorf("string %d = %q, want %q", i, tokens[i].Text, w)
		}
	}
}

func TestLexerParamsAndArrows(t *testing.T) {
	tokens, err := NewLexer("$name <- -> -- <-- -->").Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if tokens[0].Kind != TokenParam || tokens[0].Text != "name" {
		t.Errorf("param = (%v, %q)", tokens[0].Kind, tokens[0].Text)
	}
	texts := []string{"<-", "->", "-", "-", "<-", "-", "-", "->"}
	for i, w := range texts {
		tok := tokens[i+1]
		if tok.Text != w {
			t.Errorf("op %d = %q, want %q", i, tok.Text, w)
		}
	}
}

func TestLexerErrorsCarryPositions(t *testing.T) {
	cases := []struct {
		in   string
		line int
	}{
		{"RETURN 'unterminated", 1},
		{"RETURN\n'bad\\q'", 2},
		{"RETURN ~", 1},
	}
	for _, tc := range cases {
		_, err := NewLexer(tc.in).Tokenize()
		if err == nil {
			t.Errorf("Tokenize(%q): expected error", tc.in)
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Tokenize(%q): error %T, want *ParseError", tc.in, err)
			continue
		}
		if pe.Line != tc.line {
			t.Errorf("Tokenize(%q): line %d, want %d", tc.in, pe.Line, tc.line)
		}
	}
}

func TestLexerComments(t *testing.T) {
	tokens, err := NewLexer("RETURN 1 // trailing\n/* block */ + 2").Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	texts := []string{"RETURN", "1", "+", "2"}
	for i, w := range texts {
		if tokens[i].Text != w {
			t.Errorf("token %d = %q, want %q", i, tokens[i].Text, w)
		}
	}
}
