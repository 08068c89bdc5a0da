// Tests the lexer by verifying that a small ToyC program is tokenized
// properly. The expected token tuple slice was written out by hand; the
// lexer must emit the same tokens in the same order as it traverses the
// source string from start to finish.

package frontend

import (
	"testing"
)

// TestLexer tests the lexing state functions against a hand-checked token
// stream.
func TestLexer(t *testing.T) {
	src := `// sum of two numbers
int add(int a, int b) {
    return a + b; /* inline */
}

int main() {
    int x = 10;
    if (x >= 5 && x != 7) {
        x = x % 3;
    }
    while (x < 100) { x = x * 2; }
    return add(x, -1);
}
`

	exp := []item{
		{val: "int", typ: INT, line: 2},
		{val: "add", typ: IDENTIFIER, line: 2},
		{val: "(", typ: '(', line: 2},
		{val: "int", typ: INT, line: 2},
		{val: "a", typ: IDENTIFIER, line: 2},
		{val: ",", typ: ',', line: 2},
		{val: "int", typ: INT, line: 2},
		{val: "b", typ: IDENTIFIER, line: 2},
		{val: ")", typ: ')', line: 2},
		{val: "{", typ: '{', line: 2},
		{val: "return", typ: RETURN, line: 3},
		{val: "a", typ: IDENTIFIER, line: 3},
		{val: "+", typ: '+', line: 3},
		{val: "b", typ: IDENTIFIER, line: 3},
		{val: ";", typ: ';', line: 3},
		{val: "}", typ: '}', line: 4},
		{val: "int", typ: INT, line: 6},
		{val: "main", typ: IDENTIFIER, line: 6},
		{val: "(", typ: '(', line: 6},
		{val: ")", typ: ')', line: 6},
		{val: "{", typ: '{', line: 6},
		{val: "int", typ: INT, line: 7},
		{val: "x", typ: IDENTIFIER, line: 7},
		{val: "=", typ: '=', line: 7},
		{val: "10", typ: INTEGER, line: 7},
		{val: ";", typ: ';', line: 7},
		{val: "if", typ: IF, line: 8},
		{val: "(", typ: '(', line: 8},
		{val: "x", typ: IDENTIFIER, line: 8},
		{val: ">=", typ: GE, line: 8},
		{val: "5", typ: INTEGER, line: 8},
		{val: "&&", typ: AND, line: 8},
		{val: "x", typ: IDENTIFIER, line: 8},
		{val: "!=", typ: NE, line: 8},
		{val: "7", typ: INTEGER, line: 8},
		{val: ")", typ: ')', line: 8},
		{val: "{", typ: '{', line: 8},
		{val: "x", typ: IDENTIFIER, line: 9},
		{val: "=", typ: '=', line: 9},
		{val: "x", typ: IDENTIFIER, line: 9},
		{val: "%", typ: '%', line: 9},
		{val: "3", typ: INTEGER, line: 9},
		{val: ";", typ: ';', line: 9},
		{val: "}", typ: '}', line: 10},
		{val: "while", typ: WHILE, line: 11},
		{val: "(", typ: '(', line: 11},
		{val: "x", typ: IDENTIFIER, line: 11},
		{val: "<", typ: '<', line: 11},
		{val: "100", typ: INTEGER, line: 11},
		{val: ")", typ: ')', line: 11},
		{val: "{", typ: '{', line: 11},
		{val: "x", typ: IDENTIFIER, line: 11},
		{val: "=", typ: '=', line: 11},
		{val: "x", typ: IDENTIFIER, line: 11},
		{val: "*", typ: '*', line: 11},
		{val: "2", typ: INTEGER, line: 11},
		{val: ";", typ: ';', line: 11},
		{val: "}", typ: '}', line: 11},
		{val: "return", typ: RETURN, line: 12},
		{val: "add", typ: IDENTIFIER, line: 12},
		{val: "(", typ: '(', line: 12},
		{val: "x", typ: IDENTIFIER, line: 12},
		{val: ",", typ: ',', line: 12},
		{val: "-", typ: '-', line: 12},
		{val: "1", typ: INTEGER, line: 12},
		{val: ")", typ: ')', line: 12},
		{val: ";", typ: ';', line: 12},
		{val: "}", typ: '}', line: 13},
	}

	l := newLexer(src, lexGlobal)
	go l.run()

	for i1 := 0; ; i1++ {
		tok := l.nextItem()
		if tok.typ == itemEOF {
			if i1 < len(exp) {
				t.Fatalf("expected %d tokens, got %d", len(exp), i1)
			}
			break
		}
		if tok.typ == itemError {
			t.Fatalf("(token %d): lexer error: %s", i1+1, tok.val)
		}
		if i1 >= len(exp) {
			t.Fatalf("expected %d tokens, got more: %s", len(exp), tok.String())
		}
		if tok.typ != exp[i1].typ || tok.val != exp[i1].val {
			t.Errorf("(token %d): expected %q, got %s", i1+1, exp[i1].val, tok.String())
		} else if tok.line != exp[i1].line {
			t.Errorf("(token %d): expected %q on line %d, got line %d",
				i1+1, exp[i1].val, exp[i1].line, tok.line)
		}
	}
}

// TestLexerUnterminatedComment verifies that an unterminated block comment
// is reported as a lexical error.
func TestLexerUnterminatedComment(t *testing.T) {
	l := newLexer("int main() { /* no end", lexGlobal)
	go l.run()
	for {
		tok := l.nextItem()
		if tok.typ == itemError {
			return
		}
		if tok.typ == itemEOF {
			t.Fatal("expected lexer error for unterminated block comment, got EOF")
		}
	}
}

// TestLexerBadCharacter verifies that a stray '&' is rejected.
func TestLexerBadCharacter(t *testing.T) {
	l := newLexer("int main() { return 1 & 2; }", lexGlobal)
	go l.run()
	for {
		tok := l.nextItem()
		if tok.typ == itemError {
			return
		}
		if tok.typ == itemEOF {
			t.Fatal("expected lexer error for single '&', got EOF")
		}
	}
}
