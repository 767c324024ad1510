package lexer

import (
	"testing"

	"tickstep/internal/token"
)

func TestNextTokenFlat(t *testing.T) {
	input := `x = 5
y = x + 10 * 2
z = x // 2 % 3
flag = x == 10 and not y != 3
s = "hello\nworld"
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.IDENTIFIER, "x"},
		{token.ASSIGN, "="},
		{token.INT, "5"},
		{token.NEWLINE, "\n"},
		{token.IDENTIFIER, "y"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "x"},
		{token.PLUS, "+"},
		{token.INT, "10"},
		{token.STAR, "*"},
		{token.INT, "2"},
		{token.NEWLINE, "\n"},
		{token.IDENTIFIER, "z"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "x"},
		{token.DSLASH, "//"},
		{token.INT, "2"},
		{token.PERCENT, "%"},
		{token.INT, "3"},
		{token.NEWLINE, "\n"},
		{token.IDENTIFIER, "flag"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "x"},
		{token.EQ, "=="},
		{token.INT, "10"},
		{token.AND, "and"},
		{token.NOT, "not"},
		{token.IDENTIFIER, "y"},
		{token.NEQ, "!="},
		{token.INT, "3"},
		{token.NEWLINE, "\n"},
		{token.IDENTIFIER, "s"},
		{token.ASSIGN, "="},
		{token.STRING, "hello\nworld"},
		{token.NEWLINE, "\n"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal %q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextTokenIndentation(t *testing.T) {
	input := `while x < 3:
    x = x + 1
    if x == 2:
        y = 1
    y = 2
z = 0
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.WHILE, "while"},
		{token.IDENTIFIER, "x"},
		{token.LT, "<"},
		{token.INT, "3"},
		{token.COLON, ":"},
		{token.NEWLINE, "\n"},
		{token.INDENT, ""},
		{token.IDENTIFIER, "x"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "x"},
		{token.PLUS, "+"},
		{token.INT, "1"},
		{token.NEWLINE, "\n"},
		{token.IF, "if"},
		{token.IDENTIFIER, "x"},
		{token.EQ, "=="},
		{token.INT, "2"},
		{token.COLON, ":"},
		{token.NEWLINE, "\n"},
		{token.INDENT, ""},
		{token.IDENTIFIER, "y"},
		{token.ASSIGN, "="},
		{token.INT, "1"},
		{token.NEWLINE, "\n"},
		{token.DEDENT, ""},
		{token.IDENTIFIER, "y"},
		{token.ASSIGN, "="},
		{token.INT, "2"},
		{token.NEWLINE, "\n"},
		{token.DEDENT, ""},
		{token.IDENTIFIER, "z"},
		{token.ASSIGN, "="},
		{token.INT, "0"},
		{token.NEWLINE, "\n"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal %q, line %d)",
				i, tt.expectedType, tok.Type, tok.Literal, tok.Line)
		}
	}
}

func TestNextTokenAttributeAndCall(t *testing.T) {
	input := "b.m()\n"
	tests := []token.TokenType{
		token.IDENTIFIER, token.DOT, token.IDENTIFIER, token.LPAREN, token.RPAREN, token.NEWLINE, token.EOF,
	}
	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q", i, want, tok.Type)
		}
	}
}
