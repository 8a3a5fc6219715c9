package lexer

import (
	"testing"

	"github.com/ember-lang/ember/token"
	"github.com/stretchr/testify/require"
)

func TestNextTokenBasic(t *testing.T) {
	src := `let five = 5;
let add = fn(x, y) {
  x + y;
};
let result = add(five, 10);
!-/ *5;
5 < 10 > 5;
if (5 < 10) {
	return true;
} else {
	return false;
}
10 == 10;
10 != 9;
"foobar"
"foo bar"
[1, 2];
{"one": 1};
5 % 2;
5 & 2 | 1 ^ 3;
~5;
1 << 2 >> 1;
x += 1;
`

	tests := []struct {
		expectedType    token.Type
		expectedLiteral string
	}{
		{token.LET, "let"}, {token.IDENT, "five"}, {token.ASSIGN, "="}, {token.INT, "5"}, {token.SEMICOLON, ";"},
		{token.LET, "let"}, {token.IDENT, "add"}, {token.ASSIGN, "="}, {token.FUNCTION, "fn"},
		{token.LPAREN, "("}, {token.IDENT, "x"}, {token.COMMA, ","}, {token.IDENT, "y"}, {token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.IDENT, "x"}, {token.PLUS, "+"}, {token.IDENT, "y"}, {token.SEMICOLON, ";"},
		{token.RBRACE, "}"}, {token.SEMICOLON, ";"},
		{token.LET, "let"}, {token.IDENT, "result"}, {token.ASSIGN, "="}, {token.IDENT, "add"},
		{token.LPAREN, "("}, {token.IDENT, "five"}, {token.COMMA, ","}, {token.INT, "10"}, {token.RPAREN, ")"}, {token.SEMICOLON, ";"},
		{token.BANG, "!"}, {token.MINUS, "-"}, {token.SLASH, "/"}, {token.ASTERISK, "*"}, {token.INT, "5"}, {token.SEMICOLON, ";"},
		{token.INT, "5"}, {token.LT, "<"}, {token.INT, "10"}, {token.GT, ">"}, {token.INT, "5"}, {token.SEMICOLON, ";"},
		{token.IF, "if"}, {token.LPAREN, "("}, {token.INT, "5"}, {token.LT, "<"}, {token.INT, "10"}, {token.RPAREN, ")"},
		{token.LBRACE, "{"}, {token.RETURN, "return"}, {token.TRUE, "true"}, {token.SEMICOLON, ";"}, {token.RBRACE, "}"},
		{token.ELSE, "else"}, {token.LBRACE, "{"}, {token.RETURN, "return"}, {token.FALSE, "false"}, {token.SEMICOLON, ";"}, {token.RBRACE, "}"},
		{token.INT, "10"}, {token.EQ, "=="}, {token.INT, "10"}, {token.SEMICOLON, ";"},
		{token.INT, "10"}, {token.NEQ, "!="}, {token.INT, "9"}, {token.SEMICOLON, ";"},
		{token.STRING, "foobar"},
		{token.STRING, "foo bar"},
		{token.LBRACKET, "["}, {token.INT, "1"}, {token.COMMA, ","}, {token.INT, "2"}, {token.RBRACKET, "]"}, {token.SEMICOLON, ";"},
		{token.LBRACE, "{"}, {token.STRING, "one"}, {token.COLON, ":"}, {token.INT, "1"}, {token.RBRACE, "}"}, {token.SEMICOLON, ";"},
		{token.INT, "5"}, {token.PERCENT, "%"}, {token.INT, "2"}, {token.SEMICOLON, ";"},
		{token.INT, "5"}, {token.BIT_AND, "&"}, {token.INT, "2"}, {token.BIT_OR, "|"}, {token.INT, "1"}, {token.BIT_XOR, "^"}, {token.INT, "3"}, {token.SEMICOLON, ";"},
		{token.BIT_NOT, "~"}, {token.INT, "5"}, {token.SEMICOLON, ";"},
		{token.INT, "1"}, {token.SHL, "<<"}, {token.INT, "2"}, {token.SHR, ">>"}, {token.INT, "1"}, {token.SEMICOLON, ";"},
		{token.IDENT, "x"}, {token.PLUS_ASSIGN, "+="}, {token.INT, "1"}, {token.SEMICOLON, ";"},
		{token.EOF, ""},
	}

	l := New(src)
	for i, tt := range tests {
		tok := l.NextToken()
		require.Equalf(t, tt.expectedType, tok.Type, "test %d - wrong type for %q", i, tok.Literal)
		require.Equalf(t, tt.expectedLiteral, tok.Literal, "test %d - wrong literal", i)
	}
}

func TestUnclosedString(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	require.Equal(t, token.INVALID, tok.Type)
	require.Equal(t, "Unclosed string literal", tok.Literal)
}

func TestFloatLiteral(t *testing.T) {
	l := New(`3.14 5`)
	tok := l.NextToken()
	require.Equal(t, token.FLOAT, tok.Type)
	require.Equal(t, "3.14", tok.Literal)
	tok = l.NextToken()
	require.Equal(t, token.INT, tok.Type)
}

func TestLineColumnTracking(t *testing.T) {
	l := New("let x\n= 5;")
	tok := l.NextToken() // let
	require.Equal(t, 1, tok.Line)
	require.Equal(t, 1, tok.Column)
	tok = l.NextToken() // x
	require.Equal(t, 1, tok.Line)
	tok = l.NextToken() // =
	require.Equal(t, 2, tok.Line)
	require.Equal(t, 1, tok.Column)
}

func TestIllegalCharacter(t *testing.T) {
	l := New("@")
	tok := l.NextToken()
	require.Equal(t, token.ILLEGAL, tok.Type)
	require.Equal(t, "@", tok.Literal)
}
