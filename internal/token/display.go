package token

var tokenDisplay = map[TokenType]string{
	INT:        "integer",
	FLOAT:      "float",
	STRING:     "string",
	IDENTIFIER: "identifier",

	DEF:      "def",
	CLASS:    "class",
	IF:       "if",
	ELSE:     "else",
	WHILE:    "while",
	RETURN:   "return",
	BREAK:    "break",
	CONTINUE: "continue",
	PASS:     "pass",
	GLOBAL:   "global",
	NONLOCAL: "nonlocal",

	TRUE:  "True",
	FALSE: "False",
	NONE:  "None",

	PLUS:    "'+'",
	MINUS:   "'-'",
	STAR:    "'*'",
	SLASH:   "'/'",
	DSLASH:  "'//'",
	PERCENT: "'%'",

	GT:  "'>'",
	LT:  "'<'",
	GTE: "'>='",
	LTE: "'<='",
	EQ:  "'=='",
	NEQ: "'!='",

	AND: "'and'",
	OR:  "'or'",
	NOT: "'not'",

	ASSIGN: "'='",

	LPAREN: "'('",
	RPAREN: "')'",
	COMMA:  "','",
	COLON:  "':'",
	DOT:    "'.'",

	NEWLINE: "newline",
	INDENT:  "indent",
	DEDENT:  "dedent",
	EOF:     "end of file",
	ILLEGAL: "illegal token",
}

func (t TokenType) Display() string {
	if s, ok := tokenDisplay[t]; ok {
		return s
	}
	return string(t)
}
