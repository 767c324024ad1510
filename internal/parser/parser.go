package parser

import (
	"fmt"
	"tickstep/internal/ast"
	"tickstep/internal/lexer"
	"tickstep/internal/token"
)

// Precedence table, Monkey/Pratt style.
const (
	_ int = iota
	LOWEST
	OR
	AND
	EQUALS
	LESSGREATER
	SUM
	PRODUCT
	PREFIX
	CALL
)

var precedences = map[token.TokenType]int{
	token.OR:      OR,
	token.AND:     AND,
	token.EQ:      EQUALS,
	token.NEQ:     EQUALS,
	token.LT:      LESSGREATER,
	token.GT:      LESSGREATER,
	token.LTE:     LESSGREATER,
	token.GTE:     LESSGREATER,
	token.PLUS:    SUM,
	token.MINUS:   SUM,
	token.STAR:    PRODUCT,
	token.SLASH:   PRODUCT,
	token.DSLASH:  PRODUCT,
	token.PERCENT: PRODUCT,
	token.LPAREN:  CALL,
	token.DOT:     CALL,
}

type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.TokenType]func() ast.Expression
	infixParseFns  map[token.TokenType]func(ast.Expression) ast.Expression

	errors []string
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l, errors: []string{}}

	p.nextToken()
	p.nextToken()

	p.prefixParseFns = make(map[token.TokenType]func() ast.Expression)
	p.registerPrefix(token.IDENTIFIER, p.parseIdentifier)
	p.registerPrefix(token.INT, p.parseIntegerLiteral)
	p.registerPrefix(token.FLOAT, p.parseFloatLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBoolean)
	p.registerPrefix(token.FALSE, p.parseBoolean)
	p.registerPrefix(token.NONE, p.parseNone)
	p.registerPrefix(token.NOT, p.parsePrefixExpression)
	p.registerPrefix(token.MINUS, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)

	p.infixParseFns = make(map[token.TokenType]func(ast.Expression) ast.Expression)
	p.registerInfix(token.PLUS, p.parseInfixExpression)
	p.registerInfix(token.MINUS, p.parseInfixExpression)
	p.registerInfix(token.STAR, p.parseInfixExpression)
	p.registerInfix(token.SLASH, p.parseInfixExpression)
	p.registerInfix(token.DSLASH, p.parseInfixExpression)
	p.registerInfix(token.PERCENT, p.parseInfixExpression)
	p.registerInfix(token.EQ, p.parseInfixExpression)
	p.registerInfix(token.NEQ, p.parseInfixExpression)
	p.registerInfix(token.LT, p.parseInfixExpression)
	p.registerInfix(token.GT, p.parseInfixExpression)
	p.registerInfix(token.LTE, p.parseInfixExpression)
	p.registerInfix(token.GTE, p.parseInfixExpression)
	p.registerInfix(token.AND, p.parseInfixExpression)
	p.registerInfix(token.OR, p.parseInfixExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)
	p.registerInfix(token.DOT, p.parseAttributeExpr)

	return p
}

func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) registerPrefix(t token.TokenType, fn func() ast.Expression) {
	p.prefixParseFns[t] = fn
}
func (p *Parser) registerInfix(t token.TokenType, fn func(ast.Expression) ast.Expression) {
	p.infixParseFns[t] = fn
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t token.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t token.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t token.TokenType) {
	msg := fmt.Sprintf("[%d:%d] SyntaxError: expected %s, found %s",
		p.peekToken.Line, p.peekToken.Column, t.Display(), p.peekToken.Type.Display())
	p.errors = append(p.errors, msg)
}

func (p *Parser) noPrefixParseFnError(t token.TokenType) {
	msg := fmt.Sprintf("[%d:%d] SyntaxError: unexpected %s", p.curToken.Line, p.curToken.Column, t.Display())
	p.errors = append(p.errors, msg)
}

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.peekToken.Type]; ok {
		return pr
	}
	return LOWEST
}
func (p *Parser) curPrecedence() int {
	if pr, ok := precedences[p.curToken.Type]; ok {
		return pr
	}
	return LOWEST
}

func tokBase(t token.Token) ast.Base { return ast.Base{Tok: t} }

// ParseModule parses the whole token stream into a Module. Unhandled
// statement shapes are reported through Errors(); the pre-analyzer
// assumes a module with no parse errors.
//
// Every successful parseStatement call leaves curToken positioned on
// the first token of whatever follows it (the next statement, an
// enclosing DEDENT, or EOF); after a syntax error it may stop partway
// through the line, but always past the statement's first token —
// callers never advance on its behalf.
func (p *Parser) ParseModule() *ast.Module {
	mod := &ast.Module{}
	p.skipNewlines()
	for !p.curTokenIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			mod.Statements = append(mod.Statements, stmt)
		}
	}
	return mod
}

func (p *Parser) skipNewlines() {
	for p.curTokenIs(token.NEWLINE) {
		p.nextToken()
	}
}

// endSimpleStatement consumes the NEWLINE (plus any blank lines)
// terminating a non-block statement, leaving curToken on the next
// real token; if the statement sits at end-of-block or end-of-file
// with no trailing NEWLINE, it simply advances onto the DEDENT/EOF.
func (p *Parser) endSimpleStatement() {
	if p.peekTokenIs(token.NEWLINE) {
		p.nextToken()
		p.skipNewlines()
		return
	}
	p.nextToken()
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.IF:
		return p.parseIfStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.BREAK:
		stmt := &ast.BreakStmt{Base: tokBase(p.curToken)}
		p.endSimpleStatement()
		return stmt
	case token.CONTINUE:
		stmt := &ast.ContinueStmt{Base: tokBase(p.curToken)}
		p.endSimpleStatement()
		return stmt
	case token.PASS:
		stmt := &ast.PassStmt{Base: tokBase(p.curToken)}
		p.endSimpleStatement()
		return stmt
	case token.GLOBAL:
		return p.parseGlobalStmt()
	case token.NONLOCAL:
		return p.parseNonlocalStmt()
	case token.DEF:
		return p.parseFunctionDef()
	case token.CLASS:
		return p.parseClassDef()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.IDENTIFIER:
		return p.parseAssignStmt()
	default:
		p.errors = append(p.errors, fmt.Sprintf(
			"[%d:%d] UnsupportedConstruct: statement cannot begin with %s",
			p.curToken.Line, p.curToken.Column, p.curToken.Type.Display()))
		p.nextToken()
		return nil
	}
}

func (p *Parser) parseAssignStmt() ast.Statement {
	startTok := p.curToken
	target := p.parsePostfixTarget()
	if !p.expectPeek(token.ASSIGN) {
		for !p.curTokenIs(token.NEWLINE) && !p.curTokenIs(token.EOF) {
			p.nextToken()
		}
		p.skipNewlines()
		return nil
	}
	p.nextToken()
	value := p.parseExpression(LOWEST)
	stmt := &ast.AssignStmt{Base: tokBase(startTok), Target: target, Value: value}
	p.endSimpleStatement()
	return stmt
}

// parsePostfixTarget parses a bare name or a chain of attribute
// accesses, per spec.md §1's restriction that assignment targets are
// a single name or a single attribute expression.
func (p *Parser) parsePostfixTarget() ast.Expression {
	var expr ast.Expression = &ast.Identifier{Base: tokBase(p.curToken), Value: p.curToken.Literal}
	for p.peekTokenIs(token.DOT) {
		p.nextToken() // consume '.'
		if !p.expectPeek(token.IDENTIFIER) {
			return expr
		}
		expr = &ast.AttributeExpr{Base: tokBase(p.curToken), Left: expr, Attr: p.curToken.Literal}
	}
	return expr
}

func (p *Parser) parseIfStmt() ast.Statement {
	tok := p.curToken
	p.nextToken()
	test := p.parseExpression(LOWEST)
	if !p.expectPeek(token.COLON) {
		return nil
	}
	then := p.parseBlock()
	stmt := &ast.IfStmt{Base: tokBase(tok), Test: test, Then: then}
	if p.curTokenIs(token.ELSE) {
		if !p.expectPeek(token.COLON) {
			return stmt
		}
		stmt.Else = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseWhileStmt() ast.Statement {
	tok := p.curToken
	p.nextToken()
	test := p.parseExpression(LOWEST)
	if !p.expectPeek(token.COLON) {
		return nil
	}
	body := p.parseBlock()
	return &ast.WhileStmt{Base: tokBase(tok), Test: test, Body: body}
}

func (p *Parser) parseFunctionDef() ast.Statement {
	tok := p.curToken
	if !p.expectPeek(token.IDENTIFIER) {
		p.nextToken()
		return nil
	}
	name := p.curToken.Literal
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	var params []string
	if !p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		params = append(params, p.curToken.Literal)
		for p.peekTokenIs(token.COMMA) {
			p.nextToken()
			p.nextToken()
			params = append(params, p.curToken.Literal)
		}
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	if !p.expectPeek(token.COLON) {
		return nil
	}
	body := p.parseBlock()
	return &ast.FunctionDef{Base: tokBase(tok), Name: name, Params: params, Body: body}
}

func (p *Parser) parseClassDef() ast.Statement {
	tok := p.curToken
	if !p.expectPeek(token.IDENTIFIER) {
		p.nextToken()
		return nil
	}
	name := p.curToken.Literal
	var bases []*ast.Identifier
	if p.peekTokenIs(token.LPAREN) {
		p.nextToken()
		if !p.peekTokenIs(token.RPAREN) {
			p.nextToken()
			bases = append(bases, &ast.Identifier{Base: tokBase(p.curToken), Value: p.curToken.Literal})
			for p.peekTokenIs(token.COMMA) {
				p.nextToken()
				p.nextToken()
				bases = append(bases, &ast.Identifier{Base: tokBase(p.curToken), Value: p.curToken.Literal})
			}
		}
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
	}
	if !p.expectPeek(token.COLON) {
		return nil
	}
	body := p.parseBlock()
	return &ast.ClassDef{Base: tokBase(tok), Name: name, Bases: bases, Body: body}
}

func (p *Parser) parseReturnStmt() ast.Statement {
	tok := p.curToken
	stmt := &ast.ReturnStmt{Base: tokBase(tok)}
	if p.peekTokenIs(token.NEWLINE) || p.peekTokenIs(token.EOF) || p.peekTokenIs(token.DEDENT) {
		p.endSimpleStatement()
		return stmt
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	p.endSimpleStatement()
	return stmt
}

func (p *Parser) parseGlobalStmt() ast.Statement {
	tok := p.curToken
	var names []string
	if !p.expectPeek(token.IDENTIFIER) {
		p.nextToken()
		return nil
	}
	names = append(names, p.curToken.Literal)
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		names = append(names, p.curToken.Literal)
	}
	stmt := &ast.GlobalStmt{Base: tokBase(tok), Names: names}
	p.endSimpleStatement()
	return stmt
}

func (p *Parser) parseNonlocalStmt() ast.Statement {
	tok := p.curToken
	var names []string
	if !p.expectPeek(token.IDENTIFIER) {
		p.nextToken()
		return nil
	}
	names = append(names, p.curToken.Literal)
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		names = append(names, p.curToken.Literal)
	}
	stmt := &ast.NonlocalStmt{Base: tokBase(tok), Names: names}
	p.endSimpleStatement()
	return stmt
}

// parseBlock expects curToken to be COLON; it consumes
// COLON NEWLINE INDENT stmt* DEDENT and leaves curToken positioned on
// whatever follows the block (an `else` keyword, the next statement
// at the same level, an outer DEDENT, or EOF).
func (p *Parser) parseBlock() []ast.Statement {
	if !p.expectPeek(token.NEWLINE) {
		return nil
	}
	if !p.expectPeek(token.INDENT) {
		return nil
	}
	p.nextToken()
	p.skipNewlines()
	var stmts []ast.Statement
	for !p.curTokenIs(token.DEDENT) && !p.curTokenIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	if p.curTokenIs(token.DEDENT) {
		p.nextToken()
		p.skipNewlines()
	}
	return stmts
}

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken.Type)
		return nil
	}
	left := prefix()

	for !p.peekTokenIs(token.NEWLINE) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Base: tokBase(p.curToken), Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	return &ast.IntegerLiteral{Base: tokBase(p.curToken), Value: p.curToken.Literal}
}

func (p *Parser) parseFloatLiteral() ast.Expression {
	var f float64
	fmt.Sscanf(p.curToken.Literal, "%g", &f)
	return &ast.FloatLiteral{Base: tokBase(p.curToken), Value: f}
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Base: tokBase(p.curToken), Value: p.curToken.Literal}
}

func (p *Parser) parseBoolean() ast.Expression {
	return &ast.BooleanLiteral{Base: tokBase(p.curToken), Value: p.curTokenIs(token.TRUE)}
}

func (p *Parser) parseNone() ast.Expression {
	return &ast.NoneLiteral{Base: tokBase(p.curToken)}
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	tok := p.curToken
	expr := &ast.PrefixExpression{Base: tokBase(tok), Operator: operatorLiteral(tok)}
	p.nextToken()
	expr.Right = p.parseExpression(PREFIX)
	return expr
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	tok := p.curToken
	expr := &ast.InfixExpression{Base: tokBase(tok), Left: left, Operator: operatorLiteral(tok)}
	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	return expr
}

func operatorLiteral(tok token.Token) string {
	switch tok.Type {
	case token.AND:
		return "and"
	case token.OR:
		return "or"
	case token.NOT:
		return "not"
	default:
		return tok.Literal
	}
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	tok := p.curToken
	expr := &ast.CallExpression{Base: tokBase(tok), Function: function}
	expr.Arguments = p.parseCallArguments()
	return expr
}

func (p *Parser) parseCallArguments() []ast.Expression {
	var args []ast.Expression
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return args
	}
	p.nextToken()
	args = append(args, p.parseExpression(LOWEST))
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		args = append(args, p.parseExpression(LOWEST))
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return args
}

func (p *Parser) parseAttributeExpr(left ast.Expression) ast.Expression {
	tok := p.curToken
	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	return &ast.AttributeExpr{Base: tokBase(tok), Left: left, Attr: p.curToken.Literal}
}
