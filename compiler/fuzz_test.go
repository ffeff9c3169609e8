package compiler

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Basic tokens
		`( ) { } , : ; . + - * / %`,
		`** == != <= >= && || = < > !`,
		// Integers
		`42`, `0`, `007`, `18446744073709551615`,
		// Strings
		`"hello"`, `""`, `"tab\there"`, `"line\n"`, `"quote\""`, `"back\\slash"`,
		// Characters
		`'a'`, `'Z'`, `' '`, `'\n'`, `'\''`, `'\\'`,
		// Identifiers and keywords
		`foo`, `Counter`, `_private`, `x2`,
		`class var proc func if else while return halt write writeln new`,
		`int string len str readint readchar`,
		// Comments
		"// a comment\nfoo",
		`foo /* block */ bar`,
		"/* multi\nline */",
		// Complete snippets
		`x = 42;`,
		`c.get()`,
		`writeln(1 + 2);`,
		`class Counter { var value: int; }`,
		"func add(a: int, b: int): int {\n    return a + b;\n}",
		// Edge cases
		`'`, `"`, `'unterminated`, `"unterminated`, `/* never closed`,
		`"bad \q escape"`, `'\q'`, `&`, `|`, `@`, `#`, `$`, `~`,
		// Unicode
		`"こんにちは"`, `café`, `naïve`,
		// Empty and whitespace
		``, `   `, "\t\n\r",
		// Operator soup
		`+-*/%**==!=<=>=&&||=<>!.,:;(){}`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data)
		reachedEOF := false
		for i := 0; i < len(data)+100; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF {
				reachedEOF = true
				break
			}
		}
		if !reachedEOF {
			t.Fatalf("lexer failed to reach EOF on input %q", data)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: ensure the parser never panics on arbitrary input.
// Parse errors are acceptable; panics are not.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	seeds := []string{
		// Expressions
		`42`, `-5`, `"hello"`, `'a'`, `foo`,
		`1 + 2 * 3`, `(1 + 2) * 3`, `2 ** 3 ** 2`,
		`a < b && c < d || e == f`,
		`!done`, `--x`,
		`c.get()`, `c.add(1, 2)`, `c.a().b().c()`,
		`c.value`,
		`new Counter()`, `new Counter(42)`,
		`len("abc")`, `str(42)`, `int("7")`, `readint()`, `readchar()`,
		`len + 1`,

		// Statements inside a class
		`class Main { proc Main() { var x: int = 5; } }`,
		`class Main { proc Main() { x = 1; writeln(x); } }`,
		`class Main { proc Main() { if (x < 0) { halt; } else { writeln(x); } } }`,
		`class Main { proc Main() { while (i < 10) { i = i + 1; } } }`,
		`class Main { proc Main() { writeln(); write("x"); } }`,
		`class Main { proc Main() { 1 + 2; } }`,

		// Declarations
		`class Counter { var value: int; proc increment() { value = value + 1; } }`,
		`class Dog : Animal { }`,
		`class C { func f(a: int, b: string): int { return a; } }`,

		// Malformed fragments
		``, `class`, `class {`, `class X`, `class X {`,
		`class X { var }`, `class X { proc }`, `class X { proc p( }`,
		`class X { proc p() { var x: = 5; } }`,
		`class X { proc p() { if ( } }`,
		`class X { proc p() { return }`,
		`(`, `)`, `{`, `}`, `;`, `.`, `=`, `==`,
		`new`, `new (`, `x.`, `x.(`,
		`write`, `write(`, `write();`,

		// Nesting
		`((((((1))))))`,
		strings.Repeat("(", 300) + "1" + strings.Repeat(")", 300),
		`class X { proc p() { { { { halt; } } } } }`,

		// Error tokens mid-stream
		`class X { proc p() { x = 1 @ 2; } }`,
		`class X { proc p() { s = "unterminated; } }`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		// Whole programs.
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("ParseProgram panicked on input %q: %v", data, r)
				}
			}()
			p := NewParser(data)
			_ = p.ParseProgram()
			_ = p.Errors()
		}()

		// Bare expressions.
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("parseExpression panicked on input %q: %v", data, r)
				}
			}()
			p := NewParser(data)
			_ = p.parseExpression()
			_ = p.Errors()
		}()
	})
}

// ---------------------------------------------------------------------------
// FuzzAnalyzer: run semantic analysis on everything that parses.
// Analysis errors are acceptable; panics are bugs.
// ---------------------------------------------------------------------------

func FuzzAnalyzer(f *testing.F) {
	seeds := []string{
		// Clean programs
		`class Main { proc Main() { writeln(1 + 2); halt; } }`,
		`class Counter {
    var value: int;
    proc increment() { value = value + 1; }
    func get(): int { return value; }
}
class Main {
    proc Main() {
        var c: Counter = new Counter();
        c.increment();
        writeln(c.get());
    }
}`,

		// Inheritance
		`class Animal { var legs: int; proc speak() { } }
class Dog : Animal { func countLegs(): int { return legs; } }`,

		// Duplicate declarations
		`class A { } class A { }`,
		`class A { var x: int; var x: int; }`,
		`class A { proc p() { } proc p() { } }`,
		`class A { proc p(v: int, v: int) { } }`,

		// Inheritance problems
		`class Dog : Animal { }`,
		`class A : B { } class B : A { }`,
		`class A : A { }`,

		// Scope problems
		`class Main { proc Main() { writeln(missing); } }`,
		`class Main { proc Main() { x = y; } }`,
		`class Main { proc Main() { var x: int; var x: int; } }`,

		// Encapsulation
		`class C { var v: int; }
class Main { proc Main() { var c: C = new C(); writeln(c.v); } }`,

		// Type mixing
		`class Main { proc Main() { var s: string = 1 * "x"; } }`,
		`class Main { proc Main() { var s: string = "n=" + 42; } }`,
		`class Main { proc Main() { if ("s") { } } }`,
		`class Main { proc Main() { var n: int = len(5); } }`,

		// Discards and returns
		`class C { func f(): int { return 1; } proc p(c: C) { c.f(); } }`,
		`class C { proc p() { return 1; } }`,
		`class C { func f(): int { return; } }`,

		// Method resolution
		`class C { proc m(a: int) { } }
class Main { proc Main() { var c: C = new C(); c.m(1, 2); } }`,
		`class Main { proc Main() { var n: int = 1; n.m(); } }`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("analyzer panicked on input %q: %v", data, r)
			}
		}()

		p := NewParser(data)
		prog := p.ParseProgram()
		if len(p.Errors()) > 0 || prog == nil {
			return // parse errors are fine
		}
		_, _ = Analyze(prog)
	})
}
