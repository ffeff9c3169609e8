package compiler

import (
	"strings"
	"testing"
)

// analyzeSource parses and analyzes a program, returning the analysis
// errors. Parse failures fail the test; analysis errors are the point.
func analyzeSource(t *testing.T, source string) []string {
	t.Helper()
	p := NewParser(source)
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors())
	}
	_, errs := Analyze(prog)
	return errs
}

// wantError asserts that at least one error mentions every given
// fragment.
func wantError(t *testing.T, errs []string, fragments ...string) {
	t.Helper()
	for _, e := range errs {
		all := true
		for _, frag := range fragments {
			if !strings.Contains(e, frag) {
				all = false
				break
			}
		}
		if all {
			return
		}
	}
	t.Errorf("expected an error mentioning %v, got: %v", fragments, errs)
}

func TestAnalyzerCleanProgram(t *testing.T) {
	source := `
class Counter {
    var value: int;

    proc increment() {
        value = value + 1;
    }

    func get(): int {
        return value;
    }
}

class Main {
    proc Main() {
        var c: Counter = new Counter();
        c.increment();
        writeln(c.get());
        halt;
    }
}
`
	errs := analyzeSource(t, source)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_DuplicateClass(t *testing.T) {
	errs := analyzeSource(t, `
class A { }
class A { }
`)
	wantError(t, errs, "duplicate class", "A")
}

func TestAnalyzer_DuplicateField(t *testing.T) {
	errs := analyzeSource(t, `
class A {
    var x: int;
    var x: string;
}
`)
	wantError(t, errs, "duplicate field", "x")
}

func TestAnalyzer_DuplicateMethod(t *testing.T) {
	errs := analyzeSource(t, `
class A {
    proc go() { }
    proc go() { }
}
`)
	wantError(t, errs, "duplicate method", "go")
}

func TestAnalyzer_DuplicateParam(t *testing.T) {
	errs := analyzeSource(t, `
class A {
    proc set(v: int, v: int) { }
}
`)
	wantError(t, errs, "duplicate parameter", "v")
}

func TestAnalyzer_UnknownParent(t *testing.T) {
	errs := analyzeSource(t, `class Dog : Animal { }`)
	wantError(t, errs, "unknown class", "Animal")
}

func TestAnalyzer_InheritanceCycle(t *testing.T) {
	errs := analyzeSource(t, `
class A : B { }
class B : A { }
`)
	wantError(t, errs, "inheritance cycle")
}

func TestAnalyzer_UndeclaredVariable(t *testing.T) {
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        writeln(missing);
    }
}
`)
	wantError(t, errs, "undeclared variable", "missing")
}

func TestAnalyzer_AssignIntroducesVariable(t *testing.T) {
	// Assigning to a fresh name declares it; reading it afterwards is
	// fine.
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        x = 1;
        writeln(x + 1);
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_FieldsVisibleInMethods(t *testing.T) {
	errs := analyzeSource(t, `
class Counter {
    var value: int;

    proc bump() {
        value = value + 1;
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_InheritedFieldsVisible(t *testing.T) {
	errs := analyzeSource(t, `
class Animal {
    var legs: int;
}
class Dog : Animal {
    func countLegs(): int {
        return legs;
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_DirectFieldAccessRejected(t *testing.T) {
	errs := analyzeSource(t, `
class Counter {
    var value: int;
}
class Main {
    proc Main() {
        var c: Counter = new Counter();
        writeln(c.value);
    }
}
`)
	wantError(t, errs, "direct field access", "only through methods")
}

func TestAnalyzer_NewUnknownClass(t *testing.T) {
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        var x: Ghost = new Ghost();
    }
}
`)
	wantError(t, errs, "unknown")
}

func TestAnalyzer_UnknownMethod(t *testing.T) {
	errs := analyzeSource(t, `
class Counter {
    var value: int;
}
class Main {
    proc Main() {
        var c: Counter = new Counter();
        c.explode();
    }
}
`)
	wantError(t, errs, "no method", "explode")
}

func TestAnalyzer_MethodArity(t *testing.T) {
	errs := analyzeSource(t, `
class Counter {
    proc set(v: int) { }
}
class Main {
    proc Main() {
        var c: Counter = new Counter();
        c.set(1, 2);
    }
}
`)
	wantError(t, errs, "takes 1 argument", "got 2")
}

func TestAnalyzer_InheritedMethodCall(t *testing.T) {
	errs := analyzeSource(t, `
class Animal {
    proc speak() { }
}
class Dog : Animal { }
class Main {
    proc Main() {
        var d: Dog = new Dog();
        d.speak();
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_TypeMismatches(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		fragment string
	}{
		{
			name: "string times int",
			source: `
class Main {
    proc Main() {
        var s: string = "a";
        var n: int = s * 2;
    }
}
`,
			fragment: "requires integer operands",
		},
		{
			name: "string condition",
			source: `
class Main {
    proc Main() {
        var s: string = "a";
        if (s) { }
    }
}
`,
			fragment: "condition must be an integer",
		},
		{
			name: "int assigned to string",
			source: `
class Main {
    proc Main() {
        var s: string = 42;
    }
}
`,
			fragment: "cannot use int value as string",
		},
		{
			name: "string compared with int",
			source: `
class Main {
    proc Main() {
        var s: string = "a";
        if (s == 1) { }
    }
}
`,
			fragment: "cannot compare",
		},
		{
			name: "str of a string",
			source: `
class Main {
    proc Main() {
        var s: string = str("a");
    }
}
`,
			fragment: "requires an integer argument",
		},
		{
			name: "len of an int",
			source: `
class Main {
    proc Main() {
        var n: int = len(5);
    }
}
`,
			fragment: "requires a string argument",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := analyzeSource(t, tc.source)
			wantError(t, errs, tc.fragment)
		})
	}
}

func TestAnalyzer_StringConcat(t *testing.T) {
	// + mixes int and string by converting; both orders are legal.
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        var s: string = "n = " + 42;
        var u: string = 42 + "!";
        var both: string = s + u;
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_DiscardedValue(t *testing.T) {
	// A value-producing statement outside Main is discarded silently,
	// which the language rejects.
	errs := analyzeSource(t, `
class Counter {
    func get(): int {
        return 1;
    }
    proc work(c: Counter) {
        c.get();
    }
}
`)
	wantError(t, errs, "discarded")
}

func TestAnalyzer_DiscardAllowedInMain(t *testing.T) {
	// Main prints bare expressions implicitly, so nothing is discarded.
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        1 + 2;
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_ProcCallStatementIsFine(t *testing.T) {
	errs := analyzeSource(t, `
class Worker {
    proc step() { }
    proc run(w: Worker) {
        w.step();
    }
}
`)
	// w.step() has no value, so nothing is discarded outside Main either.
	if len(errs) != 0 {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestAnalyzer_ReturnRules(t *testing.T) {
	errs := analyzeSource(t, `
class C {
    proc p() {
        return 1;
    }
}
`)
	wantError(t, errs, "proc p cannot return a value")

	errs = analyzeSource(t, `
class C {
    func f(): int {
        return;
    }
}
`)
	wantError(t, errs, "func f must return a value")

	errs = analyzeSource(t, `
class C {
    func f(): int {
        return "no";
    }
}
`)
	wantError(t, errs, "cannot use string value as int")
}

func TestAnalyzer_BuiltinArity(t *testing.T) {
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        var n: int = len();
    }
}
`)
	wantError(t, errs, "len", "takes 1 argument")

	errs = analyzeSource(t, `
class Main {
    proc Main() {
        var n: int = readint(5);
    }
}
`)
	wantError(t, errs, "readint", "takes 0 argument")
}

func TestAnalyzer_WriteObject(t *testing.T) {
	errs := analyzeSource(t, `
class Box { }
class Main {
    proc Main() {
        var b: Box = new Box();
        writeln(b);
    }
}
`)
	wantError(t, errs, "cannot write")
}

func TestAnalyzer_ParentAssignment(t *testing.T) {
	errs := analyzeSource(t, `
class Animal { }
class Dog : Animal { }
class Main {
    proc Main() {
        var a: Animal = new Dog();
    }
}
`)
	if len(errs) != 0 {
		t.Errorf("child-to-parent assignment should be legal, got: %v", errs)
	}

	errs = analyzeSource(t, `
class Animal { }
class Dog : Animal { }
class Main {
    proc Main() {
        var d: Dog = new Animal();
    }
}
`)
	wantError(t, errs, "cannot use Animal value as Dog")
}

func TestAnalyzer_MethodOnNonObject(t *testing.T) {
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        var n: int = 5;
        n.frob();
    }
}
`)
	wantError(t, errs, "cannot call method", "int")
}

func TestAnalyzer_ErrorPositions(t *testing.T) {
	errs := analyzeSource(t, `
class Main {
    proc Main() {
        writeln(missing);
    }
}
`)
	if len(errs) == 0 {
		t.Fatal("expected an error")
	}
	if !strings.Contains(errs[0], "line ") || !strings.Contains(errs[0], "column ") {
		t.Errorf("error should carry line and column, got: %q", errs[0])
	}
}

func TestAnalyzer_ClassTable(t *testing.T) {
	source := `
class Counter {
    var value: int;
    func get(): int {
        return value;
    }
}
`
	p := NewParser(source)
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors())
	}

	classes, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	info, ok := classes["Counter"]
	if !ok {
		t.Fatal("class table is missing Counter")
	}
	if got := info.Fields["value"]; !got.IsInt() {
		t.Errorf("field value type = %s, want int", got)
	}
	if _, ok := info.Methods["get"]; !ok {
		t.Error("class table is missing method get")
	}
}
