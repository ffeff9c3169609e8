package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/codegen"
)

// buildModule compiles source through the whole front end.
func buildModule(t *testing.T, source string) *arxmod.Module {
	t.Helper()
	mod, err := codegen.Build(source, codegen.BuildOptions{AppName: "test"})
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	return mod
}

// runSource compiles and executes source, returning the halted machine
// and everything it wrote.
func runSource(t *testing.T, source string) (*VM, string) {
	t.Helper()
	return runSourceInput(t, source, "")
}

func runSourceInput(t *testing.T, source, input string) (*VM, string) {
	t.Helper()
	mod := buildModule(t, source)
	var out bytes.Buffer
	m, err := New(mod, Config{Output: &out, Input: strings.NewReader(input)})
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run error: %v\noutput so far: %q", err, out.String())
	}
	return m, out.String()
}

// runForFault compiles and executes source expecting a fault.
func runForFault(t *testing.T, source string, want Fault) *FaultError {
	t.Helper()
	mod := buildModule(t, source)
	var out bytes.Buffer
	m, err := New(mod, Config{Output: &out, Input: strings.NewReader("")})
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	err = m.Run()
	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("run error = %v, want a fault", err)
	}
	if fe.Fault != want {
		t.Fatalf("fault = %v, want %v (%v)", fe.Fault, want, fe)
	}
	if m.State() != StateFaulted {
		t.Errorf("state = %v, want faulted", m.State())
	}
	return fe
}

func TestRunArithmetic(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				writeln(1 + 2);
			}
		}
	`)
	if out != "3\n" {
		t.Errorf("output = %q, want %q", out, "3\n")
	}
}

func TestRunOperatorSuite(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				writeln(10 - 3);
				writeln(6 * 7);
				writeln(9 / 2);
				writeln(9 % 2);
				writeln(2 ** 10);
				writeln(-5);
				writeln(3 < 4);
				writeln(4 <= 3);
				writeln(5 > 2);
				writeln(5 >= 6);
				writeln(1 == 1);
				writeln(1 != 1);
				writeln(1 && 0);
				writeln(1 || 0);
				writeln(!7);
			}
		}
	`)
	want := "7\n42\n4\n1\n1024\n-5\n1\n0\n1\n0\n1\n0\n0\n1\n0\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunCounter(t *testing.T) {
	_, out := runSource(t, `
		class Counter {
			var value: int;

			func get(): int {
				return value;
			}

			proc increment() {
				value = value + 1;
			}
		}
		class Main {
			proc Main() {
				var c: Counter = new Counter();
				c.increment();
				c.increment();
				c.increment();
				writeln(c.get());
			}
		}
	`)
	if out != "3\n" {
		t.Errorf("output = %q, want %q", out, "3\n")
	}
}

func TestRunMainInOtherClass(t *testing.T) {
	// The entry point is the Main method, not a Main class.
	_, out := runSource(t, `
		class Counter {
			var count: int;

			proc Main() {
				writeln(1 + 2);
				halt;
			}
		}
	`)
	if out != "3\n" {
		t.Errorf("output = %q, want %q", out, "3\n")
	}
}

func TestRunIfElse(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				var x: int = 5;
				if (x > 3) {
					writeln(1);
				} else {
					writeln(2);
				}
				if (x > 9) {
					writeln(3);
				} else {
					writeln(4);
				}
			}
		}
	`)
	if out != "1\n4\n" {
		t.Errorf("output = %q, want %q", out, "1\n4\n")
	}
}

func TestRunElseIfChain(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				var x: int = 2;
				if (x == 1) {
					writeln(10);
				} else if (x == 2) {
					writeln(20);
				} else {
					writeln(30);
				}
			}
		}
	`)
	if out != "20\n" {
		t.Errorf("output = %q, want %q", out, "20\n")
	}
}

func TestRunWhile(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				var i: int = 0;
				var sum: int = 0;
				while (i < 5) {
					sum = sum + i;
					i = i + 1;
				}
				writeln(sum);
			}
		}
	`)
	if out != "10\n" {
		t.Errorf("output = %q, want %q", out, "10\n")
	}
}

func TestRunStrings(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				var a: string = "foo";
				var b: string = a + "bar";
				writeln(b);
				writeln(len(b));
				if (b == "foobar") {
					writeln(1);
				}
				if (a != b) {
					writeln(2);
				}
				if (a < b) {
					writeln(3);
				}
				writeln(int("42") + 1);
				writeln(str(7) + "!");
			}
		}
	`)
	want := "foobar\n6\n1\n2\n3\n43\n7!\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunStringToIntUnparsable(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				writeln(int("nope"));
			}
		}
	`)
	if out != "0\n" {
		t.Errorf("output = %q, want %q", out, "0\n")
	}
}

func TestRunConcatCoercion(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				writeln("n = " + 42);
				writeln(1 + "s");
			}
		}
	`)
	want := "n = 42\n1s\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunMethodArgs(t *testing.T) {
	_, out := runSource(t, `
		class Calc {
			func add(a: int, b: int): int {
				return a + b;
			}
		}
		class Main {
			proc Main() {
				var c: Calc = new Calc();
				writeln(c.add(2, 3));
				writeln(c.add(c.add(1, 2), 3));
			}
		}
	`)
	if out != "5\n6\n" {
		t.Errorf("output = %q, want %q", out, "5\n6\n")
	}
}

func TestRunInheritedMethod(t *testing.T) {
	_, out := runSource(t, `
		class Animal {
			func legs(): int {
				return 4;
			}
		}
		class Dog : Animal {
		}
		class Main {
			proc Main() {
				var d: Dog = new Dog();
				writeln(d.legs());
			}
		}
	`)
	if out != "4\n" {
		t.Errorf("output = %q, want %q", out, "4\n")
	}
}

func TestRunRecursion(t *testing.T) {
	// Recursion threads the receiver through a parameter. Operands
	// already on the stack survive the callee reusing the flat
	// variable cells.
	_, out := runSource(t, `
		class F {
			func fact(f: F, n: int): int {
				if (n < 2) {
					return 1;
				}
				return n * f.fact(f, n - 1);
			}
		}
		class Main {
			proc Main() {
				var f: F = new F();
				writeln(f.fact(f, 5));
			}
		}
	`)
	if out != "120\n" {
		t.Errorf("output = %q, want %q", out, "120\n")
	}
}

func TestRunFieldsShareModuleStorage(t *testing.T) {
	// Fields address module storage, so two instances alias the same
	// cells.
	_, out := runSource(t, `
		class Counter {
			var value: int;

			proc bump() {
				value = value + 1;
			}

			func get(): int {
				return value;
			}
		}
		class Main {
			proc Main() {
				var a: Counter = new Counter();
				var b: Counter = new Counter();
				a.bump();
				b.bump();
				writeln(a.get());
			}
		}
	`)
	if out != "2\n" {
		t.Errorf("output = %q, want %q", out, "2\n")
	}
}

func TestRunImplicitPrint(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				1 + 2;
				"direct";
			}
		}
	`)
	want := "3\ndirect\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunInput(t *testing.T) {
	_, out := runSourceInput(t, `
		class Main {
			proc Main() {
				writeln(readint() + readint());
			}
		}
	`, "40 2\n")
	if out != "42\n" {
		t.Errorf("output = %q, want %q", out, "42\n")
	}
}

func TestRunReadChar(t *testing.T) {
	_, out := runSourceInput(t, `
		class Main {
			proc Main() {
				writeln(readchar());
			}
		}
	`, "A")
	if out != "65\n" {
		t.Errorf("output = %q, want %q", out, "65\n")
	}
}

func TestRunInputAtEOF(t *testing.T) {
	_, out := runSource(t, `
		class Main {
			proc Main() {
				writeln(readint());
				writeln(readchar());
			}
		}
	`)
	if out != "0\n0\n" {
		t.Errorf("output = %q, want %q", out, "0\n0\n")
	}
}

func TestRunDivisionByZero(t *testing.T) {
	fe := runForFault(t, `
		class Main {
			proc Main() {
				var x: int = 0;
				writeln(10 / x);
			}
		}
	`, FaultDivisionByZero)
	if !strings.Contains(fe.Error(), "division by zero") {
		t.Errorf("fault error = %q", fe.Error())
	}
	if fe.Line == 0 {
		t.Errorf("fault line = 0, want a source line from debug info")
	}
}

func TestRunModuloByZero(t *testing.T) {
	runForFault(t, `
		class Main {
			proc Main() {
				var x: int = 0;
				writeln(10 % x);
			}
		}
	`, FaultDivisionByZero)
}

func TestRunCallDepthFault(t *testing.T) {
	runForFault(t, `
		class F {
			func loop(f: F): int {
				return f.loop(f);
			}
		}
		class Main {
			proc Main() {
				var f: F = new F();
				writeln(f.loop(f));
			}
		}
	`, FaultCallOverflow)
}

func TestRunInstructionBudget(t *testing.T) {
	mod := buildModule(t, `
		class Main {
			proc Main() {
				while (1) {
				}
			}
		}
	`)
	var out bytes.Buffer
	m, err := New(mod, Config{Output: &out, Input: strings.NewReader(""), MaxInstructions: 100})
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	// The budget is a safety stop, not a fault.
	if err := m.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if m.State() != StateHalted {
		t.Errorf("state = %v, want halted", m.State())
	}
	if m.Steps() != 100 {
		t.Errorf("steps = %d, want 100", m.Steps())
	}
}

func TestStepLifecycle(t *testing.T) {
	mod := buildModule(t, `
		class Main {
			proc Main() {
				writeln(1);
			}
		}
	`)
	var out bytes.Buffer
	m, err := New(mod, Config{Output: &out, Input: strings.NewReader("")})
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if m.State() != StateReady {
		t.Fatalf("initial state = %v, want ready", m.State())
	}
	if err := m.Step(); err != nil {
		t.Fatalf("first step: %v", err)
	}
	if m.State() != StateRunning {
		t.Fatalf("state after step = %v, want running", m.State())
	}

	for m.State() == StateRunning {
		if err := m.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if m.State() != StateHalted {
		t.Fatalf("final state = %v, want halted", m.State())
	}
	if err := m.Step(); !errors.Is(err, ErrHalted) {
		t.Fatalf("step after halt = %v, want ErrHalted", err)
	}
	if out.String() != "1\n" {
		t.Errorf("output = %q, want %q", out.String(), "1\n")
	}
}

func TestGlobalLookup(t *testing.T) {
	m, _ := runSource(t, `
		class Main {
			proc Main() {
				var x: int = 7;
				var s: string = "hi";
				writeln(x);
			}
		}
	`)
	if v, ok := m.Global("x"); !ok || v != 7 {
		t.Errorf("Global(x) = %d,%v, want 7,true", v, ok)
	}
	if v, ok := m.Global("s"); !ok {
		t.Errorf("Global(s) missing")
	} else if s, ok := m.StringAt(v); !ok || s != "hi" {
		t.Errorf("string at %d = %q,%v, want hi", v, s, ok)
	}
	if _, ok := m.Global("ghost"); ok {
		t.Errorf("Global(ghost) = true, want false")
	}
}

func TestObjectInspection(t *testing.T) {
	m, _ := runSource(t, `
		class Counter {
			var value: int;

			proc bump() {
				value = value + 1;
			}
		}
		class Main {
			proc Main() {
				var c: Counter = new Counter();
				c.bump();
				writeln(1);
			}
		}
	`)

	addr, ok := m.Global("c")
	if !ok {
		t.Fatal("Global(c) missing")
	}
	name, ok := m.ObjectClassName(addr)
	if !ok || name != "Counter" {
		t.Fatalf("ObjectClassName = %q,%v, want Counter", name, ok)
	}
	if _, ok := m.ObjectField(addr, 0); !ok {
		t.Errorf("ObjectField(0) missing")
	}
	if _, ok := m.ObjectField(addr, 99); ok {
		t.Errorf("ObjectField(99) = true, want false")
	}
	if !m.Retain(addr) || !m.Release(addr) {
		t.Errorf("Retain/Release on live object failed")
	}
	if m.Retain(12345) {
		t.Errorf("Retain on junk address = true, want false")
	}
}

func TestAppNameAndSteps(t *testing.T) {
	m, _ := runSource(t, `
		class Main {
			proc Main() {
				writeln(1);
			}
		}
	`)
	if m.AppName() != "test" {
		t.Errorf("app name = %q, want test", m.AppName())
	}
	if m.Steps() == 0 {
		t.Errorf("steps = 0, want > 0")
	}
}
