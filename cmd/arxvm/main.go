// ARX virtual machine CLI - loads and executes .arxmod modules
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
	"github.com/arx-lang/arx/vm"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.3.0"

var faultLabel = color.New(color.FgRed, color.Bold)

func main() {
	debug := flag.Bool("debug", false, "Per-instruction debug logging")
	trace := flag.Bool("trace", false, "Instruction trace to stderr")
	dump := flag.Bool("dump", false, "Dump VM state after execution")
	step := flag.Bool("step", false, "Single-step interactively (enter = step, q = quit)")
	outPath := flag.String("o", "", "Redirect program output to a file")
	showVersion := flag.Bool("v", false, "Print version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: arxvm [options] module.arxmod\n\n")
		fmt.Fprintf(os.Stderr, "Executes a compiled ARX module.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  ARXVM_STACK_SIZE        operand stack depth in cells\n")
		fmt.Fprintf(os.Stderr, "  ARXVM_MEMORY_SIZE       data memory size in cells\n")
		fmt.Fprintf(os.Stderr, "  ARXVM_CALL_DEPTH        call stack limit\n")
		fmt.Fprintf(os.Stderr, "  ARXVM_MAX_INSTRUCTIONS  instruction budget\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  arxvm hello.arxmod          # Run a module\n")
		fmt.Fprintf(os.Stderr, "  arxvm -trace hello.arxmod   # Trace every instruction\n")
		fmt.Fprintf(os.Stderr, "  arxvm -step hello.arxmod    # Walk through it one step at a time\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("arxvm %s\n", version)
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if *debug || *trace {
		commonlog.Configure(2, nil)
	}

	os.Exit(run(flag.Arg(0), *debug, *trace, *dump, *step, *outPath))
}

func run(path string, debug, trace, dump, step bool, outPath string) int {
	// Unset environment variables leave the zero value, which the
	// machine replaces with its defaults
	cfg := vm.Config{
		StackSize:       env.Int("ARXVM_STACK_SIZE", 0),
		MemorySize:      env.Int("ARXVM_MEMORY_SIZE", 0),
		CallDepth:       env.Int("ARXVM_CALL_DEPTH", 0),
		MaxInstructions: uint64(env.Int("ARXVM_MAX_INSTRUCTIONS", 0)),
		Debug:           debug,
		Trace:           trace,
	}

	if outPath != "" {
		out, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer out.Close()
		cfg.Output = out
	}

	mod, err := arxmod.ReadModuleFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	m, err := vm.New(mod, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if step {
		err = runInteractive(m, mod.Code)
	} else {
		err = m.Run()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", faultLabel.Sprint("fault:"), err)
		m.DumpState(os.Stderr)
		return 1
	}

	if dump {
		m.DumpState(os.Stderr)
	}
	return 0
}

// runInteractive steps the machine one instruction at a time, showing
// the next instruction before each step. An empty line steps, q quits.
func runInteractive(m *vm.VM, code []bytecode.Instruction) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if pc := m.PC(); pc < uint64(len(code)) {
			fmt.Fprintf(os.Stderr, "%04d  %s\n", pc, code[pc])
		}
		fmt.Fprint(os.Stderr, "(step) ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return nil
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "", "s":
			if err := m.Step(); err != nil {
				return err
			}
			if m.State() == vm.StateHalted {
				fmt.Fprintf(os.Stderr, "halted after %d steps\n", m.Steps())
				return nil
			}
		case "q":
			return nil
		default:
			fmt.Fprintln(os.Stderr, "enter = step, q = quit")
		}
	}
}
