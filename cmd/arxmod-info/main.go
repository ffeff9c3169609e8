// ARX module inspector - prints the contents of .arxmod files
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
)

func main() {
	info := flag.Bool("info", false, "Header summary (default)")
	sections := flag.Bool("sections", false, "Table of contents with sizes")
	classes := flag.Bool("classes", false, "Class manifest listing")
	code := flag.Bool("code", false, "Disassembly")
	strs := flag.Bool("strings", false, "String table")
	hexSection := flag.String("hex", "", "Hex dump of one section")
	validate := flag.Bool("validate", false, "Full structural validation")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: arxmod-info [options] module.arxmod\n\n")
		fmt.Fprintf(os.Stderr, "Inspects a compiled ARX module.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  arxmod-info hello.arxmod            # Header summary\n")
		fmt.Fprintf(os.Stderr, "  arxmod-info -sections hello.arxmod  # List sections\n")
		fmt.Fprintf(os.Stderr, "  arxmod-info -code hello.arxmod      # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  arxmod-info -hex CODE hello.arxmod  # Dump raw section bytes\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *validate {
		os.Exit(runValidate(path, data))
	}

	r, err := arxmod.NewReader(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Header summary is the default view
	if !*sections && !*classes && !*code && !*strs && *hexSection == "" {
		*info = true
	}

	if *info {
		printInfo(r, path, uint64(len(data)))
	}
	if *sections {
		printSections(r)
	}
	if *classes {
		if err := printClasses(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *code {
		if err := printCode(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *strs {
		if err := printStrings(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *hexSection != "" {
		if err := printHex(r, *hexSection); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// runValidate decodes every section and reports the verdict.
func runValidate(path string, data []byte) int {
	mod, err := arxmod.ReadModule(data)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "invalid: ")
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	color.New(color.FgGreen).Printf("valid: ")
	fmt.Printf("%s, %d instructions, %d strings, %d classes\n",
		path, len(mod.Code), len(mod.Strings), len(mod.Classes))
	return 0
}

func printInfo(r *arxmod.Reader, path string, size uint64) {
	h := r.Header()
	appName, _, _ := r.LoadApp()

	fmt.Printf("module:    %s\n", path)
	fmt.Printf("app:       %s\n", appName)
	fmt.Printf("version:   %d\n", h.Version)
	fmt.Printf("sections:  %d\n", h.SectionCount())
	fmt.Printf("size:      %s\n", humanize.Bytes(size))

	if debug, err := r.LoadDebug(); err == nil && debug != nil {
		fmt.Println("debug:")
		fmt.Printf("  build id:  %s\n", debug.BuildID)
		fmt.Printf("  compiler:  %s\n", debug.Compiler)
		if debug.Source != "" {
			fmt.Printf("  source:    %s\n", debug.Source)
		}
		compiledAt := time.Unix(debug.CompiledAt, 0)
		fmt.Printf("  compiled:  %s (%s)\n", compiledAt.Format(time.RFC3339), humanize.Time(compiledAt))
	}
}

func printSections(r *arxmod.Reader) {
	fmt.Printf("%-16s %10s %10s %6s\n", "name", "offset", "size", "flags")
	for _, e := range r.TOC() {
		fmt.Printf("%-16s %10d %10s %6d\n", e.Name, e.Offset, humanize.Bytes(e.Size), e.Flags)
	}
}

func printClasses(r *arxmod.Reader) error {
	classes, err := r.LoadClasses()
	if err != nil {
		return err
	}

	names := make(map[uint32]string, len(classes))
	for _, c := range classes {
		names[c.ClassID] = c.Name
	}

	for _, c := range classes {
		parent := "-"
		if c.ParentClassID != arxmod.NoParentClass {
			parent = names[c.ParentClassID]
			if parent == "" {
				parent = fmt.Sprintf("id %d", c.ParentClassID)
			}
		}
		fmt.Printf("class %s (id %d, parent %s, %s)\n",
			c.Name, c.ClassID, parent, humanize.Bytes(uint64(c.InstanceSize)))
		for _, f := range c.Fields {
			fmt.Printf("  field %s @%d\n", f.Name, f.Offset)
		}
		for _, m := range c.Methods {
			fmt.Printf("  %s @%04d\n", methodSignature(m), m.Offset)
		}
	}
	return nil
}

// methodSignature renders a manifest entry the way the source declares
// it, with wire types standing in for class names.
func methodSignature(m arxmod.MethodEntry) string {
	sig := m.Name + "("
	for i, t := range m.ParamTypes {
		if i > 0 {
			sig += ", "
		}
		sig += t.String()
	}
	sig += ")"
	if m.ReturnType != arxmod.TypeVoid {
		sig += ": " + m.ReturnType.String()
	}
	return sig
}

func printCode(r *arxmod.Reader) error {
	code, err := r.LoadCode()
	if err != nil {
		return err
	}
	strs, err := r.LoadStrings()
	if err != nil {
		return err
	}
	classes, err := r.LoadClasses()
	if err != nil {
		return err
	}
	appName, _, _ := r.LoadApp()

	methods := make(map[uint64]string)
	for _, c := range classes {
		for _, m := range c.Methods {
			methods[m.Offset] = c.Name + "." + m.Name
		}
	}

	fmt.Print(bytecode.DisassembleAnnotated(code, bytecode.Annotations{
		Name:     appName,
		Strings:  strs,
		MethodAt: methods,
	}))
	return nil
}

func printStrings(r *arxmod.Reader) error {
	strs, err := r.LoadStrings()
	if err != nil {
		return err
	}
	for i, s := range strs {
		fmt.Printf("%4d  %q\n", i, s)
	}
	return nil
}

func printHex(r *arxmod.Reader, name string) error {
	payload, err := r.SectionData(name)
	if err != nil {
		return err
	}
	fmt.Print(hex.Dump(payload))
	return nil
}
