// ARX compiler CLI - compiles .arx sources into .arxmod modules
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
	"github.com/arx-lang/arx/cache"
	"github.com/arx-lang/arx/codegen"
	"github.com/arx-lang/arx/compiler"
	"github.com/arx-lang/arx/lsp"
	"github.com/arx-lang/arx/manifest"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.3.0"

var log = commonlog.GetLogger("arxc")

func main() {
	output := flag.String("o", "", "Output path (default: source with .arxmod extension)")
	appName := flag.String("name", "", "Application name recorded in the module (default: source base name)")
	dumpCode := flag.Bool("dump-code", false, "Print disassembly after linking")
	cachePath := flag.String("cache", "", "Compilation cache database path")
	lspMode := flag.Bool("lsp", false, "Run the LSP diagnostics server on stdio")
	debug := flag.Bool("debug", false, "Verbose logging")
	showVersion := flag.Bool("v", false, "Print version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: arxc [options] [source.arx]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles an ARX source file into an .arxmod module.\n")
		fmt.Fprintf(os.Stderr, "Without a source argument, builds the entry point of the nearest arx.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  arxc hello.arx                # Build hello.arxmod\n")
		fmt.Fprintf(os.Stderr, "  arxc -o out.arxmod hello.arx  # Build to an explicit path\n")
		fmt.Fprintf(os.Stderr, "  arxc -dump-code hello.arx     # Show the linked code\n")
		fmt.Fprintf(os.Stderr, "  arxc                          # Build the arx.toml entry\n")
		fmt.Fprintf(os.Stderr, "  arxc -lsp                     # Serve editor diagnostics\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("arxc %s\n", version)
		return
	}

	if *debug {
		commonlog.Configure(2, nil)
	}

	if *lspMode {
		if err := lsp.NewServer(version).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(1)
	}

	job, err := resolveJob(flag.Arg(0), *output, *appName, *cachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := runBuild(job, *dumpCode); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// errReported marks failures already printed as diagnostics.
var errReported = errors.New("diagnostics reported")

// buildJob is one resolved compilation: where to read, where to write,
// and how to label and cache the result.
type buildJob struct {
	source    string
	output    string
	appName   string
	cachePath string
}

// resolveJob fills in a build from the command line, falling back to the
// nearest manifest when no source file is given.
func resolveJob(source, output, appName, cachePath string) (*buildJob, error) {
	if source == "" {
		m, err := manifest.FindAndLoad(".")
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("no source file given and no %s found", manifest.FileName)
		}
		job := &buildJob{
			source:  m.EntryPath(),
			output:  m.OutputPath(),
			appName: m.Package.Name,
		}
		if m.Build.Cache {
			job.cachePath = m.CachePath()
		}
		if output != "" {
			job.output = output
		}
		if appName != "" {
			job.appName = appName
		}
		if cachePath != "" {
			job.cachePath = cachePath
		}
		return job, nil
	}

	base := strings.TrimSuffix(source, filepath.Ext(source))
	job := &buildJob{
		source:    source,
		output:    base + ".arxmod",
		appName:   filepath.Base(base),
		cachePath: cachePath,
	}
	if output != "" {
		job.output = output
	}
	if appName != "" {
		job.appName = appName
	}
	return job, nil
}

func runBuild(job *buildJob, dumpCode bool) error {
	src, err := os.ReadFile(job.source)
	if err != nil {
		return err
	}
	source := string(src)

	var store *cache.Cache
	var key string
	if job.cachePath != "" {
		store, err = cache.Open(job.cachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		// The app name is baked into the image, so it discriminates too
		key = cache.Key(source, version+":"+job.appName)
		if data, err := store.Get(key); err == nil {
			log.Infof("cache hit for %s", job.source)
			if err := os.WriteFile(job.output, data, 0o644); err != nil {
				return err
			}
			if dumpCode {
				mod, err := arxmod.ReadModule(data)
				if err != nil {
					return err
				}
				printCode(mod)
			}
			return nil
		}
	}

	mod, err := compile(job, source)
	if err != nil {
		return err
	}

	if err := arxmod.WriteModuleFile(job.output, mod); err != nil {
		return err
	}
	log.Infof("wrote %s (%d instructions)", job.output, len(mod.Code))

	if store != nil {
		data, err := os.ReadFile(job.output)
		if err != nil {
			return err
		}
		if err := store.Put(key, mod.AppName, data); err != nil {
			log.Errorf("cache store failed: %v", err)
		}
	}

	if dumpCode {
		printCode(mod)
	}
	return nil
}

// compile runs the front end stage by stage so that parse and semantic
// diagnostics print individually with positions.
func compile(job *buildJob, source string) (*arxmod.Module, error) {
	p := compiler.NewParser(source)
	prog := p.ParseProgram()
	if msgs := p.Errors(); len(msgs) > 0 {
		reportDiagnostics(job.source, msgs)
		return nil, errReported
	}

	classes, msgs := compiler.Analyze(prog)
	if len(msgs) > 0 {
		reportDiagnostics(job.source, msgs)
		return nil, errReported
	}

	art, err := codegen.Generate(prog, classes)
	if err != nil {
		return nil, err
	}
	if err := codegen.Link(art); err != nil {
		return nil, err
	}

	return codegen.Assemble(art, codegen.BuildOptions{
		AppName:    job.appName,
		SourceName: filepath.Base(job.source),
	}), nil
}

var errLabel = color.New(color.FgRed, color.Bold)

// Compiler messages carry positions as "line N: ..." or "line N, column M: ...".
var msgPosition = regexp.MustCompile(`^line (\d+)(?:, column (\d+))?: (.*)$`)

// reportDiagnostics prints each message as file:line:col with a
// colorized error label.
func reportDiagnostics(path string, msgs []string) {
	for _, msg := range msgs {
		loc := path
		text := msg
		if m := msgPosition.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			if m[2] != "" {
				column, _ := strconv.Atoi(m[2])
				loc = fmt.Sprintf("%s:%d:%d", path, line, column)
			} else {
				loc = fmt.Sprintf("%s:%d", path, line)
			}
			text = m[3]
		}
		fmt.Fprintf(os.Stderr, "%s: %s %s\n", loc, errLabel.Sprint("error:"), text)
	}
	fmt.Fprintf(os.Stderr, "%d error(s)\n", len(msgs))
}

// printCode disassembles the linked module with method and string
// annotations.
func printCode(mod *arxmod.Module) {
	methods := make(map[uint64]string)
	for _, class := range mod.Classes {
		for _, m := range class.Methods {
			methods[m.Offset] = class.Name + "." + m.Name
		}
	}
	fmt.Print(bytecode.DisassembleAnnotated(mod.Code, bytecode.Annotations{
		Name:     mod.AppName,
		Strings:  mod.Strings,
		MethodAt: methods,
	}))
}
