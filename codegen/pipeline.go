package codegen

import (
	"fmt"
	"strings"
	"time"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/compiler"
)

// compilerID names the toolchain in module debug info.
const compilerID = "arxc"

// BuildOptions configure a full source-to-module build.
type BuildOptions struct {
	// AppName is recorded in the module header. Defaults to "main".
	AppName string
	// SourceName is the file name recorded in debug info.
	SourceName string
	// StripDebug omits the debug section entirely.
	StripDebug bool
}

// Build runs the whole front end over one source unit and returns a
// module ready for writing: parse, analyze, generate, link.
func Build(source string, opts BuildOptions) (*arxmod.Module, error) {
	prog, err := compiler.Parse(source)
	if err != nil {
		return nil, err
	}

	classes, errs := compiler.Analyze(prog)
	if len(errs) > 0 {
		return nil, fmt.Errorf("semantic errors: %s", strings.Join(errs, "; "))
	}

	art, err := Generate(prog, classes)
	if err != nil {
		return nil, err
	}
	if err := Link(art); err != nil {
		return nil, err
	}

	return Assemble(art, opts), nil
}

// Assemble packages a linked artifact into a module image. Callers that
// drive the front end themselves, for per-diagnostic reporting, share
// this step with Build.
func Assemble(art *Artifact, opts BuildOptions) *arxmod.Module {
	appName := opts.AppName
	if appName == "" {
		appName = "main"
	}

	mod := &arxmod.Module{
		AppName: appName,
		Code:    art.Code,
		Strings: art.Strings,
		Symbols: art.Symbols,
		Classes: art.Classes,
	}
	if !opts.StripDebug {
		mod.Debug = &arxmod.DebugInfo{
			BuildID:    arxmod.NewBuildID(),
			Source:     opts.SourceName,
			CompiledAt: time.Now().Unix(),
			Compiler:   compilerID,
			Lines:      art.Lines,
		}
	}
	return mod
}
