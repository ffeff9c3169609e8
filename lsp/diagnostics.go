package lsp

import (
	"regexp"
	"strconv"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/arx-lang/arx/compiler"
)

const diagnosticSource = "arx"

// Compiler messages carry positions as "line N: ..." or "line N, column M: ...".
var errPosition = regexp.MustCompile(`^line (\d+)(?:, column (\d+))?: (.*)$`)

// Diagnose compiles the document and converts every front end error to a
// protocol diagnostic. Parse errors suppress semantic analysis, matching
// what the compiler itself reports.
func Diagnose(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}

	parser := compiler.NewParser(text)
	prog := parser.ParseProgram()

	messages := parser.Errors()
	if len(messages) == 0 {
		messages = compiler.NewAnalyzer().Analyze(prog)
	}

	lines := strings.Split(text, "\n")
	for _, msg := range messages {
		diagnostics = append(diagnostics, toDiagnostic(msg, lines))
	}
	return diagnostics
}

// toDiagnostic parses the position prefix out of a compiler message. The
// range runs from the reported column to the end of that line; positions
// convert from the compiler's 1-based lines and columns to the protocol's
// 0-based ones.
func toDiagnostic(msg string, lines []string) protocol.Diagnostic {
	var line, column uint32
	text := msg

	if m := errPosition.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n > 0 {
			line = uint32(n - 1)
		}
		if m[2] != "" {
			c, _ := strconv.Atoi(m[2])
			if c > 0 {
				column = uint32(c - 1)
			}
		}
		text = m[3]
	}

	endColumn := column
	if int(line) < len(lines) {
		width := uint32(len(lines[line]))
		if width > column {
			endColumn = width
		}
	}

	severity := protocol.DiagnosticSeverityError
	source := diagnosticSource

	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: column},
			End:   protocol.Position{Line: line, Character: endColumn},
		},
		Severity: &severity,
		Source:   &source,
		Message:  text,
	}
}
