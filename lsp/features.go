package lsp

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/arx-lang/arx/compiler"
)

// Builtin functions offered alongside user symbols. The map carries the
// hover signatures; the slice fixes completion order.
var builtinNames = []string{"int", "len", "readchar", "readint", "str"}

var builtinSignatures = map[string]string{
	"len":      "len(s: string): int",
	"str":      "str(n: int): string",
	"int":      "int(s: string): int",
	"readint":  "readint(): int",
	"readchar": "readchar(): int",
}

// parseDocument parses without reporting errors. A partially parsed
// program is still useful for completion and hover while the user types.
func parseDocument(text string) *compiler.Program {
	p := compiler.NewParser(text)
	return p.ParseProgram()
}

func classNamed(prog *compiler.Program, name string) *compiler.ClassDecl {
	for _, class := range prog.Classes {
		if class.Name == name {
			return class
		}
	}
	return nil
}

// methodSignature renders a method the way it is declared in source.
func methodSignature(m *compiler.MethodDecl) string {
	if m.IsFunction() {
		return "func " + signature(m.Name, m)
	}
	return "proc " + signature(m.Name, m)
}

// qualifiedSignature prefixes the declaring class: Counter.get(): int.
func qualifiedSignature(className string, m *compiler.MethodDecl) string {
	return signature(className+"."+m.Name, m)
}

func signature(name string, m *compiler.MethodDecl) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", p.Name, p.Type)
	}
	b.WriteByte(')')
	if m.IsFunction() {
		fmt.Fprintf(&b, ": %s", m.ReturnType)
	}
	return b.String()
}

func complete(text string, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	prog := parseDocument(text)

	// Class names
	for _, class := range prog.Classes {
		if strings.HasPrefix(strings.ToLower(class.Name), lowerPrefix) {
			kind := protocol.CompletionItemKindClass
			detail := "class"
			if class.Parent != "" {
				detail = fmt.Sprintf("class : %s", class.Parent)
			}
			items = append(items, protocol.CompletionItem{
				Label:      class.Name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &class.Name,
			})
		}
	}

	// Methods and fields
	for _, class := range prog.Classes {
		for _, method := range class.Methods {
			if strings.HasPrefix(strings.ToLower(method.Name), lowerPrefix) {
				kind := protocol.CompletionItemKindMethod
				detail := qualifiedSignature(class.Name, method)
				items = append(items, protocol.CompletionItem{
					Label:      method.Name,
					Kind:       &kind,
					Detail:     &detail,
					InsertText: &method.Name,
				})
			}
		}
		for _, field := range class.Fields {
			if strings.HasPrefix(strings.ToLower(field.Name), lowerPrefix) {
				kind := protocol.CompletionItemKindField
				detail := fmt.Sprintf("%s.%s: %s", class.Name, field.Name, field.Type)
				items = append(items, protocol.CompletionItem{
					Label:      field.Name,
					Kind:       &kind,
					Detail:     &detail,
					InsertText: &field.Name,
				})
			}
		}
	}

	// Builtins
	for _, name := range builtinNames {
		if strings.HasPrefix(name, lowerPrefix) {
			kind := protocol.CompletionItemKindFunction
			detail := "builtin"
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func hover(text string, word string) *protocol.Hover {
	prog := parseDocument(text)

	if class := classNamed(prog, word); class != nil {
		return classHover(prog, class)
	}

	// Method name → list implementing classes
	var implementors []string
	for _, class := range prog.Classes {
		for _, method := range class.Methods {
			if method.Name == word {
				implementors = append(implementors, qualifiedSignature(class.Name, method))
			}
		}
	}
	if len(implementors) > 0 {
		sort.Strings(implementors)
		var b strings.Builder
		fmt.Fprintf(&b, "**%s**\n\n", word)
		fmt.Fprintf(&b, "Implemented by %d classes:\n", len(implementors))
		for _, sig := range implementors {
			fmt.Fprintf(&b, "- %s\n", sig)
		}
		return markdownHover(b.String())
	}

	if sig, ok := builtinSignatures[word]; ok {
		var b strings.Builder
		fmt.Fprintf(&b, "**%s**\n\n", word)
		fmt.Fprintf(&b, "Builtin function: `%s`\n", sig)
		return markdownHover(b.String())
	}

	return nil
}

func classHover(prog *compiler.Program, class *compiler.ClassDecl) *protocol.Hover {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", class.Name)
	if class.Parent != "" {
		fmt.Fprintf(&b, " : %s", class.Parent)
	}
	b.WriteString("\n\n")

	if len(class.Fields) > 0 {
		names := make([]string, len(class.Fields))
		for i, field := range class.Fields {
			names[i] = field.Name
		}
		fmt.Fprintf(&b, "Fields: `%s`\n\n", strings.Join(names, " "))
	}

	fmt.Fprintf(&b, "%d methods", len(class.Methods))
	for _, method := range class.Methods {
		fmt.Fprintf(&b, "\n- %s", methodSignature(method))
	}

	// Show hierarchy; the visited set guards against cycles in
	// half-edited source
	var chain []string
	visited := map[string]bool{class.Name: true}
	for parent := class.Parent; parent != "" && !visited[parent]; {
		visited[parent] = true
		chain = append([]string{parent}, chain...)
		next := classNamed(prog, parent)
		if next == nil {
			break
		}
		parent = next.Parent
	}
	if len(chain) > 0 {
		b.WriteString("\n\n**Hierarchy:** ")
		b.WriteString(strings.Join(chain, " : "))
		fmt.Fprintf(&b, " : **%s**", class.Name)
	}

	return markdownHover(b.String())
}

func markdownHover(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// definitions resolves a name to its declaration sites in the same
// document. Class and method declarations carry source spans, so the
// result points at real positions.
func definitions(text string, uri protocol.DocumentUri, word string) []protocol.Location {
	prog := parseDocument(text)

	var locations []protocol.Location
	for _, class := range prog.Classes {
		if class.Name == word {
			locations = append(locations, protocol.Location{
				URI:   uri,
				Range: spanRange(class.Span()),
			})
		}
		for _, method := range class.Methods {
			if method.Name == word {
				locations = append(locations, protocol.Location{
					URI:   uri,
					Range: spanRange(method.Span()),
				})
			}
		}
	}
	return locations
}

// spanRange converts 1-based compiler positions to 0-based protocol ones.
func spanRange(s compiler.Span) protocol.Range {
	return protocol.Range{
		Start: positionOf(s.Start),
		End:   positionOf(s.End),
	}
}

func positionOf(p compiler.Position) protocol.Position {
	var pos protocol.Position
	if p.Line > 0 {
		pos.Line = uint32(p.Line - 1)
	}
	if p.Column > 0 {
		pos.Character = uint32(p.Column - 1)
	}
	return pos
}

// extractPrefix returns the partial identifier ending at the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	// Find end
	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}
