package vm

import (
	"fmt"
	"io"
	"sort"

	"github.com/arx-lang/arx/bytecode"
)

// DumpState writes a snapshot of the machine: registers, operand
// stack, call frames, module globals, heap summary, and the code
// around the program counter.
func (m *VM) DumpState(w io.Writer) {
	fmt.Fprintf(w, "app:    %s\n", m.appName)
	fmt.Fprintf(w, "state:  %s\n", m.state)
	fmt.Fprintf(w, "pc:     %04d\n", m.pc)
	fmt.Fprintf(w, "steps:  %d\n", m.steps)
	if m.fault != nil {
		fmt.Fprintf(w, "fault:  %s\n", m.fault)
	}

	fmt.Fprintf(w, "\nstack (%d cells):\n", m.top)
	first := m.top - 16
	if first < 0 {
		first = 0
	}
	for i := m.top - 1; i >= first; i-- {
		note := ""
		if s, ok := m.StringAt(m.stack[i]); ok && m.stack[i] >= m.cfg.HeapBase {
			note = fmt.Sprintf("  ; %q", s)
		}
		fmt.Fprintf(w, "  [%4d] %d%s\n", i, m.stack[i], note)
	}

	fmt.Fprintf(w, "\nframes (%d):\n", len(m.frames))
	for i := len(m.frames) - 1; i >= 0; i-- {
		f := m.frames[i]
		name := "cal"
		if f.method != nil {
			name = f.method.owner.name() + "." + f.method.entry.Name
		}
		fmt.Fprintf(w, "  #%d %s return=%04d saved_top=%d\n", i, name, f.returnAddr, f.savedTop)
	}

	if len(m.symbols) > 0 {
		fmt.Fprintf(w, "\nglobals:\n")
		for _, sym := range m.symbols {
			addr := m.cfg.LocalBase + sym.Address
			if addr >= uint64(len(m.memory)) {
				continue
			}
			v := m.memory[addr]
			note := ""
			if s, ok := m.StringAt(v); ok && v >= m.cfg.HeapBase {
				note = fmt.Sprintf("  ; %q", s)
			}
			fmt.Fprintf(w, "  %-16s @%-4d = %d%s\n", sym.Name, sym.Address, v, note)
		}
	}

	fmt.Fprintf(w, "\nheap: %d objects (%d strings, %d instance cells)\n",
		len(m.arena.objects), m.arena.strings, m.arena.cells)
	addrs := make([]uint64, 0, len(m.arena.objects))
	for addr := range m.arena.objects {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	shown := 0
	for _, addr := range addrs {
		if shown >= 16 {
			fmt.Fprintf(w, "  ... %d more\n", len(addrs)-shown)
			break
		}
		obj := m.arena.objects[addr]
		if obj.kind == kindString {
			fmt.Fprintf(w, "  %6d str[%#x] %q\n", addr, stringTag, string(obj.bytes))
		} else {
			fmt.Fprintf(w, "  %6d obj %s %v\n", addr, obj.class.name(), obj.fields)
		}
		shown++
	}

	m.dumpCodeWindow(w, 4)
}

// dumpCodeWindow prints the instructions around the program counter
// with method region labels.
func (m *VM) dumpCodeWindow(w io.Writer, radius uint64) {
	if len(m.code) == 0 {
		return
	}
	var lo uint64
	if m.pc > radius {
		lo = m.pc - radius
	}
	hi := m.pc + radius
	if hi >= uint64(len(m.code)) {
		hi = uint64(len(m.code)) - 1
	}

	ann := bytecode.Annotations{Strings: m.strTab, MethodAt: m.methodRegions()}
	lines := bytecode.DisassembleToLines(m.code)

	fmt.Fprintf(w, "\ncode:\n")
	for i := lo; i <= hi && i < uint64(len(lines)); i++ {
		marker := "   "
		if i == m.pc {
			marker = "-> "
		}
		if name, ok := ann.MethodAt[i]; ok {
			fmt.Fprintf(w, "   ; %s\n", name)
		}
		fmt.Fprintf(w, "%s%s\n", marker, lines[i])
	}
}

func (m *VM) methodRegions() map[uint64]string {
	regions := make(map[uint64]string)
	for offset, mi := range m.classes.byOffset {
		regions[offset] = mi.owner.name() + "." + mi.entry.Name
	}
	return regions
}
