package vm

// String values travel as u64 references: below the heap base they are
// string-table ids, at or above it they are heap string addresses.
// STR_CREATE bridges the two by copying a table entry onto the heap.

// resolveString dereferences either form, faulting on a bad reference.
func (m *VM) resolveString(ref uint64) (string, bool) {
	if ref < m.cfg.HeapBase {
		if ref < uint64(len(m.strTab)) {
			return m.strTab[ref], true
		}
		m.faultf(FaultBadString, "string id %d outside table of %d", ref, len(m.strTab))
		return "", false
	}
	obj, ok := m.arena.get(ref)
	if !ok || obj.kind != kindString {
		m.faultf(FaultBadString, "no string at heap address %d", ref)
		return "", false
	}
	return string(obj.bytes), true
}

// StringAt is the non-faulting variant of string resolution, for tools
// and tests inspecting a machine.
func (m *VM) StringAt(ref uint64) (string, bool) {
	if ref < m.cfg.HeapBase {
		if ref < uint64(len(m.strTab)) {
			return m.strTab[ref], true
		}
		return "", false
	}
	obj, ok := m.arena.get(ref)
	if !ok || obj.kind != kindString {
		return "", false
	}
	return string(obj.bytes), true
}

// allocString places s on the heap, collecting first when the string
// budget is spent.
func (m *VM) allocString(s string) (uint64, bool) {
	if m.arena.strings >= m.cfg.StringCapacity {
		m.GarbageCollect()
		if m.arena.strings >= m.cfg.StringCapacity {
			m.faultf(FaultBadString, "string heap full (%d live)", m.arena.strings)
			return 0, false
		}
	}
	return m.arena.allocString([]byte(s)), true
}
