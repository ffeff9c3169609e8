package vm

// ---------------------------------------------------------------------------
// Heap arena: strings and object instances
// ---------------------------------------------------------------------------

// stringTag marks string cells in heap dumps ("STR\0").
const stringTag = 0x53545200

type objectKind int

const (
	kindString objectKind = iota
	kindInstance
)

// heapObject is one allocated heap value. Strings carry bytes,
// instances carry field cells.
type heapObject struct {
	kind   objectKind
	class  *classInfo // instances only
	fields []uint64   // instances only
	bytes  []byte     // strings only
	pins   int
	marked bool
}

// span is the object's footprint in heap cells, used to space
// addresses: a header cell, a length or class cell, the payload, and a
// terminator for strings.
func (o *heapObject) span() uint64 {
	if o.kind == kindString {
		return 2 + uint64(len(o.bytes)+7)/8 + 1
	}
	return 2 + uint64(len(o.fields))
}

// objectArena owns every heap object. Addresses start at the configured
// heap base and are never reused.
type objectArena struct {
	base    uint64
	next    uint64
	objects map[uint64]*heapObject
	strings int // live strings
	cells   int // live instance field cells
}

func newArena(base uint64) *objectArena {
	return &objectArena{
		base:    base,
		next:    base,
		objects: make(map[uint64]*heapObject),
	}
}

func (a *objectArena) allocString(b []byte) uint64 {
	obj := &heapObject{kind: kindString, bytes: b}
	addr := a.next
	a.next += obj.span()
	a.objects[addr] = obj
	a.strings++
	return addr
}

func (a *objectArena) allocInstance(cls *classInfo) uint64 {
	obj := &heapObject{
		kind:   kindInstance,
		class:  cls,
		fields: make([]uint64, cls.slots),
	}
	addr := a.next
	a.next += obj.span()
	a.objects[addr] = obj
	a.cells += cls.slots
	return addr
}

func (a *objectArena) get(addr uint64) (*heapObject, bool) {
	obj, ok := a.objects[addr]
	return obj, ok
}

func (a *objectArena) remove(addr uint64) {
	obj, ok := a.objects[addr]
	if !ok {
		return
	}
	if obj.kind == kindString {
		a.strings--
	} else {
		a.cells -= len(obj.fields)
	}
	delete(a.objects, addr)
}

// ---------------------------------------------------------------------------
// Host-facing object API
// ---------------------------------------------------------------------------

// Retain pins a heap object so collection keeps it regardless of
// reachability. Reports whether the address named a live object.
func (m *VM) Retain(addr uint64) bool {
	obj, ok := m.arena.get(addr)
	if !ok {
		return false
	}
	obj.pins++
	return true
}

// Release undoes one Retain.
func (m *VM) Release(addr uint64) bool {
	obj, ok := m.arena.get(addr)
	if !ok || obj.pins == 0 {
		return false
	}
	obj.pins--
	return true
}

// ObjectField reads one field cell of an instance.
func (m *VM) ObjectField(addr uint64, index int) (uint64, bool) {
	obj, ok := m.arena.get(addr)
	if !ok || obj.kind != kindInstance {
		return 0, false
	}
	if index < 0 || index >= len(obj.fields) {
		return 0, false
	}
	return obj.fields[index], true
}

// ObjectClassName names the class of an instance.
func (m *VM) ObjectClassName(addr uint64) (string, bool) {
	obj, ok := m.arena.get(addr)
	if !ok || obj.kind != kindInstance {
		return "", false
	}
	return obj.class.name(), true
}

// GarbageCollect sweeps heap objects unreachable from the operand
// stack, data memory, call frames, and pins. The scan is conservative:
// any cell holding a value that looks like a live heap address keeps
// that object. Returns the number of objects collected.
func (m *VM) GarbageCollect() int {
	for _, obj := range m.arena.objects {
		obj.marked = false
	}

	var work []uint64
	markAddr := func(v uint64) {
		if v >= m.arena.base {
			if obj, ok := m.arena.get(v); ok && !obj.marked {
				obj.marked = true
				work = append(work, v)
			}
		}
	}

	for i := 0; i < m.top; i++ {
		markAddr(m.stack[i])
	}
	for _, cell := range m.memory {
		markAddr(cell)
	}
	for i := range m.frames {
		markAddr(m.frames[i].receiver)
	}
	for addr, obj := range m.arena.objects {
		if obj.pins > 0 && !obj.marked {
			obj.marked = true
			work = append(work, addr)
		}
	}

	for len(work) > 0 {
		addr := work[len(work)-1]
		work = work[:len(work)-1]
		obj, _ := m.arena.get(addr)
		if obj == nil || obj.kind != kindInstance {
			continue
		}
		for _, cell := range obj.fields {
			markAddr(cell)
		}
	}

	collected := 0
	for addr, obj := range m.arena.objects {
		if !obj.marked {
			m.arena.remove(addr)
			collected++
		}
	}
	if collected > 0 {
		m.log.Debugf("collected %d heap objects, %d live", collected, len(m.arena.objects))
	}
	return collected
}

// allocInstance creates an instance, collecting first when the cell
// budget is spent.
func (m *VM) allocInstance(cls *classInfo) (uint64, bool) {
	if m.arena.cells+cls.slots > m.cfg.MemorySize {
		m.GarbageCollect()
		if m.arena.cells+cls.slots > m.cfg.MemorySize {
			m.faultf(FaultMemoryRange, "object heap exhausted (%d cells live)", m.arena.cells)
			return 0, false
		}
	}
	return m.arena.allocInstance(cls), true
}
