package arxmod

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Class manifest types
// ---------------------------------------------------------------------------

// TypeID identifies a value type in method signatures.
type TypeID uint8

const (
	TypeVoid   TypeID = 0
	TypeInt    TypeID = 1
	TypeString TypeID = 2
	TypeObject TypeID = 3
)

// String returns a human-readable name for a TypeID.
func (t TypeID) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("TypeID(%d)", uint8(t))
	}
}

// NoParentClass marks a class without a parent.
const NoParentClass uint32 = 0xFFFFFFFF

// FieldEntry describes one instance field: its name and byte offset
// within the instance.
type FieldEntry struct {
	Name   string
	Offset uint32
}

// MethodEntry describes one method: its bytecode offset (instruction
// index) and signature.
type MethodEntry struct {
	Name       string
	MethodID   uint32
	Offset     uint64
	ParamCount uint16
	ParamTypes []TypeID
	ReturnType TypeID
	Flags      uint32
}

// ClassEntry describes one class in the module manifest.
type ClassEntry struct {
	Name          string
	ClassID       uint32
	ParentClassID uint32 // NoParentClass if none
	Flags         uint32
	InstanceSize  uint32 // bytes; one 8-byte cell per field
	Fields        []FieldEntry
	Methods       []MethodEntry
}

// Symbol maps a source-level variable name to its flat-memory address
// operand.
type Symbol struct {
	Name    string
	Address uint64
}

// HashClassName derives the wire class id from a class name:
// id = id*31 + byte for each byte, reduced modulo 1000 at every step so
// long names cannot overflow. Distinct names can collide; the linker and
// the class loader both detect and reject collisions.
func HashClassName(name string) uint32 {
	var id uint32
	for i := 0; i < len(name); i++ {
		id = (id*31 + uint32(name[i])) % 1000
	}
	return id
}

// ---------------------------------------------------------------------------
// Payload cursor
// ---------------------------------------------------------------------------

// cursor walks a section payload with bounds checking. Every overrun
// surfaces as ErrTruncatedSection.
type cursor struct {
	data []byte
	off  int
}

func (c *cursor) uint16() (uint16, error) {
	if c.off+2 > len(c.data) {
		return 0, ErrTruncatedSection
	}
	v := readUint16(c.data[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) uint32() (uint32, error) {
	if c.off+4 > len(c.data) {
		return 0, ErrTruncatedSection
	}
	v := readUint32(c.data[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) uint64() (uint64, error) {
	if c.off+8 > len(c.data) {
		return 0, ErrTruncatedSection
	}
	v := readUint64(c.data[c.off:])
	c.off += 8
	return v, nil
}

func (c *cursor) byte() (byte, error) {
	if c.off+1 > len(c.data) {
		return 0, ErrTruncatedSection
	}
	b := c.data[c.off]
	c.off++
	return b, nil
}

// str reads a u16 length-prefixed string.
func (c *cursor) str() (string, error) {
	n, err := c.uint16()
	if err != nil {
		return "", err
	}
	if c.off+int(n) > len(c.data) {
		return "", ErrTruncatedSection
	}
	s := string(c.data[c.off : c.off+int(n)])
	c.off += int(n)
	return s, nil
}

func (c *cursor) done() bool {
	return c.off == len(c.data)
}

// ---------------------------------------------------------------------------
// CLASSES section codec
// ---------------------------------------------------------------------------

// encodeClasses serializes the class manifest.
// Layout: u32 count, then per class: name, class_id, parent_class_id,
// flags, instance_size, u16 field count, u16 method count, fields
// (name + u32 offset), methods (name + u32 method_id + u64 offset +
// u16 param count + param types + u8 return type + u32 flags). Strings
// are u16 length-prefixed.
func encodeClasses(classes []ClassEntry) ([]byte, error) {
	var buf []byte
	buf = appendUint32(buf, uint32(len(classes)))

	for _, cls := range classes {
		var err error
		if buf, err = appendString(buf, cls.Name); err != nil {
			return nil, fmt.Errorf("class %q: %w", cls.Name, err)
		}
		buf = appendUint32(buf, cls.ClassID)
		buf = appendUint32(buf, cls.ParentClassID)
		buf = appendUint32(buf, cls.Flags)
		buf = appendUint32(buf, cls.InstanceSize)
		buf = appendUint16(buf, uint16(len(cls.Fields)))
		buf = appendUint16(buf, uint16(len(cls.Methods)))

		for _, f := range cls.Fields {
			if buf, err = appendString(buf, f.Name); err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			buf = appendUint32(buf, f.Offset)
		}

		for _, m := range cls.Methods {
			if buf, err = appendString(buf, m.Name); err != nil {
				return nil, fmt.Errorf("method %q: %w", m.Name, err)
			}
			buf = appendUint32(buf, m.MethodID)
			buf = appendUint64(buf, m.Offset)
			buf = appendUint16(buf, m.ParamCount)
			for _, pt := range m.ParamTypes {
				buf = append(buf, uint8(pt))
			}
			buf = append(buf, uint8(m.ReturnType))
			buf = appendUint32(buf, m.Flags)
		}
	}

	return buf, nil
}

// decodeClasses parses a CLASSES payload.
func decodeClasses(data []byte) ([]ClassEntry, error) {
	c := &cursor{data: data}

	count, err := c.uint32()
	if err != nil {
		return nil, err
	}
	// A class entry is at least 22 bytes even with an empty name and no
	// members, so a larger count cannot fit the payload.
	if uint64(count) > uint64(len(data))/22 {
		return nil, fmt.Errorf("%w: class count %d exceeds payload", ErrTruncatedSection, count)
	}

	classes := make([]ClassEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var cls ClassEntry
		if cls.Name, err = c.str(); err != nil {
			return nil, err
		}
		if cls.ClassID, err = c.uint32(); err != nil {
			return nil, err
		}
		if cls.ParentClassID, err = c.uint32(); err != nil {
			return nil, err
		}
		if cls.Flags, err = c.uint32(); err != nil {
			return nil, err
		}
		if cls.InstanceSize, err = c.uint32(); err != nil {
			return nil, err
		}
		fieldCount, err := c.uint16()
		if err != nil {
			return nil, err
		}
		methodCount, err := c.uint16()
		if err != nil {
			return nil, err
		}

		for j := uint16(0); j < fieldCount; j++ {
			var f FieldEntry
			if f.Name, err = c.str(); err != nil {
				return nil, err
			}
			if f.Offset, err = c.uint32(); err != nil {
				return nil, err
			}
			cls.Fields = append(cls.Fields, f)
		}

		for j := uint16(0); j < methodCount; j++ {
			var m MethodEntry
			if m.Name, err = c.str(); err != nil {
				return nil, err
			}
			if m.MethodID, err = c.uint32(); err != nil {
				return nil, err
			}
			if m.Offset, err = c.uint64(); err != nil {
				return nil, err
			}
			if m.ParamCount, err = c.uint16(); err != nil {
				return nil, err
			}
			for k := uint16(0); k < m.ParamCount; k++ {
				b, err := c.byte()
				if err != nil {
					return nil, err
				}
				m.ParamTypes = append(m.ParamTypes, TypeID(b))
			}
			rt, err := c.byte()
			if err != nil {
				return nil, err
			}
			m.ReturnType = TypeID(rt)
			if m.Flags, err = c.uint32(); err != nil {
				return nil, err
			}
			cls.Methods = append(cls.Methods, m)
		}

		classes = append(classes, cls)
	}

	if !c.done() {
		return nil, fmt.Errorf("%w: %d trailing bytes in class manifest", ErrCorruptTOC, len(data)-c.off)
	}
	return classes, nil
}

// ---------------------------------------------------------------------------
// SYMBOLS section codec
// ---------------------------------------------------------------------------

// encodeSymbols serializes the variable symbol table:
// u32 count, then per symbol a u16 length-prefixed name and a u64 address.
func encodeSymbols(syms []Symbol) ([]byte, error) {
	var buf []byte
	buf = appendUint32(buf, uint32(len(syms)))
	for _, s := range syms {
		var err error
		if buf, err = appendString(buf, s.Name); err != nil {
			return nil, fmt.Errorf("symbol %q: %w", s.Name, err)
		}
		buf = appendUint64(buf, s.Address)
	}
	return buf, nil
}

// decodeSymbols parses a SYMBOLS payload.
func decodeSymbols(data []byte) ([]Symbol, error) {
	c := &cursor{data: data}

	count, err := c.uint32()
	if err != nil {
		return nil, err
	}
	// Ten bytes per symbol at minimum: empty name plus the address.
	if uint64(count) > uint64(len(data))/10 {
		return nil, fmt.Errorf("%w: symbol count %d exceeds payload", ErrTruncatedSection, count)
	}

	syms := make([]Symbol, 0, count)
	for i := uint32(0); i < count; i++ {
		var s Symbol
		if s.Name, err = c.str(); err != nil {
			return nil, err
		}
		if s.Address, err = c.uint64(); err != nil {
			return nil, err
		}
		syms = append(syms, s)
	}

	if !c.done() {
		return nil, fmt.Errorf("%w: %d trailing bytes in symbol table", ErrCorruptTOC, len(data)-c.off)
	}
	return syms, nil
}

// ---------------------------------------------------------------------------
// Append helpers
// ---------------------------------------------------------------------------

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	writeUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	writeUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	writeUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(s))
	}
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}
