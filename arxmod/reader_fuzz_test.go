package arxmod

import (
	"bytes"
	"testing"

	"github.com/arx-lang/arx/bytecode"
)

// FuzzReader feeds arbitrary bytes through the full read path. Errors
// are acceptable for malformed input; panics and out-of-bounds reads
// are bugs.
func FuzzReader(f *testing.F) {
	// Seed with a complete valid image so mutations explore the
	// interesting neighborhood.
	f.Add(buildTestImage(f))

	var minimal bytes.Buffer
	if err := WriteModule(&minimal, &Module{
		Code: []bytecode.Instruction{bytecode.New(bytecode.OpHalt, 0, 0)},
	}); err != nil {
		f.Fatalf("WriteModule failed: %v", err)
	}
	f.Add(minimal.Bytes())

	// Header-only prefix and a bare magic.
	f.Add(minimal.Bytes()[:HeaderSize])
	f.Add(Magic[:])
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := NewReader(data)
		if err != nil {
			return
		}

		for _, entry := range r.TOC() {
			if _, err := r.SectionData(entry.Name); err != nil {
				t.Errorf("TOC lists %q but SectionData failed: %v", entry.Name, err)
			}
		}

		r.LoadCode()
		r.LoadStrings()
		r.LoadSymbols()
		r.LoadClasses()
		r.LoadDebug()
		r.LoadApp()
	})
}

// FuzzDecodeClasses targets the class manifest codec directly.
func FuzzDecodeClasses(f *testing.F) {
	seed, err := encodeClasses([]ClassEntry{{
		Name:          "Counter",
		ClassID:       HashClassName("Counter"),
		ParentClassID: NoParentClass,
		InstanceSize:  8,
		Fields:        []FieldEntry{{Name: "count", Offset: 0}},
		Methods: []MethodEntry{{
			Name:       "Add",
			Offset:     2,
			ParamCount: 1,
			ParamTypes: []TypeID{TypeInt},
			ReturnType: TypeInt,
		}},
	}})
	if err != nil {
		f.Fatalf("encodeClasses failed: %v", err)
	}
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{0x01, 0x00, 0x00, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		classes, err := decodeClasses(data)
		if err != nil {
			return
		}
		// Whatever decoded must re-encode without error.
		if _, err := encodeClasses(classes); err != nil {
			t.Errorf("decoded manifest failed to re-encode: %v", err)
		}
	})
}
