package arxmod

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestHashClassName(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		{"", 0},
		{"A", 65},
		{"Counter", 76},
		{"Main", 489},
	}
	for _, tt := range tests {
		if got := HashClassName(tt.name); got != tt.want {
			t.Errorf("HashClassName(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestHashClassNameRange(t *testing.T) {
	names := []string{"x", "Shape", "VeryLongClassNameIndeed", strings.Repeat("Z", 10000)}
	for _, name := range names {
		if got := HashClassName(name); got >= 1000 {
			t.Errorf("HashClassName(%q) = %d, outside [0, 1000)", name, got)
		}
	}
}

// Distinct names can hash to the same id; downstream consumers must
// detect that, so the hash itself just reports what it reports.
func TestHashClassNameCollision(t *testing.T) {
	a, b := HashClassName("A"), HashClassName("A2")
	if a != b {
		t.Fatalf("expected collision fixture: HashClassName(A)=%d, HashClassName(A2)=%d", a, b)
	}
}

func TestClassesCodecRoundTrip(t *testing.T) {
	classes := []ClassEntry{
		{
			Name:          "Shape",
			ClassID:       HashClassName("Shape"),
			ParentClassID: NoParentClass,
			InstanceSize:  16,
			Fields: []FieldEntry{
				{Name: "width", Offset: 0},
				{Name: "height", Offset: 8},
			},
			Methods: []MethodEntry{
				{Name: "Area", MethodID: 0, Offset: 4, ReturnType: TypeInt},
				{
					Name:       "Scale",
					MethodID:   1,
					Offset:     12,
					ParamCount: 2,
					ParamTypes: []TypeID{TypeInt, TypeInt},
					ReturnType: TypeVoid,
				},
			},
		},
		{
			Name:          "Circle",
			ClassID:       HashClassName("Circle"),
			ParentClassID: HashClassName("Shape"),
			InstanceSize:  0,
		},
	}

	payload, err := encodeClasses(classes)
	if err != nil {
		t.Fatalf("encodeClasses failed: %v", err)
	}
	got, err := decodeClasses(payload)
	if err != nil {
		t.Fatalf("decodeClasses failed: %v", err)
	}
	if !reflect.DeepEqual(got, classes) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, classes)
	}
}

func TestClassesCodecEmpty(t *testing.T) {
	payload, err := encodeClasses(nil)
	if err != nil {
		t.Fatalf("encodeClasses failed: %v", err)
	}
	got, err := decodeClasses(payload)
	if err != nil {
		t.Fatalf("decodeClasses failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d classes from empty manifest", len(got))
	}
}

func TestClassesCodecTruncation(t *testing.T) {
	classes := []ClassEntry{{
		Name:    "Point",
		ClassID: HashClassName("Point"),
		Fields:  []FieldEntry{{Name: "x", Offset: 0}},
		Methods: []MethodEntry{{Name: "Get", ReturnType: TypeInt}},
	}}
	payload, err := encodeClasses(classes)
	if err != nil {
		t.Fatalf("encodeClasses failed: %v", err)
	}

	// Every proper prefix must fail cleanly, never panic.
	for cut := 0; cut < len(payload); cut++ {
		if _, err := decodeClasses(payload[:cut]); !errors.Is(err, ErrTruncatedSection) {
			t.Errorf("cut at %d: %v, want ErrTruncatedSection", cut, err)
		}
	}
}

func TestClassesCodecTrailingBytes(t *testing.T) {
	payload, err := encodeClasses([]ClassEntry{{Name: "T"}})
	if err != nil {
		t.Fatalf("encodeClasses failed: %v", err)
	}
	if _, err := decodeClasses(append(payload, 0x00)); !errors.Is(err, ErrCorruptTOC) {
		t.Errorf("trailing byte: %v, want ErrCorruptTOC", err)
	}
}

func TestClassesCodecRejectsLongName(t *testing.T) {
	_, err := encodeClasses([]ClassEntry{{Name: strings.Repeat("x", 0x10000)}})
	if !errors.Is(err, ErrNameTooLong) {
		t.Errorf("oversized name: %v, want ErrNameTooLong", err)
	}
}

func TestSymbolsCodecRoundTrip(t *testing.T) {
	syms := []Symbol{
		{Name: "count", Address: 0},
		{Name: "msg", Address: 1},
		{Name: "result", Address: 7},
	}
	payload, err := encodeSymbols(syms)
	if err != nil {
		t.Fatalf("encodeSymbols failed: %v", err)
	}
	got, err := decodeSymbols(payload)
	if err != nil {
		t.Fatalf("decodeSymbols failed: %v", err)
	}
	if !reflect.DeepEqual(got, syms) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, syms)
	}
}

func TestSymbolsCodecTruncation(t *testing.T) {
	payload, err := encodeSymbols([]Symbol{{Name: "v", Address: 3}})
	if err != nil {
		t.Fatalf("encodeSymbols failed: %v", err)
	}
	for cut := 0; cut < len(payload); cut++ {
		if _, err := decodeSymbols(payload[:cut]); !errors.Is(err, ErrTruncatedSection) {
			t.Errorf("cut at %d: %v, want ErrTruncatedSection", cut, err)
		}
	}
}

func TestTypeIDString(t *testing.T) {
	tests := []struct {
		id   TypeID
		want string
	}{
		{TypeVoid, "void"},
		{TypeInt, "int"},
		{TypeString, "string"},
		{TypeObject, "object"},
		{TypeID(9), "TypeID(9)"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("TypeID(%d).String() = %q, want %q", uint8(tt.id), got, tt.want)
		}
	}
}
