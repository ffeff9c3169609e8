package arxmod

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode holds CBOR encoding options with canonical mode so DEBUG
// payloads are deterministic for identical inputs.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("arxmod: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// LineEntry maps an instruction index to a source line.
type LineEntry struct {
	Index uint64 `cbor:"i"`
	Line  uint32 `cbor:"l"`
}

// DebugInfo is the DEBUG section payload: build identity plus the
// instruction-to-line table.
type DebugInfo struct {
	BuildID    string      `cbor:"build_id"`
	Source     string      `cbor:"source"`
	CompiledAt int64       `cbor:"compiled_at"`
	Compiler   string      `cbor:"compiler"`
	Lines      []LineEntry `cbor:"lines,omitempty"`
}

// NewBuildID returns a fresh build identifier.
func NewBuildID() string {
	return uuid.New().String()
}

// MarshalDebugInfo serializes DebugInfo to canonical CBOR bytes.
func MarshalDebugInfo(d *DebugInfo) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDebugInfo deserializes DebugInfo from CBOR bytes.
func UnmarshalDebugInfo(data []byte) (*DebugInfo, error) {
	var d DebugInfo
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("arxmod: unmarshal debug info: %w", err)
	}
	return &d, nil
}

// LineFor returns the source line for an instruction index, or 0 when
// the table has no entry at or before it.
func (d *DebugInfo) LineFor(index uint64) uint32 {
	var line uint32
	for _, e := range d.Lines {
		if e.Index > index {
			break
		}
		line = e.Line
	}
	return line
}
