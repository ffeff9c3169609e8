package arxmod

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arx-lang/arx/bytecode"
)

// ---------------------------------------------------------------------------
// Writer: serializes a module to the container format
// ---------------------------------------------------------------------------

// Writer emits a .arxmod stream. Calls must follow the sequence
// WriteHeader, Add* in any order, Finalize. The layout (TOC size, section
// offsets, data size) is computed at Finalize time and back-patched into
// the header, so the TOC is always sized exactly to the sections present.
type Writer struct {
	dst io.Writer

	appName string
	appData []byte
	flags   uint32

	sections []stagedSection
	seen     map[string]bool

	headerDone bool
	finalized  bool
}

type stagedSection struct {
	name    string
	payload []byte
	flags   uint32
}

// NewWriter creates a Writer targeting dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{
		dst:  dst,
		seen: make(map[string]bool),
	}
}

// WriteHeader stages the header. appName travels inside the APP section;
// Finalize emits that section even when no app blob was added.
func (w *Writer) WriteHeader(appName string) error {
	if w.headerDone {
		return fmt.Errorf("%w: header already written", ErrWriterState)
	}
	if w.finalized {
		return fmt.Errorf("%w: writer finalized", ErrWriterState)
	}
	w.appName = appName
	w.headerDone = true
	return nil
}

// AddCode stages the CODE section.
func (w *Writer) AddCode(prog []bytecode.Instruction) error {
	return w.addSection(SectionCode, bytecode.EncodeProgram(prog), 0)
}

// AddStrings stages the STRINGS section: each entry NUL-terminated.
// Entries containing NUL are rejected.
func (w *Writer) AddStrings(strs []string) error {
	var buf bytes.Buffer
	for i, s := range strs {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("%w: string %d", ErrNulInString, i)
		}
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	return w.addSection(SectionStrings, buf.Bytes(), 0)
}

// AddSymbols stages the SYMBOLS section.
func (w *Writer) AddSymbols(syms []Symbol) error {
	payload, err := encodeSymbols(syms)
	if err != nil {
		return err
	}
	return w.addSection(SectionSymbols, payload, 0)
}

// AddClasses stages the CLASSES section.
func (w *Writer) AddClasses(classes []ClassEntry) error {
	payload, err := encodeClasses(classes)
	if err != nil {
		return err
	}
	return w.addSection(SectionClasses, payload, 0)
}

// AddDebug stages the DEBUG section and sets the debug-info module flag.
func (w *Writer) AddDebug(info *DebugInfo) error {
	payload, err := MarshalDebugInfo(info)
	if err != nil {
		return err
	}
	if err := w.addSection(SectionDebug, payload, 0); err != nil {
		return err
	}
	w.flags |= FlagDebugInfo
	return nil
}

// AddApp stages the application blob. The APP payload is the app name
// followed by the blob; the header records both lengths.
func (w *Writer) AddApp(data []byte) error {
	if !w.headerDone {
		return fmt.Errorf("%w: header not written", ErrWriterState)
	}
	w.appData = data
	payload := make([]byte, 0, len(w.appName)+len(data))
	payload = append(payload, w.appName...)
	payload = append(payload, data...)
	return w.addSection(SectionApp, payload, 0)
}

func (w *Writer) addSection(name string, payload []byte, flags uint32) error {
	if !w.headerDone {
		return fmt.Errorf("%w: header not written", ErrWriterState)
	}
	if w.finalized {
		return fmt.Errorf("%w: writer finalized", ErrWriterState)
	}
	if len(name) > SectionNameSize {
		return fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	if w.seen[name] {
		return fmt.Errorf("%w: %q", ErrDuplicateSection, name)
	}
	w.seen[name] = true
	w.sections = append(w.sections, stagedSection{name: name, payload: payload, flags: flags})
	return nil
}

// Finalize lays out the container, writes it to the destination in one
// pass, and flushes buffered destinations.
func (w *Writer) Finalize() error {
	if !w.headerDone {
		return fmt.Errorf("%w: header not written", ErrWriterState)
	}
	if w.finalized {
		return fmt.Errorf("%w: already finalized", ErrWriterState)
	}
	w.finalized = true

	if w.appName != "" && !w.seen[SectionApp] {
		w.seen[SectionApp] = true
		w.sections = append(w.sections, stagedSection{name: SectionApp, payload: []byte(w.appName)})
	}

	buf := w.layout()
	if _, err := w.dst.Write(buf); err != nil {
		return fmt.Errorf("arxmod: write: %w", err)
	}
	if f, ok := w.dst.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("arxmod: flush: %w", err)
		}
	}
	return nil
}

// layout assembles header + TOC + payloads with final offsets.
func (w *Writer) layout() []byte {
	tocSize := uint64(len(w.sections) * TOCEntrySize)
	dataOffset := uint64(HeaderSize) + tocSize

	var dataSize uint64
	for _, s := range w.sections {
		dataSize += uint64(len(s.payload))
	}

	out := make([]byte, HeaderSize, dataOffset+dataSize)

	// Header.
	copy(out[offMagic:], Magic[:])
	writeUint32(out[offVersion:], Version)
	writeUint32(out[offFlags:], w.flags)
	writeUint32(out[offHeaderSize:], HeaderSize)
	writeUint64(out[offTOCOffset:], HeaderSize)
	writeUint64(out[offTOCSize:], tocSize)
	writeUint64(out[offDataOffset:], dataOffset)
	writeUint64(out[offDataSize:], dataSize)
	writeUint32(out[offAppNameLen:], uint32(len(w.appName)))
	writeUint32(out[offAppDataSize:], uint32(len(w.appData)))

	// TOC: offsets are relative to dataOffset, assigned in add order.
	var off uint64
	for _, s := range w.sections {
		var entry [TOCEntrySize]byte
		copy(entry[:SectionNameSize], s.name)
		writeUint64(entry[16:], off)
		writeUint64(entry[24:], uint64(len(s.payload)))
		writeUint32(entry[32:], s.flags)
		out = append(out, entry[:]...)
		off += uint64(len(s.payload))
	}

	// Payloads.
	for _, s := range w.sections {
		out = append(out, s.payload...)
	}

	return out
}

// ---------------------------------------------------------------------------
// Module: one-shot write API
// ---------------------------------------------------------------------------

// Module is the fully decoded in-memory form of a .arxmod file.
type Module struct {
	AppName string
	Flags   uint32
	Code    []bytecode.Instruction
	Strings []string
	Symbols []Symbol
	Classes []ClassEntry
	Debug   *DebugInfo
	AppData []byte
}

// WriteModule serializes m to dst, emitting only the sections m populates.
// CODE is always written, empty or not.
func WriteModule(dst io.Writer, m *Module) error {
	w := NewWriter(dst)
	w.flags |= m.Flags

	if err := w.WriteHeader(m.AppName); err != nil {
		return err
	}
	if err := w.AddCode(m.Code); err != nil {
		return err
	}
	if len(m.Strings) > 0 {
		if err := w.AddStrings(m.Strings); err != nil {
			return err
		}
	}
	if len(m.Symbols) > 0 {
		if err := w.AddSymbols(m.Symbols); err != nil {
			return err
		}
	}
	if len(m.Classes) > 0 {
		if err := w.AddClasses(m.Classes); err != nil {
			return err
		}
	}
	if m.Debug != nil {
		if err := w.AddDebug(m.Debug); err != nil {
			return err
		}
	}
	if len(m.AppData) > 0 {
		if err := w.AddApp(m.AppData); err != nil {
			return err
		}
	}
	return w.Finalize()
}

// WriteModuleFile writes m to path, syncing the file before close so the
// module is durable when this returns.
func WriteModuleFile(path string, m *Module) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("arxmod: create %s: %w", path, err)
	}
	if err := WriteModule(f, m); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("arxmod: sync %s: %w", path, err)
	}
	return f.Close()
}
