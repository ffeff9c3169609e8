package arxmod

import (
	"bytes"
	"fmt"
	"os"

	"github.com/arx-lang/arx/bytecode"
)

// ---------------------------------------------------------------------------
// Reader: validates and decodes the container format
// ---------------------------------------------------------------------------

// Reader provides validated access to a module image held in memory.
// Construction parses the header and table of contents; every section
// access afterwards is bounds-checked against the data region.
type Reader struct {
	data   []byte
	header Header
	toc    []TOCEntry
}

// NewReader parses and validates the header and TOC of data.
func NewReader(data []byte) (*Reader, error) {
	r := &Reader{data: data}
	if err := r.parseHeader(); err != nil {
		return nil, err
	}
	if err := r.parseTOC(); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenFile reads path and returns a Reader over its contents.
func OpenFile(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("arxmod: open %s: %w", path, err)
	}
	return NewReader(data)
}

func (r *Reader) parseHeader() error {
	if len(r.data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes, need %d", ErrCorruptHeader, len(r.data), HeaderSize)
	}

	if !bytes.Equal(r.data[offMagic:offMagic+8], Magic[:]) {
		return fmt.Errorf("%w: got %q", ErrBadMagic, r.data[offMagic:offMagic+8])
	}

	h := Header{
		Version:     readUint32(r.data[offVersion:]),
		Flags:       readUint32(r.data[offFlags:]),
		HeaderSize:  readUint32(r.data[offHeaderSize:]),
		TOCOffset:   readUint64(r.data[offTOCOffset:]),
		TOCSize:     readUint64(r.data[offTOCSize:]),
		DataOffset:  readUint64(r.data[offDataOffset:]),
		DataSize:    readUint64(r.data[offDataSize:]),
		AppNameLen:  readUint32(r.data[offAppNameLen:]),
		AppDataSize: readUint32(r.data[offAppDataSize:]),
	}

	if h.Version != Version {
		return fmt.Errorf("%w: expected %d, got %d", ErrUnsupportedVersion, Version, h.Version)
	}
	if h.HeaderSize != HeaderSize {
		return fmt.Errorf("%w: header_size %d, expected %d", ErrCorruptHeader, h.HeaderSize, HeaderSize)
	}

	total := uint64(len(r.data))
	if h.TOCOffset < HeaderSize || h.TOCOffset > total {
		return fmt.Errorf("%w: toc_offset %d", ErrCorruptHeader, h.TOCOffset)
	}
	if h.TOCSize%TOCEntrySize != 0 {
		return fmt.Errorf("%w: toc_size %d not a multiple of %d", ErrCorruptTOC, h.TOCSize, TOCEntrySize)
	}
	if h.TOCOffset+h.TOCSize < h.TOCOffset || h.TOCOffset+h.TOCSize > total {
		return fmt.Errorf("%w: toc extends beyond file", ErrCorruptTOC)
	}
	if h.DataOffset < h.TOCOffset+h.TOCSize || h.DataOffset > total {
		return fmt.Errorf("%w: data_offset %d", ErrCorruptHeader, h.DataOffset)
	}
	if h.DataOffset+h.DataSize < h.DataOffset || h.DataOffset+h.DataSize > total {
		return fmt.Errorf("%w: data region extends beyond file", ErrCorruptHeader)
	}

	r.header = h
	return nil
}

func (r *Reader) parseTOC() error {
	n := r.header.SectionCount()
	r.toc = make([]TOCEntry, 0, n)

	for i := 0; i < n; i++ {
		raw := r.data[r.header.TOCOffset+uint64(i*TOCEntrySize):]

		name := string(bytes.TrimRight(raw[:SectionNameSize], "\x00"))
		entry := TOCEntry{
			Name:   name,
			Offset: readUint64(raw[16:]),
			Size:   readUint64(raw[24:]),
			Flags:  readUint32(raw[32:]),
		}

		if entry.Offset+entry.Size < entry.Offset || entry.Offset+entry.Size > r.header.DataSize {
			return fmt.Errorf("%w: section %q claims [%d,%d) beyond data size %d",
				ErrCorruptTOC, entry.Name, entry.Offset, entry.Offset+entry.Size, r.header.DataSize)
		}

		r.toc = append(r.toc, entry)
	}

	return nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// TOC returns the parsed table of contents in file order.
func (r *Reader) TOC() []TOCEntry {
	return r.toc
}

// FindSection looks up a TOC entry by name.
func (r *Reader) FindSection(name string) (TOCEntry, bool) {
	for _, e := range r.toc {
		if e.Name == name {
			return e, true
		}
	}
	return TOCEntry{}, false
}

// SectionData returns the payload bytes of a named section.
func (r *Reader) SectionData(name string) ([]byte, error) {
	e, ok := r.FindSection(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSectionNotFound, name)
	}
	start := r.header.DataOffset + e.Offset
	return r.data[start : start+e.Size], nil
}

// ---------------------------------------------------------------------------
// Typed section loaders
// ---------------------------------------------------------------------------

// LoadCode decodes the CODE section. CODE is the one section a module
// cannot do without, so absence is an error here, unlike the loaders for
// optional sections.
func (r *Reader) LoadCode() ([]bytecode.Instruction, error) {
	payload, err := r.SectionData(SectionCode)
	if err != nil {
		return nil, err
	}
	prog, err := bytecode.DecodeProgram(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedSection, err)
	}
	return prog, nil
}

// LoadStrings decodes the STRINGS section; a missing section is an empty
// table. Each entry is NUL-terminated.
func (r *Reader) LoadStrings() ([]string, error) {
	payload, err := r.SectionData(SectionStrings)
	if err != nil {
		return nil, nil
	}
	if len(payload) == 0 {
		return nil, nil
	}
	if payload[len(payload)-1] != 0 {
		return nil, fmt.Errorf("%w: string table not NUL-terminated", ErrTruncatedSection)
	}

	parts := bytes.Split(payload[:len(payload)-1], []byte{0})
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = string(p)
	}
	return strs, nil
}

// LoadSymbols decodes the SYMBOLS section; missing means none.
func (r *Reader) LoadSymbols() ([]Symbol, error) {
	payload, err := r.SectionData(SectionSymbols)
	if err != nil {
		return nil, nil
	}
	return decodeSymbols(payload)
}

// LoadClasses decodes the CLASSES section; missing means none.
func (r *Reader) LoadClasses() ([]ClassEntry, error) {
	payload, err := r.SectionData(SectionClasses)
	if err != nil {
		return nil, nil
	}
	return decodeClasses(payload)
}

// LoadDebug decodes the DEBUG section; missing means nil.
func (r *Reader) LoadDebug() (*DebugInfo, error) {
	payload, err := r.SectionData(SectionDebug)
	if err != nil {
		return nil, nil
	}
	return UnmarshalDebugInfo(payload)
}

// LoadApp returns the app name and blob from the APP section, using the
// header's length fields to split the payload.
func (r *Reader) LoadApp() (string, []byte, error) {
	payload, err := r.SectionData(SectionApp)
	if err != nil {
		return "", nil, nil
	}
	nameLen := uint64(r.header.AppNameLen)
	dataLen := uint64(r.header.AppDataSize)
	if nameLen+dataLen != uint64(len(payload)) {
		return "", nil, fmt.Errorf("%w: app payload %d bytes, header claims %d+%d",
			ErrTruncatedSection, len(payload), nameLen, dataLen)
	}
	name := string(payload[:nameLen])
	var data []byte
	if dataLen > 0 {
		data = payload[nameLen:]
	}
	return name, data, nil
}

// ---------------------------------------------------------------------------
// One-shot read API
// ---------------------------------------------------------------------------

// ReadModule decodes a full module image.
func ReadModule(data []byte) (*Module, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}

	m := &Module{Flags: r.header.Flags}

	if m.Code, err = r.LoadCode(); err != nil {
		return nil, err
	}
	if m.Strings, err = r.LoadStrings(); err != nil {
		return nil, err
	}
	if m.Symbols, err = r.LoadSymbols(); err != nil {
		return nil, err
	}
	if m.Classes, err = r.LoadClasses(); err != nil {
		return nil, err
	}
	if m.Debug, err = r.LoadDebug(); err != nil {
		return nil, err
	}
	if m.AppName, m.AppData, err = r.LoadApp(); err != nil {
		return nil, err
	}

	return m, nil
}

// ReadModuleFile decodes a module from a file.
func ReadModuleFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("arxmod: read %s: %w", path, err)
	}
	return ReadModule(data)
}
