// Package arxmod reads and writes the .arxmod binary module container:
// a fixed 64-byte header, a table of contents of 40-byte entries, and the
// section payloads (CODE, STRINGS, SYMBOLS, DEBUG, CLASSES, APP).
package arxmod

import (
	"encoding/binary"
	"errors"
)

// ---------------------------------------------------------------------------
// Format constants
// ---------------------------------------------------------------------------

// Magic identifies a .arxmod file.
var Magic = [8]byte{'A', 'R', 'X', 'M', 'O', 'D', 0, 0}

// Version is the current container format version.
const Version uint32 = 1

// HeaderSize is the fixed header size in bytes.
// magic(8) + version(4) + flags(4) + header_size(4) + toc_offset(8) +
// toc_size(8) + data_offset(8) + data_size(8) + app_name_len(4) +
// app_data_size(4) + reserved(4) = 64
const HeaderSize = 64

// TOCEntrySize is the fixed size of one table-of-contents entry.
// name(16) + offset(8) + size(8) + flags(4) + reserved(4) = 40
const TOCEntrySize = 40

// SectionNameSize is the fixed width of the TOC name field.
const SectionNameSize = 16

// Header field offsets.
const (
	offMagic       = 0
	offVersion     = 8
	offFlags       = 12
	offHeaderSize  = 16
	offTOCOffset   = 20
	offTOCSize     = 28
	offDataOffset  = 36
	offDataSize    = 44
	offAppNameLen  = 52
	offAppDataSize = 56
)

// Well-known section names.
const (
	SectionCode    = "CODE"
	SectionStrings = "STRINGS"
	SectionSymbols = "SYMBOLS"
	SectionDebug   = "DEBUG"
	SectionClasses = "CLASSES"
	SectionApp     = "APP"
)

// Module flags.
const (
	FlagNone      uint32 = 0
	FlagDebugInfo uint32 = 1 << 0 // DEBUG section present
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrBadMagic           = errors.New("arxmod: bad magic")
	ErrUnsupportedVersion = errors.New("arxmod: unsupported version")
	ErrCorruptHeader      = errors.New("arxmod: corrupt header")
	ErrCorruptTOC         = errors.New("arxmod: corrupt table of contents")
	ErrTruncatedSection   = errors.New("arxmod: truncated section")
	ErrSectionNotFound    = errors.New("arxmod: section not found")
	ErrDuplicateSection   = errors.New("arxmod: duplicate section")
	ErrNameTooLong        = errors.New("arxmod: section name too long")
	ErrNulInString        = errors.New("arxmod: string contains NUL byte")
	ErrWriterState        = errors.New("arxmod: writer call out of sequence")
)

// ---------------------------------------------------------------------------
// Header and TOC
// ---------------------------------------------------------------------------

// Header is the parsed fixed header of a module.
type Header struct {
	Version     uint32
	Flags       uint32
	HeaderSize  uint32
	TOCOffset   uint64
	TOCSize     uint64
	DataOffset  uint64
	DataSize    uint64
	AppNameLen  uint32
	AppDataSize uint32
}

// SectionCount returns the number of TOC entries the header describes.
func (h Header) SectionCount() int {
	return int(h.TOCSize / TOCEntrySize)
}

// TOCEntry is one parsed table-of-contents entry. Offset is relative to
// the header's data_offset.
type TOCEntry struct {
	Name   string
	Offset uint64
	Size   uint64
	Flags  uint32
}

// ---------------------------------------------------------------------------
// Binary encoding helpers
// ---------------------------------------------------------------------------

func writeUint16(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf, v)
}

func readUint16(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf)
}

func writeUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func readUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

func writeUint64(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

func readUint64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
