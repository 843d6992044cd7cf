// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Errors raised while loading string table sidecar files (spec §4.3, §7).
var (
	// ErrStringsFormat is returned when a sidecar file's header or
	// directory is internally inconsistent.
	ErrStringsFormat = errors.New("espkit: malformed strings file")

	// ErrStringsIO is returned when a sidecar file cannot be read.
	ErrStringsIO = errors.New("espkit: strings file I/O error")
)

// stringTableKind distinguishes the three sidecar extensions, since
// STRINGS entries are bare NUL-terminated strings while DLSTRINGS/ILSTRINGS
// entries carry a 4-byte length prefix (spec §4.3).
type stringTableKind int

const (
	kindStrings stringTableKind = iota
	kindDLStrings
	kindILStrings
)

func (k stringTableKind) extension() string {
	switch k {
	case kindDLStrings:
		return "DLSTRINGS"
	case kindILStrings:
		return "ILSTRINGS"
	default:
		return "STRINGS"
	}
}

// StringTable resolves 32-bit string identifiers to translated text loaded
// from a plugin's sibling Strings/ files (spec §4.3).
type StringTable struct {
	entries map[uint32]string
}

// Lookup returns the decoded UTF-8 text for id, or false if id was never
// loaded (spec §4.3).
func (st *StringTable) Lookup(id uint32) (string, bool) {
	if st == nil {
		return "", false
	}
	s, ok := st.entries[id]
	return s, ok
}

// Len reports how many identifiers are currently resolvable.
func (st *StringTable) Len() int {
	if st == nil {
		return 0
	}
	return len(st.entries)
}

// LoadStringTable loads up to three sibling string files for pluginPath
// under "<plugin-dir>/Strings/<base>_<Language>.<ext>", with <Language>
// capitalized on its first letter (spec §4.3). Missing files are skipped
// silently; malformed ones are reported but do not abort the load — the
// caller gets back whatever loaded successfully.
func LoadStringTable(pluginPath, language string) (*StringTable, error) {
	dir := filepath.Dir(pluginPath)
	base := strings.TrimSuffix(filepath.Base(pluginPath), filepath.Ext(pluginPath))
	capitalizedLang := capitalizeFirst(language)

	st := &StringTable{entries: make(map[uint32]string)}

	var firstErr error
	for _, kind := range []stringTableKind{kindStrings, kindDLStrings, kindILStrings} {
		path := filepath.Join(dir, "Strings", fmt.Sprintf("%s_%s.%s", base, capitalizedLang, kind.extension()))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: %v", ErrStringsIO, path, err)
			}
			continue
		}
		if err := st.loadOne(data, kind); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: %v", ErrStringsFormat, path, err)
			}
		}
	}
	return st, firstErr
}

// capitalizeFirst upper-cases only the first rune of s, the same literal
// transform as original_source/EspReader/StringsFileHelper.h's Capitalize
// (not a full title-case).
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(s[:size]) + s[size:]
}

// loadOne decodes a single sidecar file's header/directory/data-block
// layout (spec §4.3) and merges its entries into st.
func (st *StringTable) loadOne(data []byte, kind stringTableKind) error {
	count, err := readUint32(data, 0)
	if err != nil {
		return errors.New("truncated header")
	}
	dataSize, err := readUint32(data, 4)
	if err != nil {
		return errors.New("truncated header")
	}

	dirStart := 8
	dirSize := int(count) * 8
	dataStart := dirStart + dirSize
	dataEnd := dataStart + int(dataSize)
	if dataEnd > len(data) || dataEnd < dataStart {
		return errors.New("directory/data block exceeds file size")
	}
	block := data[dataStart:dataEnd]

	for i := 0; i < int(count); i++ {
		entryOffset := dirStart + i*8
		id, err := readUint32(data, entryOffset)
		if err != nil {
			break
		}
		off, err := readUint32(data, entryOffset+4)
		if err != nil {
			break
		}
		if int(off) >= len(block) {
			continue
		}

		var text []byte
		switch kind {
		case kindStrings:
			text = bareNulTerminated(block, int(off))
		default:
			length, err := readUint32(block, int(off))
			if err != nil {
				continue
			}
			start := int(off) + 4
			end := start + int(length)
			if end > len(block) || end < start {
				continue
			}
			text = block[start:end]
		}
		st.entries[id] = decodeText(text)
	}
	return nil
}

// bareNulTerminated returns the bytes from off up to (excluding) the next
// NUL byte, or the rest of the block if none is found.
func bareNulTerminated(block []byte, off int) []byte {
	end := bytes.IndexByte(block[off:], 0)
	if end < 0 {
		return block[off:]
	}
	return block[off : off+end]
}
