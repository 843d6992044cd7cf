// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeText converts a raw subrecord byte buffer into UTF-8 text following
// spec §4.2: strip one trailing NUL, pass through if already valid UTF-8,
// otherwise reinterpret as Windows-1252.
//
// The "valid UTF-8 wins" heuristic is not injective — a byte sequence that
// happens to validate as UTF-8 but was authored as two Windows-1252
// characters decodes under the UTF-8 interpretation. This mirrors the
// source tool's behavior and is a documented limitation, not a bug (spec §9).
func decodeText(raw []byte) string {
	b := raw
	if n := len(b); n > 0 && b[n-1] == 0x00 {
		b = b[:n-1]
	}
	if utf8.Valid(b) {
		return string(b)
	}
	// charmap.Windows1252 maps 0x00-0x7F as ASCII and 0x80-0x9F/0xA0-0xFF
	// per the fixed table in spec §4.2, including the documented
	// 0x80=€ and 0x85=… entries.
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// Windows-1252 has no undefined code points in this decoder's
		// table, so this path is unreachable in practice; fall back to
		// a lossy pass-through rather than losing the bytes entirely.
		return string(b)
	}
	return string(out)
}

// hasVisibleText returns true iff utf8Text contains a codepoint that is
// neither ASCII whitespace nor the ideographic full-width space U+3000
// (spec §4.2). Grounded on original_source/EspReader/TextHelper.cpp's
// HasVisibleText, which walks the whole buffer rather than stopping at the
// first rune, so a string made entirely of repeated U+3000 runs is still
// reported as having no visible text.
func hasVisibleText(utf8Text string) bool {
	for _, r := range utf8Text {
		if r == '　' {
			continue
		}
		if isASCIISpace(r) {
			continue
		}
		return true
	}
	return false
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}
