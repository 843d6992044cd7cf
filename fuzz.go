// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

// Fuzz is a go-fuzz entry point exercising ParseBytes against arbitrary
// input, retaining every record and subrecord so malformed group/record
// nesting gets maximum coverage.
func Fuzz(data []byte) int {
	doc, err := ParseBytes(data, AllowAllFilter(), nil)
	if err != nil {
		return 0
	}
	defer doc.Close()
	return 1
}
