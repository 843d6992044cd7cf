// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build linux || freebsd

package espkit

import (
	"os"

	"golang.org/x/sys/unix"
)

// flushFile forces f's written content to stable storage before Save
// reports success, mirroring the fdatasync call the teacher corpus makes
// after a dirty-range writeback.
func flushFile(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
