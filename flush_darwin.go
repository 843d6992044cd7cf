// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build darwin

package espkit

import (
	"os"

	"golang.org/x/sys/unix"
)

// flushFile forces f's written content to stable storage. Darwin's fsync
// only flushes to the drive's write cache, so Save additionally issues
// F_FULLFSYNC, matching the disk-barrier semantics the other platforms'
// fdatasync/FlushFileBuffers already provide.
func flushFile(f *os.File) error {
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return err
	}
	_, err := unix.FcntlInt(f.Fd(), unix.F_FULLFSYNC, 0)
	return err
}
