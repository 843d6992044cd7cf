// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

//go:build windows

package espkit

import (
	"os"

	"golang.org/x/sys/windows"
)

// flushFile forces f's written content to stable storage before Save
// reports success.
func flushFile(f *os.File) error {
	return windows.FlushFileBuffers(windows.Handle(f.Fd()))
}
