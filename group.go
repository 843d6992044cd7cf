// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

// Group types (spec §3): 0 is "top" (label carries a record-family
// signature), 2-5 are interior/exterior cell blocks and sub-blocks, 6-9
// are children of a cell.
const (
	GroupTypeTop = iota
	GroupTypeWorldChildren
	GroupTypeInteriorCellBlock
	GroupTypeInteriorCellSubBlock
	GroupTypeExteriorCellBlock
	GroupTypeExteriorCellSubBlock
	GroupTypeCellChildren
	GroupTypeTopicChildren
	GroupTypeCellPersistentChildren
	GroupTypeCellTemporaryChildren
)
