// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image turns the loadable content of an executable into the raw
// binary image that the mask ROM executes.
package image

import (
	"fmt"
	"sort"
)

// MaxSize limits the span of a single raw image. Executables whose segments
// are spread over a larger address range (e.g. Flash and RAM) cannot be
// flattened into one image.
const MaxSize = 256 << 20

// DefaultPad is the byte used to fill gaps between segments.
const DefaultPad = 0x00

// Segment is a contiguous region of the executable memory image.
type Segment struct {
	Name string // informative only
	Addr uint64 // load (physical) address
	Size uint64 // number of bytes covered by the segment
	Data []byte // content, nil for a zero-filled segment
}

func (s *Segment) ZeroFill() bool { return s.Data == nil }

func (s *Segment) End() uint64 { return s.Addr + s.Size }

func (s *Segment) String() string {
	kind := "data"
	if s.ZeroFill() {
		kind = "zero"
	}
	return fmt.Sprintf("%s %#x+%#x (%s)", s.Name, s.Addr, s.Size, kind)
}

// Executable is the loadable view of a program.
type Executable struct {
	Segments []Segment
	Entry    uint64
}

// Sorted returns the non-empty segments sorted by the load address.
func (exe *Executable) Sorted() []Segment {
	ss := make([]Segment, 0, len(exe.Segments))
	for _, s := range exe.Segments {
		if s.Size != 0 {
			ss = append(ss, s)
		}
	}
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].Addr < ss[j].Addr })
	return ss
}

// Base returns the lowest load address of the executable.
func (exe *Executable) Base() (uint64, bool) {
	ss := exe.Sorted()
	if len(ss) == 0 {
		return 0, false
	}
	return ss[0].Addr, true
}

// Extract flattens the executable into a raw binary image that starts at the
// lowest segment address. The gaps between segments are filled with the pad
// byte, zero-filled segments are written as zeros.
func Extract(exe *Executable, pad byte) ([]byte, error) {
	if exe == nil {
		return nil, &MalformedError{Reason: "no executable"}
	}
	ss := exe.Sorted()
	if len(ss) == 0 {
		return nil, &MalformedError{Reason: "no loadable segments"}
	}
	base, end := ss[0].Addr, ss[0].Addr
	for i := range ss {
		s := &ss[i]
		if !s.ZeroFill() && uint64(len(s.Data)) < s.Size {
			return nil, &MalformedError{
				Segment: s.Name,
				Reason: fmt.Sprintf(
					"declared length %#x exceeds available content %#x",
					s.Size, len(s.Data),
				),
			}
		}
		if s.End() < s.Addr {
			return nil, &MalformedError{Segment: s.Name, Reason: "address overflow"}
		}
		if s.Addr < end && i != 0 {
			return nil, &MalformedError{
				Segment: s.Name,
				Reason:  fmt.Sprintf("overlaps the previous segment (%#x < %#x)", s.Addr, end),
			}
		}
		end = max(end, s.End())
	}
	if end-base > MaxSize {
		return nil, &MalformedError{
			Reason: fmt.Sprintf("segments span %#x bytes (%#x-%#x)", end-base, base, end),
		}
	}
	img := make([]byte, end-base)
	if pad != 0 {
		for i := range img {
			img[i] = pad
		}
	}
	for _, s := range ss {
		dst := img[s.Addr-base : s.End()-base]
		if s.ZeroFill() {
			clear(dst)
		} else {
			copy(dst, s.Data[:s.Size])
		}
	}
	return img, nil
}
