// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// WriteHex writes the raw image located at base in the Intel HEX format.
func WriteHex(w io.Writer, base uint64, img []byte) error {
	if base+uint64(len(img)) > 1<<32 {
		return errors.Errorf("hex: image %#x+%#x doesn't fit in 32-bit address space", base, len(img))
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(uint32(base), img); err != nil {
		return errors.Wrap(err, "hex")
	}
	return errors.Wrap(mem.DumpIntelHex(w, 16), "hex")
}

// ReadHex reads an Intel HEX file. Every data record block becomes one
// segment of the returned executable.
func ReadHex(r io.Reader) (*Executable, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, &MalformedError{Reason: "cannot parse Intel HEX", Err: err}
	}
	exe := new(Executable)
	for _, ds := range mem.GetDataSegments() {
		exe.Segments = append(exe.Segments, Segment{
			Addr: uint64(ds.Address),
			Size: uint64(len(ds.Data)),
			Data: ds.Data,
		})
	}
	return exe, nil
}
