// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"debug/elf"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

type ReadOptions struct {
	// ZeroFill includes the SHT_NOBITS sections (.bss and the like) as
	// zero-filled segments. By default they are skipped, as objcopy does.
	ZeroFill bool
}

// ReadELF reads the loadable sections of the program. The section addresses
// are translated to the load addresses using the PT_LOAD program headers.
func ReadELF(r io.ReaderAt, opts ReadOptions) (*Executable, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, &MalformedError{Reason: "cannot parse ELF", Err: err}
	}
	defer f.Close()
	exe := &Executable{Entry: f.Entry}
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Size == 0 {
			continue
		}
		addr := loadAddr(f.Progs, s.Addr)
		if s.Type == elf.SHT_NOBITS {
			if !opts.ZeroFill {
				glog.V(2).Infof("readelf: skipping %s section %s (%d bytes)", s.Type, s.Name, s.Size)
				continue
			}
			exe.Segments = append(exe.Segments, Segment{Name: s.Name, Addr: addr, Size: s.Size})
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, &MalformedError{Segment: s.Name, Reason: "cannot read content", Err: err}
		}
		if uint64(len(data)) < s.Size {
			return nil, &MalformedError{
				Segment: s.Name,
				Reason:  "declared length " + strconv.FormatUint(s.Size, 10) + " exceeds file content",
			}
		}
		glog.V(1).Infof("readelf: section %s vaddr=%#x paddr=%#x size=%#x", s.Name, s.Addr, addr, s.Size)
		exe.Segments = append(exe.Segments, Segment{Name: s.Name, Addr: addr, Size: s.Size, Data: data})
	}
	return exe, nil
}

// ReadELFFile is a convenience wrapper around ReadELF.
func ReadELFFile(name string, opts ReadOptions) (*Executable, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	exe, err := ReadELF(r, opts)
	return exe, errors.WithMessage(err, name)
}

func loadAddr(progs []*elf.Prog, vaddr uint64) uint64 {
	for _, p := range progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Vaddr <= vaddr && vaddr < p.Vaddr+p.Memsz {
			return p.Paddr + vaddr - p.Vaddr
		}
	}
	return vaddr
}

// ReadBins reads binary files acording to the description
// BIN1:ADDR1[,BIN2:ADDR2[,...]] and returns them as segments.
func ReadBins(descr string) ([]Segment, error) {
	bins := strings.Split(descr, ",")
	ss := make([]Segment, len(bins))
	for k, ba := range bins {
		i := strings.LastIndexByte(ba, ':')
		if i <= 0 {
			return nil, errors.Errorf("bad '%s' in the -inc option", ba)
		}
		bin, addr := ba[:i], ba[i+1:]
		s := &ss[k]
		s.Name = bin
		var err error
		s.Addr, err = strconv.ParseUint(addr, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad address in '%s'", ba)
		}
		s.Data, err = os.ReadFile(bin)
		if err != nil {
			return nil, err
		}
		s.Size = uint64(len(s.Data))
	}
	return ss, nil
}
