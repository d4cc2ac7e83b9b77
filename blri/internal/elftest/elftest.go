// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elftest builds small ELF executables for tests.
package elftest

import (
	"bytes"
	"crypto/sha256"
	"debug/elf"
	"encoding/binary"

	"github.com/embeddedgo/bltools/blri/internal/bootheader"
)

type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint32
	Size  uint32 // used for SHT_NOBITS
	Data  []byte
}

// Build builds a minimal little-endian ELF32 RISC-V executable.
func Build(entry uint32, progs []elf.Prog32, secs []Section) []byte {
	const (
		ehsize = 52
		phsize = 32
		shsize = 40
	)
	dataOff := ehsize + phsize*len(progs)
	shstr := []byte{0}
	body := []byte{}
	shdrs := []elf.Section32{{}}
	for _, s := range secs {
		sh := elf.Section32{
			Name:      uint32(len(shstr)),
			Type:      uint32(s.Type),
			Flags:     uint32(s.Flags),
			Addr:      s.Addr,
			Size:      s.Size,
			Addralign: 1,
		}
		shstr = append(append(shstr, s.Name...), 0)
		if s.Type != elf.SHT_NOBITS {
			sh.Off = uint32(dataOff + len(body))
			sh.Size = uint32(len(s.Data))
			body = append(body, s.Data...)
		}
		shdrs = append(shdrs, sh)
	}
	shdrs = append(shdrs, elf.Section32{
		Name:      uint32(len(shstr)),
		Type:      uint32(elf.SHT_STRTAB),
		Off:       uint32(dataOff + len(body)),
		Addralign: 1,
	})
	shstr = append(shstr, ".shstrtab\x00"...)
	shdrs[len(shdrs)-1].Size = uint32(len(shstr))
	body = append(body, shstr...)
	for (dataOff+len(body))%4 != 0 {
		body = append(body, 0)
	}
	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehsize,
		Shoff:     uint32(dataOff + len(body)),
		Ehsize:    ehsize,
		Phentsize: phsize,
		Phnum:     uint16(len(progs)),
		Shentsize: shsize,
		Shnum:     uint16(len(shdrs)),
		Shstrndx:  uint16(len(shdrs) - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	// Writes of fixed-size values to a bytes.Buffer cannot fail.
	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, &hdr)
	for i := range progs {
		binary.Write(&buf, le, &progs[i])
	}
	buf.Write(body)
	for i := range shdrs {
		binary.Write(&buf, le, &shdrs[i])
	}
	return buf.Bytes()
}

// FlashBase is the load address of the firmware built by Firmware.
const FlashBase = 0x5800_0000

// Firmware builds an executable whose image starts with an unpatched boot
// header (valid magics, placeholder hash) followed by text.
func Firmware(text []byte) []byte {
	hdr := make([]byte, bootheader.Size)
	copy(hdr, bootheader.Magic[:])
	copy(hdr[0x08:], bootheader.FlashMagic[:])
	copy(hdr[0x64:], bootheader.ClockMagic[:])
	copy(hdr[0x90:0x90+sha256.Size], bootheader.HashPlaceholder[:])
	size := uint32(len(hdr) + len(text))
	progs := []elf.Prog32{{
		Type: uint32(elf.PT_LOAD), Vaddr: FlashBase, Paddr: FlashBase,
		Filesz: size, Memsz: size,
	}}
	alloc := elf.SHF_ALLOC
	secs := []Section{
		{Name: ".head", Type: elf.SHT_PROGBITS, Flags: alloc, Addr: FlashBase, Data: hdr},
		{Name: ".text", Type: elf.SHT_PROGBITS, Flags: alloc | elf.SHF_EXECINSTR, Addr: FlashBase + bootheader.Size, Data: text},
	}
	return Build(FlashBase, progs, secs)
}
