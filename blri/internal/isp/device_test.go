// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isp

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// device simulates the mask ROM on the other end of the serial link.
type device struct {
	mu  sync.Mutex
	out bytes.Buffer

	writes  [][]byte
	cmds    []byte
	written []uint32 // addresses of the received flash writes

	silent    bool   // never answer the sync burst
	syncReply []byte // answer to the sync burst, "OK" if nil
	rejects   int    // number of sync bursts answered with "NO" first
	lateAcks  map[uint32]int
	ackDelay  time.Duration // delay of the late acknowledgments
	dropAcks  map[uint32]int
	nakWrites map[uint32]int
	flashID   []byte
	corrupt   bool // flip a bit of every stored chunk
	failWrite error

	flash  map[uint32][]byte
	baud   int
	closed bool
	resets int
}

func newDevice() *device {
	return &device{
		dropAcks:  make(map[uint32]int),
		lateAcks:  make(map[uint32]int),
		nakWrites: make(map[uint32]int),
		flash:     make(map[uint32][]byte),
		flashID:   []byte{0xef, 0x40, 0x18, 0x00},
	}
}

func (d *device) opener(baud int) (Transport, error) {
	d.mu.Lock()
	d.baud = baud
	d.mu.Unlock()
	return d, nil
}

func (d *device) Read(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if d.out.Len() == 0 {
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer d.mu.Unlock()
	return d.out.Read(p)
}

func (d *device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errors.New("port closed")
	}
	d.writes = append(d.writes, bytes.Clone(p))
	if d.failWrite != nil {
		return 0, d.failWrite
	}
	switch {
	case len(p) == 0:
	case p[0] == syncByte:
		if !d.silent {
			if d.rejects > 0 {
				d.rejects--
				d.out.WriteString("NO")
			} else if d.syncReply != nil {
				d.out.Write(d.syncReply)
			} else {
				d.out.WriteString("OK")
			}
		}
	case bytes.Equal(p, USBWake):
	default:
		d.handle(p)
	}
	return len(p), nil
}

func (d *device) handle(f []byte) {
	if len(f) < 4 {
		return
	}
	cmd := f[0]
	n := int(binary.LittleEndian.Uint16(f[2:]))
	data := f[4:]
	if len(data) != n {
		d.fail(0x0003)
		return
	}
	sum := f[2] + f[3]
	for _, b := range data {
		sum += b
	}
	d.cmds = append(d.cmds, cmd)
	if sum != f[1] {
		d.fail(0x0004)
		return
	}
	switch cmd {
	case cmdGetBootInfo:
		bi := make([]byte, bootInfoSize)
		binary.LittleEndian.PutUint32(bi[0:], 1)
		binary.LittleEndian.PutUint32(bi[8:], 5<<14)
		copy(bi[12:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
		d.ok(bi)
	case cmdChangeRate:
		d.out.WriteString("OK")
		d.baud = int(binary.LittleEndian.Uint32(data[4:]))
	case cmdReset:
		d.resets++
	case cmdFlashErase:
		d.out.WriteString("PDPDOK")
	case cmdFlashWrite:
		addr := binary.LittleEndian.Uint32(data)
		if d.nakWrites[addr] > 0 {
			d.nakWrites[addr]--
			d.fail(0x0601)
			return
		}
		chunk := bytes.Clone(data[4:])
		if d.corrupt {
			chunk[0] ^= 1
		}
		d.flash[addr] = chunk
		d.written = append(d.written, addr)
		if d.dropAcks[addr] > 0 {
			d.dropAcks[addr]--
			return
		}
		if d.lateAcks[addr] > 0 {
			d.lateAcks[addr]--
			time.AfterFunc(d.ackDelay, func() {
				d.mu.Lock()
				defer d.mu.Unlock()
				d.out.WriteString("OK")
			})
			return
		}
		d.out.WriteString("OK")
	case cmdFlashReadID:
		d.ok(d.flashID)
	case cmdWriteCheck, cmdFlashSetParam:
		d.out.WriteString("OK")
	case cmdFlashReadSHA:
		addr := binary.LittleEndian.Uint32(data)
		n := binary.LittleEndian.Uint32(data[4:])
		sum := sha256.Sum256(d.memory(addr, int(n)))
		d.ok(sum[:])
	}
}

func (d *device) ok(p []byte) {
	d.out.WriteString("OK")
	d.out.Write(binary.LittleEndian.AppendUint16(nil, uint16(len(p))))
	d.out.Write(p)
}

func (d *device) fail(code uint16) {
	d.out.WriteString("FL")
	d.out.Write(binary.LittleEndian.AppendUint16(nil, code))
}

// memory assembles n bytes of the simulated flash starting at addr. Caller
// must hold d.mu.
func (d *device) memory(addr uint32, n int) []byte {
	mem := make([]byte, n)
	for a, chunk := range d.flash {
		if a < addr || int(a-addr) >= n {
			continue
		}
		copy(mem[a-addr:], chunk)
	}
	return mem
}

func (d *device) Memory(addr uint32, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory(addr, n)
}

// syncs returns the number of sync bursts received.
func (d *device) syncs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.writes {
		if len(w) > 0 && w[0] == syncByte {
			n++
		}
	}
	return n
}

func (d *device) SetReadTimeout(time.Duration) error { return nil }

func (d *device) SetBaudRate(baud int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baud = baud
	return nil
}

func (d *device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.Reset()
	return nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
