// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isp

import (
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Transport is a serial link to the device. Read must return (0, nil) when
// no data arrived within the read timeout.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	SetBaudRate(baud int) error
	ResetInputBuffer() error
}

// Opener opens the transport at the given baud rate.
type Opener func(baud int) (Transport, error)

type serialPort struct {
	serial.Port
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (p serialPort) SetBaudRate(baud int) error {
	return p.SetMode(serialMode(baud))
}

// OpenSerial opens the named serial port in 8N1 mode.
func OpenSerial(name string, baud int) (Transport, error) {
	p, err := serial.Open(name, serialMode(baud))
	if err != nil {
		return nil, &TransportError{"open " + name, err}
	}
	return serialPort{p}, nil
}

// SerialOpener returns an Opener for the named serial port.
func SerialOpener(name string) Opener {
	return func(baud int) (Transport, error) {
		return OpenSerial(name, baud)
	}
}

type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// ListPorts returns the serial ports available in the system sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// The enumerator is unavailable on some platforms.
		names, err1 := serial.GetPortsList()
		if err1 != nil {
			return nil, errors.Wrap(err, "list serial ports")
		}
		ports := make([]PortInfo, len(names))
		for i, name := range names {
			ports[i].Name = name
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
		return ports, nil
	}
	ports := make([]PortInfo, len(details))
	for i, d := range details {
		ports[i] = PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
