// Package modbus implements the read-only Modbus/TCP server (C5): a
// static, block-per-plant register map projecting shared telemetry
// state through function codes 3 (Read Holding Registers) and 4 (Read
// Input Registers).
package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Function codes this server understands. Anything else yields
// ExceptionIllegalFunction.
const (
	FuncReadHoldingRegisters = 0x03
	FuncReadInputRegisters   = 0x04
)

// ExceptionIllegalFunction is returned in the exception response byte
// for any unsupported function code.
const ExceptionIllegalFunction = 0x01

// mbapHeader is the Modbus Application Protocol header: the same
// seven-byte framing precedes every request and response ADU.
type mbapHeader struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        uint8
}

func (h *mbapHeader) scan(r io.Reader) error {
	buf := make([]byte, 7)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read MBAP header: %w", err)
	}
	h.TransactionID = binary.BigEndian.Uint16(buf[0:2])
	h.ProtocolID = binary.BigEndian.Uint16(buf[2:4])
	h.Length = binary.BigEndian.Uint16(buf[4:6])
	h.UnitID = buf[6]
	if h.ProtocolID != 0 {
		return fmt.Errorf("unsupported protocol id: %d", h.ProtocolID)
	}
	if h.Length < 2 {
		return fmt.Errorf("invalid MBAP length: %d", h.Length)
	}
	return nil
}

func (h *mbapHeader) marshal() []byte {
	buf := make([]byte, 7)
	binary.BigEndian.PutUint16(buf[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = h.UnitID
	return buf
}

// adu is one complete Modbus TCP Application Data Unit: the MBAP
// header plus a function code and its payload.
type adu struct {
	mbapHeader
	FunctionCode uint8
	Data         []byte
}

// readADU reads one full request ADU from r: the MBAP header, then
// exactly (Length-1) further bytes (function code + payload).
func readADU(r io.Reader) (*adu, error) {
	a := &adu{}
	if err := a.mbapHeader.scan(r); err != nil {
		return nil, err
	}
	rest := make([]byte, int(a.Length)-1)
	if len(rest) > 0 {
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, fmt.Errorf("read ADU body: %w", err)
		}
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("ADU missing function code")
	}
	a.FunctionCode = rest[0]
	a.Data = rest[1:]
	return a, nil
}

// marshal renders the ADU (header, function code, payload) as wire bytes.
func (a *adu) marshal() []byte {
	a.Length = uint16(2 + len(a.Data))
	buf := a.mbapHeader.marshal()
	buf = append(buf, a.FunctionCode)
	buf = append(buf, a.Data...)
	return buf
}

// exceptionADU builds a Modbus exception response: function code with
// the high bit set, followed by a single exception-code byte.
func exceptionADU(req *adu, exceptionCode uint8) *adu {
	return &adu{
		mbapHeader:   req.mbapHeader,
		FunctionCode: req.FunctionCode | 0x80,
		Data:         []byte{exceptionCode},
	}
}

// float32ToWords big-endian-splits an IEEE-754 single into its high
// and low 16-bit words: high word first (at the field's base offset),
// low word second (at base+1).
func float32ToWords(bits uint32) (high, low uint16) {
	return uint16(bits >> 16), uint16(bits & 0xFFFF)
}
