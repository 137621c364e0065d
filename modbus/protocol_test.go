package modbus

import (
	"bytes"
	"math"
	"testing"
)

func TestReadADUParsesHeaderAndPayload(t *testing.T) {
	// Transaction ID 1, protocol 0, length 6 (unit + func + 4 data bytes),
	// unit 1, func 3, data: start=0x0000, count=0x0002.
	raw := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x02}

	got, err := readADU(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readADU failed: %v", err)
	}
	if got.TransactionID != 1 || got.UnitID != 1 || got.FunctionCode != FuncReadHoldingRegisters {
		t.Fatalf("unexpected ADU: %+v", got)
	}
	if !bytes.Equal(got.Data, []byte{0x00, 0x00, 0x00, 0x02}) {
		t.Fatalf("unexpected data: %v", got.Data)
	}
}

func TestReadADURejectsNonZeroProtocolID(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x02}
	if _, err := readADU(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected an error for a non-zero protocol id")
	}
}

func TestADUMarshalRoundTrips(t *testing.T) {
	a := &adu{
		mbapHeader:   mbapHeader{TransactionID: 7, ProtocolID: 0, UnitID: 1},
		FunctionCode: FuncReadHoldingRegisters,
		Data:         []byte{0x04, 0xAA, 0xBB, 0xCC, 0xDD},
	}
	raw := a.marshal()

	got, err := readADU(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("round-trip readADU failed: %v", err)
	}
	if got.TransactionID != 7 || got.FunctionCode != FuncReadHoldingRegisters {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if !bytes.Equal(got.Data, a.Data) {
		t.Fatalf("round-trip data mismatch: got %v want %v", got.Data, a.Data)
	}
}

func TestExceptionADUSetsHighBitAndCode(t *testing.T) {
	req := &adu{mbapHeader: mbapHeader{TransactionID: 3}, FunctionCode: 0x06}
	exc := exceptionADU(req, ExceptionIllegalFunction)
	if exc.FunctionCode != 0x86 {
		t.Fatalf("expected function code 0x86, got %#x", exc.FunctionCode)
	}
	if len(exc.Data) != 1 || exc.Data[0] != ExceptionIllegalFunction {
		t.Fatalf("unexpected exception payload: %v", exc.Data)
	}
}

func TestFloat32ToWordsMatchesIEEE754(t *testing.T) {
	bits := math.Float32bits(123.5)
	high, low := float32ToWords(bits)
	recombined := uint32(high)<<16 | uint32(low)
	if recombined != bits {
		t.Fatalf("float32ToWords did not round-trip: got %#x want %#x", recombined, bits)
	}
	if math.Float32frombits(recombined) != 123.5 {
		t.Fatalf("recombined bits did not decode back to 123.5")
	}
}
