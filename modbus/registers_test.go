package modbus

import (
	"math"
	"testing"

	"github.com/devskill-org/solar-fleet-sim/plant"
)

func TestRegisterMapLookupResolvesPlantAndOffset(t *testing.T) {
	rm := newRegisterMap(map[uint16]string{0: "plant-a", 100: "plant-b"})

	id, offset, found := rm.lookup(4)
	if !found || id != "plant-a" || offset != 4 {
		t.Fatalf("lookup(4) = (%s, %d, %v), want (plant-a, 4, true)", id, offset, found)
	}

	id, offset, found = rm.lookup(102)
	if !found || id != "plant-b" || offset != 2 {
		t.Fatalf("lookup(102) = (%s, %d, %v), want (plant-b, 2, true)", id, offset, found)
	}

	_, _, found = rm.lookup(200)
	if found {
		t.Fatalf("lookup(200) should fall outside both plants' blocks (0..99 and 100..199)")
	}
}

func TestRegisterMapResolveWordUnknownAddressReturnsZero(t *testing.T) {
	rm := newRegisterMap(map[uint16]string{0: "plant-a"})
	if got := rm.resolveWord(9999, map[string]plant.Data{}); got != 0 {
		t.Fatalf("resolveWord for an unmapped address = %d, want 0", got)
	}
}

func TestRegisterMapResolveWordMissingSnapshotReturnsZero(t *testing.T) {
	rm := newRegisterMap(map[uint16]string{0: "plant-a"})
	if got := rm.resolveWord(regPowerKW, map[string]plant.Data{}); got != 0 {
		t.Fatalf("resolveWord with no data for the plant = %d, want 0", got)
	}
}

func TestRegisterMapResolveWordFloatFieldSplitsHighLow(t *testing.T) {
	rm := newRegisterMap(map[uint16]string{0: "plant-a"})
	snapshot := map[string]plant.Data{"plant-a": {PowerKW: 250.75}}

	high := rm.resolveWord(regPowerKW, snapshot)
	low := rm.resolveWord(regPowerKW+1, snapshot)

	bits := uint32(high)<<16 | uint32(low)
	if math.Float32frombits(bits) != float32(250.75) {
		t.Fatalf("recombined float register = %v, want 250.75", math.Float32frombits(bits))
	}
}

func TestRegisterMapResolveWordUint16Field(t *testing.T) {
	rm := newRegisterMap(map[uint16]string{0: "plant-a"})
	snapshot := map[string]plant.Data{"plant-a": {Status: plant.StatusFault, FaultCode: 101}}

	if got := rm.resolveWord(regStatus, snapshot); got != uint16(plant.StatusFault) {
		t.Fatalf("resolveWord(regStatus) = %d, want %d", got, plant.StatusFault)
	}
	if got := rm.resolveWord(regFaultCode, snapshot); got != 101 {
		t.Fatalf("resolveWord(regFaultCode) = %d, want 101", got)
	}
}

func TestRegisterWidthMatchesWireShape(t *testing.T) {
	if w := registerWidth(float32(0)); w != 2 {
		t.Errorf("registerWidth(float32) = %d, want 2", w)
	}
	if w := registerWidth(uint16(0)); w != 1 {
		t.Errorf("registerWidth(uint16) = %d, want 1", w)
	}
}

func TestLayoutCoversEveryFloatAndUint16Field(t *testing.T) {
	layout := Layout()
	if len(layout) == 0 {
		t.Fatal("Layout() returned no fields")
	}
	for _, f := range layout {
		if f.DataType != "float32" && f.DataType != "uint16" {
			t.Errorf("field %s has unexpected data type %q", f.Description, f.DataType)
		}
		if f.Description == "" {
			t.Errorf("field at offset %d has no description", f.Offset)
		}
	}
}
