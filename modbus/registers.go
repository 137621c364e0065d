package modbus

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/devskill-org/solar-fleet-sim/plant"
)

// registerWidth reports how many 16-bit Modbus registers a value of
// type T occupies on the wire. Adapted from the teacher pack's
// intDataSize[T constraints.Integer | constraints.Float] (itself
// adapted from encoding/binary): byte width halved and rounded up,
// since every field here is either a u16 (1 register) or an f32 (2).
func registerWidth[T constraints.Integer | constraints.Float](data T) uint16 {
	var byteWidth int
	switch any(data).(type) {
	case int8, uint8, int16, uint16:
		byteWidth = 2
	case int32, uint32, float32:
		byteWidth = 4
	case int64, uint64, float64:
		byteWidth = 8
	}
	return uint16((byteWidth + 1) / 2)
}

// Fixed per-plant register offsets (relative to a plant's base
// address). Float32 fields occupy two consecutive registers
// (high word at the offset, low word at offset+1); u16 fields occupy one.
const (
	regPowerKW            = 0
	regVoltageL1V         = 2
	regCurrentL1A         = 4
	regFrequencyHz        = 6
	regTemperatureC       = 8
	regStatus             = 10
	regVoltageL2V         = 11
	regVoltageL3V         = 13
	regCurrentL2A         = 15
	regCurrentL3A         = 17
	regReactivePowerKVAR  = 19
	regApparentPowerKVA   = 21
	regPowerFactor        = 23
	regRocofHzS           = 25
	regDCVoltageV         = 27
	regDCCurrentA         = 29
	regDCPowerKW          = 31
	regMPPTVoltageV       = 33
	regMPPTCurrentA       = 35
	regInverterTempC      = 37
	regAmbientTempC       = 39
	regEfficiencyPct      = 41
	regPOAIrradiance      = 43
	regSolarElevation     = 45
	regPerfRatio          = 47
	regSpecificYield      = 49
	regCapacityFactor     = 51
	regIsolationMOhm      = 53
	regFaultCode          = 55
	regAlarmFlags         = 56
	regDailyEnergyKWh     = 57
	regMonthlyEnergyKWh   = 59
	regTotalEnergyKWh     = 61

	// RegisterBlockSize is the reserved register span per plant (spec
	// recommends 100; only offsets 0..=62 are populated).
	RegisterBlockSize = 100
)

// FieldLayout describes one field's placement in a plant's register
// block, relative to that plant's base address.
type FieldLayout struct {
	Offset      uint16
	Length      uint16
	DataType    string
	Description string
}

// Layout returns the fixed field table of §4.5, in offset order, as
// served by GET /api/modbus/info. resolveWord does not read this table;
// it resolves offsets through floatField and uint16Field, which list the
// same offsets separately.
func Layout() []FieldLayout {
	f32 := registerWidth(float32(0))
	u16 := registerWidth(uint16(0))
	return []FieldLayout{
		{regPowerKW, f32, "float32", "power_kw"},
		{regVoltageL1V, f32, "float32", "voltage_l1_v"},
		{regCurrentL1A, f32, "float32", "current_l1_a"},
		{regFrequencyHz, f32, "float32", "frequency_hz"},
		{regTemperatureC, f32, "float32", "temperature_c"},
		{regStatus, u16, "uint16", "status"},
		{regVoltageL2V, f32, "float32", "voltage_l2_v"},
		{regVoltageL3V, f32, "float32", "voltage_l3_v"},
		{regCurrentL2A, f32, "float32", "current_l2_a"},
		{regCurrentL3A, f32, "float32", "current_l3_a"},
		{regReactivePowerKVAR, f32, "float32", "reactive_kvar"},
		{regApparentPowerKVA, f32, "float32", "apparent_kva"},
		{regPowerFactor, f32, "float32", "power_factor"},
		{regRocofHzS, f32, "float32", "rocof_hz_s"},
		{regDCVoltageV, f32, "float32", "dc_voltage_v"},
		{regDCCurrentA, f32, "float32", "dc_current_a"},
		{regDCPowerKW, f32, "float32", "dc_power_kw"},
		{regMPPTVoltageV, f32, "float32", "mppt_voltage_v"},
		{regMPPTCurrentA, f32, "float32", "mppt_current_a"},
		{regInverterTempC, f32, "float32", "inverter_temp_c"},
		{regAmbientTempC, f32, "float32", "ambient_temp_c"},
		{regEfficiencyPct, f32, "float32", "efficiency_pct"},
		{regPOAIrradiance, f32, "float32", "poa_irradiance_w_m2"},
		{regSolarElevation, f32, "float32", "solar_elevation_deg"},
		{regPerfRatio, f32, "float32", "performance_ratio"},
		{regSpecificYield, f32, "float32", "specific_yield_kwh_kwp"},
		{regCapacityFactor, f32, "float32", "capacity_factor_percent"},
		{regIsolationMOhm, f32, "float32", "isolation_resistance_mohm"},
		{regFaultCode, u16, "uint16", "fault_code"},
		{regAlarmFlags, u16, "uint16", "alarm_flags"},
		{regDailyEnergyKWh, f32, "float32", "daily_energy_kwh"},
		{regMonthlyEnergyKWh, f32, "float32", "monthly_energy_kwh"},
		{regTotalEnergyKWh, f32, "float32", "total_energy_kwh"},
	}
}

// fieldKind distinguishes the two wire widths a register field can take.
type fieldKind int

const (
	kindFloat32 fieldKind = iota
	kindUint16
)

// floatField returns the float64 value for one of the two-register
// fields of d, used by the register map at build/resolve time.
func floatField(d plant.Data, offset uint16) (float64, bool) {
	switch offset {
	case regPowerKW:
		return d.PowerKW, true
	case regVoltageL1V:
		return d.VoltageL1V, true
	case regCurrentL1A:
		return d.CurrentL1A, true
	case regFrequencyHz:
		return d.FrequencyHz, true
	case regTemperatureC:
		return d.TemperatureC, true
	case regVoltageL2V:
		return d.VoltageL2V, true
	case regVoltageL3V:
		return d.VoltageL3V, true
	case regCurrentL2A:
		return d.CurrentL2A, true
	case regCurrentL3A:
		return d.CurrentL3A, true
	case regReactivePowerKVAR:
		return d.ReactiveKVAR, true
	case regApparentPowerKVA:
		return d.ApparentKVA, true
	case regPowerFactor:
		return d.PowerFactor, true
	case regRocofHzS:
		return d.RocofHzS, true
	case regDCVoltageV:
		return d.DCVoltageV, true
	case regDCCurrentA:
		return d.DCCurrentA, true
	case regDCPowerKW:
		return d.DCPowerKW, true
	case regMPPTVoltageV:
		return d.MPPTVoltageV, true
	case regMPPTCurrentA:
		return d.MPPTCurrentA, true
	case regInverterTempC:
		return d.InverterTempC, true
	case regAmbientTempC:
		return d.AmbientTempC, true
	case regEfficiencyPct:
		// Efficiency isn't stored as a dedicated field on Data; derive it
		// from AC/DC power, matching what §4.5 exposes at this offset.
		if d.DCPowerKW > 0 {
			return d.PowerKW / d.DCPowerKW * 100.0, true
		}
		return 0, true
	case regPOAIrradiance:
		return d.POAIrradianceWM2, true
	case regSolarElevation:
		return d.SolarElevationDeg, true
	case regPerfRatio:
		return d.PerformanceRatio, true
	case regSpecificYield:
		return d.SpecificYieldKWhKWp, true
	case regCapacityFactor:
		return d.CapacityFactorPercent, true
	case regIsolationMOhm:
		return d.IsolationResistanceMOhm, true
	case regDailyEnergyKWh:
		return d.DailyEnergyKWh, true
	case regMonthlyEnergyKWh:
		return d.MonthlyEnergyKWh, true
	case regTotalEnergyKWh:
		return d.TotalEnergyKWh, true
	default:
		return 0, false
	}
}

// uint16Field returns the raw u16 value for one of the single-register
// fields of d.
func uint16Field(d plant.Data, offset uint16) (uint16, bool) {
	switch offset {
	case regStatus:
		return uint16(d.Status), true
	case regFaultCode:
		return d.FaultCode, true
	case regAlarmFlags:
		return uint16(d.AlarmFlags), true
	default:
		return 0, false
	}
}

// isFloatBase reports whether offset is the base (high-word) register
// of a two-register float field, and whether offset+1 is its low word.
func isFloatBase(offset uint16) bool {
	_, ok := floatField(plant.Data{}, offset)
	return ok
}

// registerMap maps a global register address to the plant it belongs
// to and the address of that plant's base, built once from the fleet
// configuration and reused read-only for the server's lifetime.
type registerMap struct {
	// blocks maps each plant's base address to its plant ID.
	blocks map[uint16]string
}

func newRegisterMap(plants map[uint16]string) *registerMap {
	blocks := make(map[uint16]string, len(plants))
	for base, id := range plants {
		blocks[base] = id
	}
	return &registerMap{blocks: blocks}
}

// lookup resolves a global register address to (plantID, offset,
// found). found is false for any address not inside a configured
// plant's block.
func (rm *registerMap) lookup(addr uint16) (plantID string, offset uint16, found bool) {
	for base, id := range rm.blocks {
		if addr < base {
			continue
		}
		rel := addr - base
		if rel < RegisterBlockSize {
			return id, rel, true
		}
	}
	return "", 0, false
}

// resolveWord returns the 16-bit register value at global address
// addr, given a single coherent snapshot of every plant's data. Unmapped
// addresses (no plant's block, or an offset the layout doesn't define,
// or a plant with no data yet) resolve to zero without error.
func (rm *registerMap) resolveWord(addr uint16, snapshot map[string]plant.Data) uint16 {
	plantID, offset, found := rm.lookup(addr)
	if !found {
		return 0
	}
	data, ok := snapshot[plantID]
	if !ok {
		return 0
	}

	if u, ok := uint16Field(data, offset); ok {
		return u
	}

	// Two-register float fields: the base offset carries the high
	// word, offset+1 the low word.
	if isFloatBase(offset) {
		v, _ := floatField(data, offset)
		bits := math.Float32bits(float32(v))
		high, _ := float32ToWords(bits)
		return high
	}
	if offset > 0 {
		if v, ok := floatField(data, offset-1); ok {
			bits := math.Float32bits(float32(v))
			_, low := float32ToWords(bits)
			return low
		}
	}
	return 0
}
