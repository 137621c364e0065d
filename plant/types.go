// Package plant implements the per-plant simulation core (C3): the pure
// Tick function that turns one solar OfflineEstimate into a complete
// inverter telemetry record, alarm transitions, and KPI bookkeeping.
package plant

import "time"

// Config is the domain-facing, JSON-decoupled plant configuration
// consumed by the tick engine.
type Config struct {
	ID                string
	Name              string
	LatitudeDeg       float64
	LongitudeDeg      float64
	NominalPowerKW    float64
	Timezone          string
	ModbusBaseAddress uint16
}

// Status is the coarse operating state of one plant.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
	StatusFault
	StatusCurtailed
	StatusStarting
	StatusMPPT
)

// String renders the coarse operating state the way the taxonomy's
// original status_label switch does (RUNNING, FAULT, CURTAILED,
// STARTING, MPPT, else STOPPED).
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusFault:
		return "FAULT"
	case StatusCurtailed:
		return "CURTAILED"
	case StatusStarting:
		return "STARTING"
	case StatusMPPT:
		return "MPPT"
	default:
		return "STOPPED"
	}
}

// Alarm codes (spec.md §7 taxonomy).
const (
	CodeNone              uint16 = 0
	CodeACOvervoltage     uint16 = 101
	CodeACUndervoltage    uint16 = 102
	CodeACOverfrequency   uint16 = 103
	CodeACUnderfrequency  uint16 = 104
	CodeROCOFTrip         uint16 = 105
	CodeGridIslanding     uint16 = 106
	CodeDCOvervoltage     uint16 = 201
	CodeDCUndervoltage    uint16 = 202
	CodeMPPTFailure       uint16 = 203
	CodeIsolationFault    uint16 = 301
	CodeGroundFault       uint16 = 302
	CodeOvertemperature   uint16 = 401
	CodeFanFault          uint16 = 402
	CodeCommunicationLoss uint16 = 501
	CodeInternalFault     uint16 = 999
)

// Alarm flag bits (alarm_flags). Bit positions beyond what spec.md pins
// explicitly (0,1: AC over/undervoltage; 2: frequency fault; 3:
// isolation; 4: overtemperature) are assigned in raised-alarm order from
// §4.3 step 16's priority list, one bit per remaining taxonomy entry.
const (
	FlagACOvervoltage  uint32 = 1 << 0
	FlagACUndervoltage uint32 = 1 << 1
	FlagFrequencyFault uint32 = 1 << 2
	FlagIsolationFault uint32 = 1 << 3
	FlagOvertemperature uint32 = 1 << 4
	FlagLeakageCurrent uint32 = 1 << 5
	FlagFanFault       uint32 = 1 << 6
	FlagDCOvervoltage  uint32 = 1 << 7
	FlagROCOFTrip      uint32 = 1 << 8
)

// AlarmSeverity classifies an Alarm's urgency.
type AlarmSeverity int

const (
	SeverityInfo AlarmSeverity = iota
	SeverityWarning
	SeverityCritical
	SeverityFault
)

func (s AlarmSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityCritical:
		return "Critical"
	case SeverityFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// Alarm is one raised (and possibly since-cleared) protection condition.
type Alarm struct {
	ID         string        `json:"id"`
	PlantID    string        `json:"plant_id"`
	Code       uint16        `json:"code"`
	Severity   AlarmSeverity `json:"severity"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
	Active     bool          `json:"active"`
	ClearedAt  *time.Time    `json:"cleared_at,omitempty"`
}

// EventKind classifies an Event entry.
type EventKind int

const (
	EventPlantStartup EventKind = iota
	EventPlantShutdown
	EventModeChange
	EventAlarmRaised
	EventAlarmCleared
	EventFaultTrip
	EventGridDisconnect
	EventGridReconnect
	EventCurtailmentStart
	EventCurtailmentEnd
	EventSettingChanged
)

func (k EventKind) String() string {
	switch k {
	case EventPlantStartup:
		return "PlantStartup"
	case EventPlantShutdown:
		return "PlantShutdown"
	case EventModeChange:
		return "ModeChange"
	case EventAlarmRaised:
		return "AlarmRaised"
	case EventAlarmCleared:
		return "AlarmCleared"
	case EventFaultTrip:
		return "FaultTrip"
	case EventGridDisconnect:
		return "GridDisconnect"
	case EventGridReconnect:
		return "GridReconnect"
	case EventCurtailmentStart:
		return "CurtailmentStart"
	case EventCurtailmentEnd:
		return "CurtailmentEnd"
	case EventSettingChanged:
		return "SettingChanged"
	default:
		return "Unknown"
	}
}

// Event is one entry in the ring-buffered, newest-first activity log.
type Event struct {
	ID        string      `json:"id"`
	PlantID   *string     `json:"plant_id,omitempty"`
	Kind      EventKind   `json:"kind"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Data is the full mutable per-plant telemetry record (PlantData).
type Data struct {
	// Three-phase AC
	PowerKW        float64 `json:"power_kw"`
	VoltageL1V     float64 `json:"voltage_l1_v"`
	VoltageL2V     float64 `json:"voltage_l2_v"`
	VoltageL3V     float64 `json:"voltage_l3_v"`
	CurrentL1A     float64 `json:"current_l1_a"`
	CurrentL2A     float64 `json:"current_l2_a"`
	CurrentL3A     float64 `json:"current_l3_a"`
	FrequencyHz    float64 `json:"frequency_hz"`
	RocofHzS       float64 `json:"rocof_hz_s"`
	PowerFactor    float64 `json:"power_factor"`
	ReactiveKVAR   float64 `json:"reactive_power_kvar"`
	ApparentKVA    float64 `json:"apparent_power_kva"`
	ACThdPercent   float64 `json:"ac_thd_percent"`
	DCInjectionMA  float64 `json:"dc_injection_ma"`

	// DC / MPPT
	DCVoltageV     float64 `json:"dc_voltage_v"`
	DCCurrentA     float64 `json:"dc_current_a"`
	DCPowerKW      float64 `json:"dc_power_kw"`
	MPPTVoltageV   float64 `json:"mppt_voltage_v"`
	MPPTCurrentA   float64 `json:"mppt_current_a"`
	String1VoltageV float64 `json:"string1_voltage_v"`
	String1CurrentA float64 `json:"string1_current_a"`
	String2VoltageV float64 `json:"string2_voltage_v"`
	String2CurrentA float64 `json:"string2_current_a"`

	// Thermal
	TemperatureC        float64 `json:"temperature_c"`
	InverterTempC       float64 `json:"inverter_temp_c"`
	AmbientTempC        float64 `json:"ambient_temp_c"`
	InverterFanSpeedRPM uint16  `json:"inverter_fan_speed_rpm"`
	FanFaultActive      bool    `json:"fan_fault_active"`

	// Irradiance
	POAIrradianceWM2    float64 `json:"poa_irradiance_w_m2"`
	CloudFactor         float64 `json:"cloud_factor"`
	SolarElevationDeg   float64 `json:"solar_elevation_deg"`
	WindSpeedMS         float64 `json:"wind_speed_m_s"`
	RelativeHumidityPct float64 `json:"relative_humidity_pct"`
	SoilingFactor       float64 `json:"soiling_factor"`
	WeatherCode         uint16  `json:"weather_code"`
	IsDay               bool    `json:"is_day"`

	// Safety
	IsolationResistanceMOhm float64 `json:"isolation_resistance_mohm"`
	LeakageCurrentMA        float64 `json:"leakage_current_ma"`
	Status                  Status  `json:"status"`
	FaultCode               uint16  `json:"fault_code"`
	AlarmFlags              uint32  `json:"alarm_flags"`

	// Energy
	DailyEnergyKWh     float64 `json:"daily_energy_kwh"`
	MonthlyEnergyKWh   float64 `json:"monthly_energy_kwh"`
	TotalEnergyKWh     float64 `json:"total_energy_kwh"`
	CO2AvoidedKg       float64 `json:"co2_avoided_kg"`
	DailyPeakPowerKW   float64 `json:"daily_peak_power_kw"`
	LastDayReset       int     `json:"last_day_reset"`

	// KPIs
	PerformanceRatio      float64 `json:"performance_ratio"`
	SpecificYieldKWhKWp   float64 `json:"specific_yield_kwh_kwp"`
	CapacityFactorPercent float64 `json:"capacity_factor_percent"`

	// Simulation bookkeeping
	RampFactor float64 `json:"ramp_factor"`
}
