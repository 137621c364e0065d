package plant

import (
	"testing"
	"time"

	"github.com/devskill-org/solar-fleet-sim/solar"
)

func testConfig() Config {
	return Config{
		ID:             "plant-a",
		Name:           "Test Plant",
		LatitudeDeg:    45.0,
		LongitudeDeg:   7.6,
		NominalPowerKW: 500.0,
		Timezone:       "UTC",
	}
}

func noonEstimate() solar.OfflineEstimate {
	return solar.OfflineEstimate{
		PowerKWDC:           400.0,
		GHIPOAWM2:           850.0,
		CellTempC:           45.0,
		AmbientTempC:        28.0,
		WeatherCode:         1,
		IsDay:               true,
		CloudFactor:         1.0,
		SolarElevationDeg:   55.0,
		WindSpeedMS:         2.0,
		RelativeHumidityPct: 40.0,
		SoilingFactor:       1.0,
	}
}

func nightEstimate() solar.OfflineEstimate {
	return solar.OfflineEstimate{
		PowerKWDC:    0.0,
		GHIPOAWM2:    0.0,
		CellTempC:    12.0,
		AmbientTempC: 12.0,
		IsDay:        false,
	}
}

// runUntilRamped ticks the same noon estimate until the MPPT ramp
// factor reaches (near) 1.0, returning the final Data.
func runUntilRamped(t *testing.T, cfg Config, est solar.OfflineEstimate, when time.Time) Data {
	t.Helper()
	var prev Data
	prevFreq := fNom
	for i := 0; i < 200; i++ {
		res := Tick(prev, est, cfg, prevFreq, when)
		prev = res.Data
		prevFreq = res.Data.FrequencyHz
		if prev.RampFactor > 0.999 {
			break
		}
	}
	return prev
}

func TestTickRampsUpFromStopped(t *testing.T) {
	cfg := testConfig()
	when := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)

	var prev Data
	res := Tick(prev, noonEstimate(), cfg, fNom, when)
	if res.Data.RampFactor <= 0 {
		t.Fatalf("expected ramp factor to start increasing from zero, got %v", res.Data.RampFactor)
	}
	if res.Data.Status != StatusStarting && res.Data.Status != StatusMPPT {
		t.Fatalf("expected starting/mppt status on first sunny tick, got %v", res.Data.Status)
	}

	final := runUntilRamped(t, cfg, noonEstimate(), when)
	if final.RampFactor < 0.999 {
		t.Fatalf("ramp factor did not converge to 1.0 after many ticks: %v", final.RampFactor)
	}
	if final.PowerKW <= 0 {
		t.Fatalf("expected positive AC power once ramped, got %v", final.PowerKW)
	}
	if final.Status != StatusRunning && final.Status != StatusMPPT {
		t.Fatalf("expected running/mppt status once ramped, got %v", final.Status)
	}
}

func TestTickNightProducesZeroPower(t *testing.T) {
	cfg := testConfig()
	when := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)

	final := runUntilRamped(t, cfg, nightEstimate(), when)
	if final.PowerKW != 0 {
		t.Fatalf("expected zero AC power at night, got %v", final.PowerKW)
	}
	if final.Status != StatusStopped {
		t.Fatalf("expected stopped status at night, got %v", final.Status)
	}
}

func TestTickMidnightResetsDailyEnergy(t *testing.T) {
	cfg := testConfig()
	day1 := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 22, 12, 0, 0, 0, time.UTC)

	final := runUntilRamped(t, cfg, noonEstimate(), day1)
	if final.DailyEnergyKWh <= 0 {
		t.Fatalf("expected positive daily energy after ticking through day 1, got %v", final.DailyEnergyKWh)
	}
	totalBeforeReset := final.TotalEnergyKWh

	res := Tick(final, noonEstimate(), cfg, final.FrequencyHz, day2)
	if res.Data.LastDayReset != day2.YearDay() {
		t.Fatalf("expected LastDayReset to advance to day2's day-of-year, got %d", res.Data.LastDayReset)
	}
	if res.Data.DailyPeakPowerKW > res.Data.PowerKW+1e-9 {
		t.Fatalf("expected daily peak to reset at midnight boundary, got %v vs power %v", res.Data.DailyPeakPowerKW, res.Data.PowerKW)
	}
	if res.Data.TotalEnergyKWh < totalBeforeReset {
		t.Fatalf("total energy must never decrease across a midnight reset")
	}
}

// Grid voltage, frequency and isolation resistance are all derived each
// tick from a deterministic hash of (plant ID, epoch window), not from
// the previous sample, so a fault condition can only be exercised by
// landing on an epoch whose hash happens to fall under that
// condition's injection probability. These two epochs were located
// offline against the same fleetmath.Hash64 the engine uses, so the
// tests below are reproducible without relying on randomness.
var (
	overvoltageEpoch         = time.Unix(3600, 0).UTC()
	underfreqAndIsolateEpoch = time.Unix(40200, 0).UTC()
	quietEpoch               = time.Unix(0, 0).UTC()
)

func TestTickOvervoltageRaisesAlarmAndFaultCode(t *testing.T) {
	cfg := testConfig()
	prev := runUntilRamped(t, cfg, noonEstimate(), quietEpoch)

	res := Tick(prev, noonEstimate(), cfg, prev.FrequencyHz, overvoltageEpoch)

	if res.FaultCode != CodeACOvervoltage {
		t.Fatalf("expected fault_code %d at the overvoltage epoch, got %d", CodeACOvervoltage, res.FaultCode)
	}
	if res.AlarmFlags&FlagACOvervoltage == 0 {
		t.Fatalf("expected AC overvoltage flag set, got %#x", res.AlarmFlags)
	}
	found := false
	for _, c := range res.Checks {
		if c.Code == CodeACOvervoltage && c.Active {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an active AlarmCheck for CodeACOvervoltage")
	}
	if res.Data.Status != StatusFault {
		t.Fatalf("expected status FAULT on AC overvoltage, got %v", res.Data.Status)
	}
}

func TestTickFaultCodeFirstAssignmentPriority(t *testing.T) {
	cfg := testConfig()
	prev := runUntilRamped(t, cfg, noonEstimate(), quietEpoch)

	// At this epoch both an under-frequency condition (checked earlier
	// in the priority list) and an isolation fault (checked later) are
	// simultaneously active. first-assignment priority must keep the
	// earlier one as fault_code while still flagging both.
	res := Tick(prev, noonEstimate(), cfg, prev.FrequencyHz, underfreqAndIsolateEpoch)

	if res.FaultCode != CodeACUnderfrequency {
		t.Fatalf("expected first-assigned fault_code %d to win over a later condition, got %d", CodeACUnderfrequency, res.FaultCode)
	}
	if res.AlarmFlags&FlagFrequencyFault == 0 {
		t.Fatalf("expected frequency fault flag set, got %#x", res.AlarmFlags)
	}
	if res.AlarmFlags&FlagIsolationFault == 0 {
		t.Fatalf("expected isolation fault flag to still be set even though it lost fault_code priority")
	}
}

// TestStatusFaultInvariantHoldsAcrossManyTicks sweeps a long run of
// ticks, day and night, and checks I3/P7 on every single one:
// Status == Fault iff AlarmFlags != 0 or FaultCode != CodeNone. This
// would have caught three real regressions found in review: an
// undervoltage-at-night tick setting Status=Fault with no alarm set,
// a leakage-only tick setting alarm_flags with Status != Fault, and a
// fan fault in the 45-75 C band setting both alarm_flags and
// fault_code while Status != Fault.
func TestStatusFaultInvariantHoldsAcrossManyTicks(t *testing.T) {
	cfg := testConfig()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var prev Data
	prevFreq := fNom
	for i := 0; i < 3000; i++ {
		when := start.Add(time.Duration(i) * time.Hour)
		var est solar.OfflineEstimate
		if when.Hour() >= 7 && when.Hour() <= 18 {
			est = noonEstimate()
		} else {
			est = nightEstimate()
		}

		res := Tick(prev, est, cfg, prevFreq, when)
		prev = res.Data
		prevFreq = res.Data.FrequencyHz

		wantFault := res.Data.AlarmFlags != 0 || res.Data.FaultCode != CodeNone
		gotFault := res.Data.Status == StatusFault
		if gotFault != wantFault {
			t.Fatalf("tick %d (%s): Status=%v alarm_flags=%#x fault_code=%d — status/fault mismatch",
				i, when, res.Data.Status, res.Data.AlarmFlags, res.Data.FaultCode)
		}
	}
}

func TestClampAndSafeDiv(t *testing.T) {
	if got := clamp(5, 0, 1); got != 1 {
		t.Fatalf("clamp above range = %v, want 1", got)
	}
	if got := clamp(-5, 0, 1); got != 0 {
		t.Fatalf("clamp below range = %v, want 0", got)
	}
	if got := clamp(0.5, 0, 1); got != 0.5 {
		t.Fatalf("clamp within range = %v, want 0.5", got)
	}
	if got := safeDiv(10, 0); got != 0 {
		t.Fatalf("safeDiv by zero = %v, want 0", got)
	}
	if got := safeDiv(10, 2); got != 5 {
		t.Fatalf("safeDiv(10,2) = %v, want 5", got)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusStopped:   "STOPPED",
		StatusRunning:   "RUNNING",
		StatusFault:     "FAULT",
		StatusCurtailed: "CURTAILED",
		StatusStarting:  "STARTING",
		StatusMPPT:      "MPPT",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestAlarmSeverityString(t *testing.T) {
	cases := map[AlarmSeverity]string{
		SeverityInfo:     "Info",
		SeverityWarning:  "Warning",
		SeverityCritical: "Critical",
		SeverityFault:    "Fault",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("AlarmSeverity(%d).String() = %q, want %q", sev, got, want)
		}
	}
}
