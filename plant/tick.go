package plant

import (
	"fmt"
	"math"
	"time"

	"github.com/devskill-org/solar-fleet-sim/fleetmath"
	"github.com/devskill-org/solar-fleet-sim/solar"
)

// Nominal DC string constants (typical c-Si array).
const (
	vDCNom       = 700.0 // nominal DC link voltage at STC (V)
	vMPPVocRatio = 0.80  // V_mpp / V_oc ratio
	vTempCoeff   = -0.0035
)

// MPPT startup/shutdown thresholds.
const (
	irradStartWM2 = 30.0
	irradStopWM2  = 15.0
	rampRate      = 0.08
)

// Grid limits (EN 50160 / VDE 4110 style).
const (
	vGridNom     = 230.0
	vOvLimit     = 253.0
	vUvLimit     = 207.0
	fNom         = 50.0
	fOvLimit     = 50.5
	fUvLimit     = 49.5
	rocofLimit   = 1.0
	isolFaultMOhm = 0.5
	tOvertempC   = 80.0
)

// Fault injection probabilities, per named epoch window.
const (
	pVoltFault = 0.025
	pFreqFault = 0.015
	pIsolFault = 0.015
	pOTFault   = 0.005
	pFanFault  = 0.008
)

// UpdateIntervalS is the published tick period (seconds) used by ROCOF
// and energy integration.
const UpdateIntervalS = 5.0

// AlarmCheck is one taxonomy condition evaluated this tick: whether it
// currently holds, and the message to raise if so.
type AlarmCheck struct {
	Code     uint16
	Severity AlarmSeverity
	Active   bool
	Message  string
}

// Result is everything one Tick call produces beyond the updated Data:
// the ordered alarm checks (for the caller to raise/clear) and the
// fault_code chosen by first-assignment priority.
type Result struct {
	Data       Data
	FaultCode  uint16
	AlarmFlags uint32
	Checks     []AlarmCheck
}

func tryTry(code *uint16, newCode uint16) {
	if *code == CodeNone {
		*code = newCode
	}
}

// Tick derives the next Data from prev given one OfflineEstimate for
// this sample, the plant's static configuration, the previous sample's
// grid frequency (for ROCOF), and the wall-clock instant driving
// epoch-keyed fault injection. It never returns an error.
func Tick(prev Data, est solar.OfflineEstimate, cfg Config, prevFreq float64, now time.Time) Result {
	d := prev
	nowSecs := uint64(now.Unix())

	d.WeatherCode = est.WeatherCode
	d.IsDay = est.IsDay
	d.POAIrradianceWM2 = est.GHIPOAWM2
	d.CloudFactor = est.CloudFactor
	d.SolarElevationDeg = est.SolarElevationDeg
	d.TemperatureC = est.CellTempC
	d.AmbientTempC = est.AmbientTempC
	d.WindSpeedMS = est.WindSpeedMS
	d.RelativeHumidityPct = est.RelativeHumidityPct
	d.SoilingFactor = est.SoilingFactor

	// 1b. Midnight daily-energy reset.
	todayDOY := now.UTC().YearDay()
	if d.LastDayReset == 0 {
		d.LastDayReset = todayDOY
	} else if d.LastDayReset != todayDOY {
		d.DailyEnergyKWh = 0
		d.DailyPeakPowerKW = 0
		d.LastDayReset = todayDOY
	}

	// 2. MPPT startup/shutdown ramp.
	var rampTarget float64
	switch {
	case est.GHIPOAWM2 >= irradStartWM2 && est.IsDay:
		rampTarget = 1.0
	case est.GHIPOAWM2 < irradStopWM2:
		rampTarget = 0.0
	default:
		rampTarget = d.RampFactor
	}
	d.RampFactor = clamp(d.RampFactor+(rampTarget-d.RampFactor)*rampRate, 0, 1)
	ramp := d.RampFactor

	// 2b. DC side: dual-MPPT string simulation.
	irrRatio := clamp(est.GHIPOAWM2/1000.0, 0, 1.1)
	d.MPPTVoltageV = vDCNom * vMPPVocRatio * (1.0 + vTempCoeff*(est.CellTempC-25.0))
	d.DCVoltageV = d.MPPTVoltageV * 1.05

	dcPowerRamped := est.PowerKWDC * ramp
	d.DCPowerKW = dcPowerRamped
	if d.DCVoltageV > 1.0 {
		d.DCCurrentA = dcPowerRamped * 1000.0 / d.DCVoltageV
	} else {
		d.DCCurrentA = 0
	}
	if d.MPPTVoltageV > 1.0 {
		d.MPPTCurrentA = dcPowerRamped * 1000.0 / d.MPPTVoltageV
	} else {
		d.MPPTCurrentA = 0
	}

	// 2c. Dual-string imbalance, keyed to (plant, hour-epoch).
	strEpoch := nowSecs / 3600
	hStr := fleetmath.Hash64(cfg.ID, strEpoch*23)
	strImb := (hStr*2.0 - 1.0) * 0.08
	str1Frac := clamp(0.50+strImb, 0.30, 0.70)
	d.String1VoltageV = d.MPPTVoltageV
	d.String1CurrentA = d.MPPTCurrentA * str1Frac * 2.0
	d.String2VoltageV = d.MPPTVoltageV
	d.String2CurrentA = d.MPPTCurrentA * (1.0 - str1Frac) * 2.0

	vOcEst := d.MPPTVoltageV / vMPPVocRatio
	dcOv := vOcEst > vDCNom*1.10

	// 3. Inverter efficiency curve (CEC-style piecewise).
	loadFactor := 0.0
	if cfg.NominalPowerKW > 0 {
		loadFactor = dcPowerRamped / cfg.NominalPowerKW
	}
	var invEff float64
	switch {
	case loadFactor < 0.01:
		invEff = 0.0
	case loadFactor < 0.1:
		invEff = 0.80 + (loadFactor/0.1)*0.155
	case loadFactor < 0.5:
		invEff = 0.955 + ((loadFactor-0.1)/0.4)*0.025
	default:
		invEff = 0.980 - ((loadFactor-0.5)/0.5)*0.008
	}
	tempLoss := math.Max(est.CellTempC-25.0, 0) * 0.0004
	efficiency := clamp(invEff-tempLoss, 0, 0.999)

	// 4. AC active power.
	acPower := dcPowerRamped * efficiency
	d.PowerKW = acPower

	// 5. Inverter heatsink thermal model.
	pLoss := dcPowerRamped - acPower
	lossFraction := 0.0
	if cfg.NominalPowerKW > 0 {
		lossFraction = pLoss / cfg.NominalPowerKW
	}
	otEpoch := nowSecs / 900
	hOt := fleetmath.Hash64(cfg.ID, otEpoch*17)
	var tHsTarget float64
	if hOt < pOTFault && est.IsDay {
		tHsTarget = tOvertempC + 5.0 + (hOt/pOTFault)*10.0
	} else {
		tHsTarget = est.AmbientTempC + 20.0 + clamp(lossFraction, 0, 1)*65.0
	}
	d.InverterTempC = d.InverterTempC + (tHsTarget-d.InverterTempC)*0.2

	// 6. Three-phase AC voltage & frequency, epoch-keyed fault injection.
	gridEpoch := nowSecs / 300
	hSwell := fleetmath.Hash64(cfg.ID, gridEpoch*7)
	hSag := fleetmath.Hash64(cfg.ID, gridEpoch*7+1)
	hFreqHi := fleetmath.Hash64(cfg.ID, gridEpoch*7+2)
	hFreqLo := fleetmath.Hash64(cfg.ID, gridEpoch*7+3)

	vDrift := (fleetmath.Hash64(cfg.ID, gridEpoch*7+4)*2.0 - 1.0) * 4.0
	hRip := fleetmath.Hash64(cfg.ID, nowSecs*11^0xA5A5)
	vRipple := (hRip*2.0 - 1.0) * 0.4

	var vOffset float64
	switch {
	case hSwell < pVoltFault:
		vOffset = 28.0 + (hSwell/pVoltFault)*18.0
	case hSag < pVoltFault:
		vOffset = -(28.0 + (hSag/pVoltFault)*18.0)
	default:
		vOffset = vDrift + vRipple
	}

	hPh := fleetmath.Hash64(cfg.ID, nowSecs^0xCCCC)
	hPh2 := fleetmath.Hash64(cfg.ID, nowSecs^0xBEEF)
	d.VoltageL1V = vGridNom + vOffset
	d.VoltageL2V = vGridNom + vOffset + (hPh*2.0-1.0)*0.5
	d.VoltageL3V = vGridNom + vOffset - (hPh2*2.0-1.0)*0.5

	fDrift := (fleetmath.Hash64(cfg.ID, gridEpoch*7+5)*2.0 - 1.0) * 0.08
	hFrip := fleetmath.Hash64(cfg.ID, nowSecs*13^0xF0F0)
	fRipple := (hFrip*2.0 - 1.0) * 0.01
	var fOffset float64
	switch {
	case hFreqHi < pFreqFault:
		fOffset = 0.55 + (hFreqHi/pFreqFault)*0.25
	case hFreqLo < pFreqFault:
		fOffset = -(0.55 + (hFreqLo/pFreqFault)*0.25)
	default:
		fOffset = fDrift + fRipple
	}
	newFreq := fNom + fOffset

	// ROCOF: against the immediately previous sample, intentionally unsmoothed.
	d.RocofHzS = (newFreq - prevFreq) / UpdateIntervalS
	d.FrequencyHz = newFreq

	// 7. Power factor, apparent, reactive.
	if acPower > 0.01 {
		pfBase := 0.96 + 0.04*(1.0-math.Exp(-12.0*loadFactor))
		pfNoise := math.Sin(acPower*11.7) * 0.004
		d.PowerFactor = clamp(pfBase+pfNoise, 0.80, 1.0)
	} else {
		d.PowerFactor = 1.0
	}
	if d.PowerFactor > 0.0 {
		d.ApparentKVA = acPower / d.PowerFactor
	} else {
		d.ApparentKVA = acPower
	}
	qSq := d.ApparentKVA*d.ApparentKVA - acPower*acPower
	if qSq > 0 {
		d.ReactiveKVAR = math.Sqrt(qSq)
	} else {
		d.ReactiveKVAR = 0
	}

	// 7b. AC total harmonic distortion.
	var thdAtLoad float64
	switch {
	case loadFactor < 0.02:
		thdAtLoad = 0.0
	case loadFactor < 0.10:
		thdAtLoad = 12.0 - (loadFactor/0.10)*7.5
	case loadFactor < 0.50:
		thdAtLoad = 4.5 - ((loadFactor-0.10)/0.40)*2.7
	default:
		thdAtLoad = 1.8 + ((loadFactor-0.50)/0.50)*0.5
	}
	hThd := fleetmath.Hash64(cfg.ID, nowSecs*31^0x55AA)
	d.ACThdPercent = math.Max(thdAtLoad+(hThd*2.0-1.0)*0.2, 0)

	// 7c. DC injection into AC grid.
	dcInjEpoch := nowSecs / 60
	hDcInj := fleetmath.Hash64(cfg.ID, dcInjEpoch*19)
	iRatedA := 0.0
	if vGridNom > 0 {
		iRatedA = cfg.NominalPowerKW * 1000.0 / (3.0 * vGridNom)
	}
	if acPower > 0.01 {
		d.DCInjectionMA = iRatedA * (0.05 + hDcInj*0.45) / 100.0 * 1000.0
	} else {
		d.DCInjectionMA = 0
	}

	// 8. Phase currents (balanced 3-phase split).
	phaseVA := d.ApparentKVA * 1000.0 / 3.0
	d.CurrentL1A = safeDiv(phaseVA, d.VoltageL1V)
	d.CurrentL2A = safeDiv(phaseVA, d.VoltageL2V)
	d.CurrentL3A = safeDiv(phaseVA, d.VoltageL3V)

	// 9. Isolation resistance, three-layer model.
	isolEpoch := nowSecs / 3600
	hWet := fleetmath.Hash64(cfg.ID, isolEpoch*13)
	var isolBase float64
	if hWet < pIsolFault && est.IsDay {
		isolBase = 0.05 + (hWet/pIsolFault)*0.35
	} else {
		isolBase = 10.0 + irrRatio*30.0
	}
	dewFactor := 1.0
	if est.IsDay && est.SolarElevationDeg < 20.0 {
		dewFactor = 0.30 + (est.SolarElevationDeg/20.0)*0.70
	}
	d.IsolationResistanceMOhm = math.Max(isolBase*dewFactor, 0.05)

	// 9b. Leakage (residual) current to ground.
	leakHumidityFactor := 1.0 + math.Max(est.RelativeHumidityPct-50.0, 0)*0.012
	leakBase := (1.0 / math.Max(d.IsolationResistanceMOhm, 0.01)) * 2.5 * leakHumidityFactor
	hLeak := fleetmath.Hash64(cfg.ID, nowSecs*43^0x1234)
	d.LeakageCurrentMA = clamp(leakBase+hLeak*0.5, 0.05, 350.0)

	// 9c. Inverter cooling fan model.
	fanEpoch := nowSecs / 14400
	hFan := fleetmath.Hash64(cfg.ID, fanEpoch*29)
	fanFail := hFan < pFanFault && est.IsDay
	d.FanFaultActive = fanFail

	var fanRPM uint16
	switch {
	case d.InverterTempC < 40.0:
		fanRPM = 0
	case fanFail:
		fanRPM = 0
	default:
		frac := clamp((d.InverterTempC-40.0)/40.0, 0, 1)
		fanRPM = uint16(1500.0 + frac*2100.0)
	}
	d.InverterFanSpeedRPM = fanRPM

	// 10. Status determination (non-fault branches only; whether the
	// plant is actually in StatusFault is decided below, once the
	// alarm/fault-code logic has run, so the two can never disagree).
	vAvg := (d.VoltageL1V + d.VoltageL2V + d.VoltageL3V) / 3.0

	switch {
	case ramp < 0.05 && est.GHIPOAWM2 < irradStartWM2:
		d.Status = StatusStopped
	case ramp < 0.99 && est.GHIPOAWM2 >= irradStartWM2:
		d.Status = StatusStarting
	case ramp > 0.0 && ramp < 1.0 && est.GHIPOAWM2 < irradStartWM2:
		d.Status = StatusCurtailed
	case acPower > 0.001:
		if loadFactor < 0.999 {
			d.Status = StatusMPPT
		} else {
			d.Status = StatusRunning
		}
	case est.IsDay && est.SolarElevationDeg > 1.0:
		d.Status = StatusStarting
	default:
		d.Status = StatusStopped
	}

	// 11. Alarm / fault code logic (first-assignment priority).
	var flags uint32
	faultCode := CodeNone
	checks := make([]AlarmCheck, 0, 9)

	if vAvg > vOvLimit {
		flags |= FlagACOvervoltage
		tryTry(&faultCode, CodeACOvervoltage)
		checks = append(checks, AlarmCheck{CodeACOvervoltage, SeverityWarning, true,
			fmt.Sprintf("AC overvoltage: %.1f V (limit %.0f V)", vAvg, vOvLimit)})
	} else {
		checks = append(checks, AlarmCheck{Code: CodeACOvervoltage, Active: false})
	}

	if vAvg < vUvLimit && est.IsDay {
		flags |= FlagACUndervoltage
		tryTry(&faultCode, CodeACUndervoltage)
		checks = append(checks, AlarmCheck{CodeACUndervoltage, SeverityWarning, true,
			fmt.Sprintf("AC undervoltage: %.1f V (limit %.0f V)", vAvg, vUvLimit)})
	} else {
		checks = append(checks, AlarmCheck{Code: CodeACUndervoltage, Active: false})
	}

	switch {
	case d.FrequencyHz > fOvLimit:
		flags |= FlagFrequencyFault
		tryTry(&faultCode, CodeACOverfrequency)
		checks = append(checks, AlarmCheck{CodeACOverfrequency, SeverityWarning, true,
			fmt.Sprintf("Over-frequency: %.3f Hz (limit %.2f Hz)", d.FrequencyHz, fOvLimit)})
		checks = append(checks, AlarmCheck{Code: CodeACUnderfrequency, Active: false})
	case d.FrequencyHz < fUvLimit:
		flags |= FlagFrequencyFault
		tryTry(&faultCode, CodeACUnderfrequency)
		checks = append(checks, AlarmCheck{CodeACUnderfrequency, SeverityWarning, true,
			fmt.Sprintf("Under-frequency: %.3f Hz (limit %.2f Hz)", d.FrequencyHz, fUvLimit)})
		checks = append(checks, AlarmCheck{Code: CodeACOverfrequency, Active: false})
	default:
		checks = append(checks, AlarmCheck{Code: CodeACOverfrequency, Active: false})
		checks = append(checks, AlarmCheck{Code: CodeACUnderfrequency, Active: false})
	}

	if d.IsolationResistanceMOhm < isolFaultMOhm {
		flags |= FlagIsolationFault
		tryTry(&faultCode, CodeIsolationFault)
		checks = append(checks, AlarmCheck{CodeIsolationFault, SeverityFault, true,
			fmt.Sprintf("Isolation resistance too low: %.2f MOhm (limit %.1f MOhm)", d.IsolationResistanceMOhm, isolFaultMOhm)})
	} else {
		checks = append(checks, AlarmCheck{Code: CodeIsolationFault, Active: false})
	}

	switch {
	case d.LeakageCurrentMA > 300.0:
		flags |= FlagLeakageCurrent
		tryTry(&faultCode, CodeGroundFault)
		checks = append(checks, AlarmCheck{CodeGroundFault, SeverityCritical, true,
			fmt.Sprintf("Leakage current critical: %.1f mA (trip >300 mA)", d.LeakageCurrentMA)})
	case d.LeakageCurrentMA > 100.0:
		flags |= FlagLeakageCurrent
		checks = append(checks, AlarmCheck{CodeGroundFault, SeverityWarning, true,
			fmt.Sprintf("Leakage current elevated: %.1f mA (warn >100 mA)", d.LeakageCurrentMA)})
	default:
		checks = append(checks, AlarmCheck{Code: CodeGroundFault, Active: false})
	}

	if d.InverterTempC > tOvertempC {
		flags |= FlagOvertemperature
		tryTry(&faultCode, CodeOvertemperature)
		checks = append(checks, AlarmCheck{CodeOvertemperature, SeverityCritical, true,
			fmt.Sprintf("Inverter overtemperature: %.1f C (limit %.0f C)", d.InverterTempC, tOvertempC)})
	} else {
		checks = append(checks, AlarmCheck{Code: CodeOvertemperature, Active: false})
	}

	switch {
	case d.FanFaultActive && d.InverterTempC > 45.0:
		flags |= FlagFanFault
		tryTry(&faultCode, CodeFanFault)
		checks = append(checks, AlarmCheck{CodeFanFault, SeverityWarning, true,
			fmt.Sprintf("Cooling fan fault: 0 RPM at %.1f C heatsink", d.InverterTempC)})
	case acPower > 0.1 && d.InverterFanSpeedRPM > 0 && d.InverterFanSpeedRPM < 1200 && d.InverterTempC > 50.0:
		flags |= FlagFanFault
		checks = append(checks, AlarmCheck{CodeFanFault, SeverityWarning, true,
			fmt.Sprintf("Fan under-speed: %d RPM (expected >=1500 RPM)", d.InverterFanSpeedRPM)})
	default:
		checks = append(checks, AlarmCheck{Code: CodeFanFault, Active: false})
	}

	if dcOv {
		flags |= FlagDCOvervoltage
		tryTry(&faultCode, CodeDCOvervoltage)
		checks = append(checks, AlarmCheck{CodeDCOvervoltage, SeverityWarning, true,
			fmt.Sprintf("DC string over-voltage: estimated V_oc > %.0f V rated DC bus", vDCNom)})
	} else {
		checks = append(checks, AlarmCheck{Code: CodeDCOvervoltage, Active: false})
	}

	if math.Abs(d.RocofHzS) > rocofLimit {
		flags |= FlagROCOFTrip
		tryTry(&faultCode, CodeROCOFTrip)
		checks = append(checks, AlarmCheck{CodeROCOFTrip, SeverityCritical, true,
			fmt.Sprintf("RoCoF trip: %.3f Hz/s (limit +-%.1f Hz/s)", d.RocofHzS, rocofLimit)})
	} else {
		checks = append(checks, AlarmCheck{Code: CodeROCOFTrip, Active: false})
	}

	d.FaultCode = faultCode
	d.AlarmFlags = flags

	// Status == Fault iff an alarm flag or fault code is actually set
	// (I3/P7): derived from the same flags/faultCode the API and Modbus
	// map expose, never from a separately-maintained condition list.
	if flags != 0 || faultCode != CodeNone {
		d.Status = StatusFault
	}

	// 12. Energy accounting.
	kwhPerSample := d.PowerKW * (UpdateIntervalS / 3600.0)
	d.DailyEnergyKWh += kwhPerSample
	d.MonthlyEnergyKWh += kwhPerSample
	d.TotalEnergyKWh += kwhPerSample
	d.CO2AvoidedKg += kwhPerSample * 0.233
	if d.PowerKW > d.DailyPeakPowerKW {
		d.DailyPeakPowerKW = d.PowerKW
	}

	// 13. Performance KPIs.
	refYield := (d.POAIrradianceWM2 / 1000.0) * cfg.NominalPowerKW
	if refYield > 0.1 {
		d.PerformanceRatio = clamp(d.PowerKW/refYield, 0, 1)
	} else {
		d.PerformanceRatio = 0
	}
	if cfg.NominalPowerKW > 0 {
		d.SpecificYieldKWhKWp = d.DailyEnergyKWh / cfg.NominalPowerKW
		d.CapacityFactorPercent = clamp(d.PowerKW/cfg.NominalPowerKW*100.0, 0, 110)
	} else {
		d.SpecificYieldKWhKWp = 0
		d.CapacityFactorPercent = 0
	}

	return Result{Data: d, FaultCode: faultCode, AlarmFlags: flags, Checks: checks}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func safeDiv(num, denom float64) float64 {
	if denom > 0.0 {
		return num / denom
	}
	return 0.0
}
