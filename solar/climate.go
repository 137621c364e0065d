package solar

import (
	"fmt"
	"math"

	"github.com/devskill-org/solar-fleet-sim/fleetmath"
)

// cloudAttenuation returns a factor in [0.05, 1.0] applied to clear-sky
// POA irradiance: a latitude/season baseline, a day-keyed deterministic
// noise term, a shallow afternoon dip, and a short-lived stochastic
// transient keyed to a five-minute slot of local solar time.
func cloudAttenuation(latDeg, lonDeg, doy, lstH float64) float64 {
	latBase := baselineCloudFactor(latDeg, doy)
	dayVariation := dailyCloudNoise(latDeg, lonDeg, doy) * 0.12

	intraday := 0.0
	if lstH >= 6.0 && lstH <= 20.0 {
		x := (lstH - 13.0) / 7.0
		intraday = -0.05 * x
	}

	slot := math.Floor(lstH * 12.0) // 5-minute buckets of local solar time
	key := fmt.Sprintf("cloud:%.3f:%.3f:%.0f", latDeg, lonDeg, doy)
	transient := fleetmath.Signed(fleetmath.Hash64(key, uint64(slot))) * 0.18

	return clamp(latBase+dayVariation+intraday+transient, 0.05, 1.0)
}

// baselineCloudFactor is the latitude-band, season-phased clear-sky
// fraction with no intraday or sub-hourly structure. It is reused by
// the soiling walk-back, which only cares about a day's overall
// cloudiness, not its minute-to-minute wobble.
func baselineCloudFactor(latDeg, doy float64) float64 {
	absLat := math.Abs(latDeg)
	seasonPhase := math.Cos(seasonalAngle(latDeg, doy))

	switch {
	case absLat < 15.0:
		return 0.55 + 0.05*seasonPhase
	case absLat < 35.0:
		return 0.70 + 0.10*seasonPhase
	case absLat < 55.0:
		return 0.62 + 0.12*seasonPhase
	case absLat < 65.0:
		return 0.52 + 0.10*seasonPhase
	default:
		return 0.45 + 0.10*seasonPhase
	}
}

func dailyCloudNoise(latDeg, lonDeg, doy float64) float64 {
	seed := int64(latDeg*100)*397 ^ int64(lonDeg*100)*631 ^ int64(doy)*1013
	if seed < 0 {
		seed = -seed
	}
	return (float64(seed%1000)/1000.0 - 0.5) * 2.0
}

// ambientTemperature models near-surface air temperature from a
// latitude-band climatology plus a seasonal swing and a diurnal cycle
// peaking at mid-afternoon.
func ambientTemperature(latDeg, doy, lstH float64) float64 {
	absLat := math.Abs(latDeg)

	var mean, amplitude float64
	switch {
	case absLat < 10.0:
		mean, amplitude = 27.0, 2.0
	case absLat < 25.0:
		mean, amplitude = 22.0, 7.0
	case absLat < 40.0:
		mean, amplitude = 15.0, 12.0
	case absLat < 55.0:
		mean, amplitude = 8.0, 14.0
	case absLat < 66.5:
		mean, amplitude = 1.0, 12.0
	default:
		mean, amplitude = -10.0, 12.0
	}

	seasonAngle := seasonalAngle(latDeg, doy)
	seasonal := mean + amplitude*math.Cos(seasonAngle)
	diurnal := 5.0 * math.Cos(2.0*math.Pi*(lstH-14.0)/24.0)
	return seasonal + diurnal
}

// windSpeed models 10m wind: windier toward the poles, gustier in
// winter, peaking mid-afternoon, damped at night, with a day-keyed
// synoptic noise term. Clamped to [0.3, 18.0] m/s.
func windSpeed(latDeg, lonDeg, doy, lstH, alphaDeg float64) float64 {
	absLat := math.Abs(latDeg)

	var base, seasonalAmp float64
	switch {
	case absLat < 15.0:
		base, seasonalAmp = 3.2, 0.5
	case absLat < 35.0:
		base, seasonalAmp = 3.8, 1.0
	case absLat < 55.0:
		base, seasonalAmp = 4.8, 1.8
	case absLat < 65.0:
		base, seasonalAmp = 5.8, 2.2
	default:
		base, seasonalAmp = 6.5, 2.5
	}

	seasonAngle := seasonalAngle(latDeg, doy)
	seasonal := -seasonalAmp * math.Cos(seasonAngle) // winter-high
	diurnal := 1.5 * math.Cos(2.0*math.Pi*(lstH-14.0)/24.0)

	key := fmt.Sprintf("wind:%.3f:%.3f", latDeg, lonDeg)
	synoptic := fleetmath.Signed(fleetmath.Hash64(key, uint64(doy))) * 2.5

	v := base + seasonal + diurnal + synoptic
	if alphaDeg <= 0.0 {
		v *= 0.6 // nocturnal stilling
	}
	return clamp(v, 0.3, 18.0)
}

// relativeHumidity models near-surface RH: a latitude-band baseline,
// anti-phased to the diurnal temperature cycle (driest at peak heat),
// with a small noise term keyed to the day and 5-minute slot of local
// solar time. Clamped to [15, 98] percent.
func relativeHumidity(latDeg, lonDeg, doy, lstH float64) float64 {
	absLat := math.Abs(latDeg)

	var base float64
	switch {
	case absLat < 15.0:
		base = 78.0
	case absLat < 35.0:
		base = 45.0
	case absLat < 55.0:
		base = 65.0
	case absLat < 65.0:
		base = 72.0
	default:
		base = 80.0
	}

	diurnal := -18.0 * math.Cos(2.0*math.Pi*(lstH-14.0)/24.0)

	key := fmt.Sprintf("rh:%.3f:%.3f", latDeg, lonDeg)
	noise := fleetmath.Signed(fleetmath.Hash64(key, uint64(lstH*12.0)+uint64(doy)*288)) * 6.0

	return clamp(base+diurnal+noise, 15.0, 98.0)
}

// soiling walks back up to 30 days, reconstructing each day's overall
// cloudiness from the same deterministic climatology, and counts
// consecutive dry days since the most recent day wet enough to be
// assumed to have washed the panels clean.
func soiling(latDeg, lonDeg, doy float64) float64 {
	const rainThreshold = 0.42
	dryDays := 0
	for d := 0; d < 30; d++ {
		day := doy - float64(d)
		if baselineCloudFactor(latDeg, day) < rainThreshold {
			break
		}
		dryDays++
	}
	return clamp(1.0-0.003*float64(dryDays), 0.85, 1.0)
}

// weatherCode maps the realized cloud factor (and a coarse snow
// likelihood) onto the WMO-style synthetic codes used throughout the
// telemetry and MQTT payloads.
func weatherCode(cloudFactor, alphaDeg, doy, latDeg float64) uint16 {
	if alphaDeg <= 0.0 {
		return 0
	}

	snow := snowLikely(latDeg, doy)

	switch {
	case cloudFactor > 0.85:
		return 0 // clear
	case cloudFactor > 0.75:
		return 1 // mainly clear
	case cloudFactor > 0.60:
		return 2 // partly cloudy
	case cloudFactor > 0.45:
		return 3 // overcast
	case cloudFactor > 0.35:
		if snow {
			return 71
		}
		return 61
	case cloudFactor > 0.25:
		if snow {
			return 73
		}
		return 63
	default:
		if snow {
			return 75
		}
		return 65
	}
}

func snowLikely(latDeg, doy float64) bool {
	if math.Abs(latDeg) <= 40.0 {
		return false
	}
	if latDeg >= 0.0 {
		return doy < 60.0 || doy > 330.0
	}
	return doy > 150.0 && doy < 270.0
}
