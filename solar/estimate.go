// Package solar implements the offline solar-to-irradiance pipeline
// (Spencer 1971 geometry, Bird & Hulstrom clear-sky, POA transposition,
// climatological cloud/wind/humidity models, Faiman cell temperature)
// and the pluggable irradiance source abstraction built on top of it.
package solar

import (
	"fmt"
	"math"
	"time"

	"github.com/devskill-org/solar-fleet-sim/fleetmath"
)

const (
	solarConstant = 1361.0 // W/m^2, eccentricity-uncorrected
	deg           = math.Pi / 180.0
)

// OfflineEstimate is the pure output of the solar pipeline for one
// plant at one instant. It carries no identity and no mutable state.
type OfflineEstimate struct {
	PowerKWDC            float64
	GHIPOAWM2            float64
	CellTempC            float64
	AmbientTempC         float64
	WeatherCode          uint16
	IsDay                bool
	CloudFactor          float64
	SolarElevationDeg    float64
	WindSpeedMS          float64
	RelativeHumidityPct  float64
	SoilingFactor        float64
}

// Estimate is the deterministic core: the same (latDeg, lonDeg,
// pNomKW, utcNow) always yields a bit-identical result. It never
// returns an error; out-of-range physical states are clamped.
func Estimate(latDeg, lonDeg, pNomKW float64, utcNow time.Time) OfflineEstimate {
	utcNow = utcNow.UTC()
	doy := float64(utcNow.YearDay())
	utH := float64(utcNow.Hour()) + float64(utcNow.Minute())/60.0 + float64(utcNow.Second())/3600.0

	b := 2.0 * math.Pi * (doy - 1.0) / 365.0

	declDeg := (180.0 / math.Pi) * (0.006918 -
		0.399912*math.Cos(b) +
		0.070257*math.Sin(b) -
		0.006758*math.Cos(2*b) +
		0.000907*math.Sin(2*b) -
		0.002697*math.Cos(3*b) +
		0.00148*math.Sin(3*b))
	decl := declDeg * deg

	eotMin := 229.18 * (0.000075 +
		0.001868*math.Cos(b) -
		0.032077*math.Sin(b) -
		0.014615*math.Cos(2*b) -
		0.04089*math.Sin(2*b))

	lstmDeg := 15.0 * math.Round(lonDeg/15.0)
	tcMin := 4.0*(lonDeg-lstmDeg) + eotMin
	utcOffsetH := math.Round(lonDeg / 15.0)
	localClockH := math.Mod(utH+utcOffsetH, 24.0)
	if localClockH < 0 {
		localClockH += 24.0
	}
	lstH := localClockH + tcMin/60.0

	omegaDeg := 15.0 * (lstH - 12.0)
	omega := omegaDeg * deg

	lat := latDeg * deg
	sinAlpha := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(omega)
	alphaRad := math.Asin(clamp(sinAlpha, -1, 1))
	alphaDeg := alphaRad / deg

	cosAz := 0.0
	if math.Abs(math.Cos(alphaRad)) > 1e-9 {
		cosAz = (math.Sin(decl) - sinAlpha*math.Sin(lat)) / (math.Cos(alphaRad) * math.Cos(lat))
	}
	azAbs := math.Acos(clamp(cosAz, -1, 1)) / deg
	azimuthDeg := azAbs
	if omegaDeg > 0.0 {
		azimuthDeg = 360.0 - azAbs
	}

	e0 := solarConstant * (1.00011 +
		0.034221*math.Cos(b) +
		0.00128*math.Sin(b) +
		0.000719*math.Cos(2*b) +
		0.000077*math.Sin(2*b))

	var ghiCS, dniCS float64
	if alphaDeg > 0.1 {
		am := 1.0 / (sinAlpha + 0.50572*math.Pow(alphaDeg+6.07995, -1.6364))
		am = math.Max(am, 1.0)

		tr := math.Exp(-0.0903 * math.Pow(am, 0.84) * (1.0 + am - math.Pow(am, 1.01)))
		to := 1.0 - 0.0013*am
		tl := linkeTurbidity(latDeg, lonDeg, doy)
		ta := math.Exp(-0.09 * math.Pow(tl, 0.978) * math.Pow(am, 0.9455))
		tw := 1.0 - 0.0075*math.Pow(am, 0.65)

		totalT := tr * to * ta * tw
		dniCS = 0.9762 * e0 * totalT
		dhiCS := 0.79 * e0 * sinAlpha * (1.0 - totalT) *
			(0.5*(1.0-tr) + biradScatterCoeff(ta)) /
			(1.0 - am + math.Pow(am, 1.02))
		ghiCS = math.Max(dniCS*sinAlpha+dhiCS, 0.0)
	}

	tiltDeg := math.Min(math.Abs(latDeg), 60.0)
	tilt := tiltDeg * deg
	surfAzDeg := 180.0
	if latDeg < 0.0 {
		surfAzDeg = 0.0
	}

	azDiff := (azimuthDeg - surfAzDeg) * deg
	cosTheta := 0.0
	if alphaDeg > 0.1 {
		cosTheta = math.Max(math.Sin(alphaRad)*math.Cos(tilt)+math.Cos(alphaRad)*math.Sin(tilt)*math.Cos(azDiff), 0.0)
	}

	beamPOA := dniCS * cosTheta
	dhiCS := math.Max(ghiCS-dniCS*math.Max(sinAlpha, 0.0), 0.0)
	diffusePOA := dhiCS * (1.0 + math.Cos(tilt)) / 2.0
	const albedo = 0.20
	reflectedPOA := ghiCS * albedo * (1.0 - math.Cos(tilt)) / 2.0
	ghiPOACS := math.Max(beamPOA+diffusePOA+reflectedPOA, 0.0)

	cloudFactor := cloudAttenuation(latDeg, lonDeg, doy, lstH)
	ghiPOA := ghiPOACS * cloudFactor

	ambientTempC := ambientTemperature(latDeg, doy, lstH)
	windSpeedMS := windSpeed(latDeg, lonDeg, doy, lstH, alphaDeg)
	relativeHumidityPct := relativeHumidity(latDeg, lonDeg, doy, lstH)

	const u0, u1 = 25.0, 6.84
	cellTempC := ambientTempC + ghiPOA/(u0+u1*windSpeedMS)

	soilingFactor := soiling(latDeg, lonDeg, doy)

	tempFactor := 1.0 - 0.004*(cellTempC-25.0)
	powerKWDC := math.Max(pNomKW*(ghiPOA*soilingFactor/1000.0)*tempFactor, 0.0)

	weatherCode := weatherCode(cloudFactor, alphaDeg, doy, latDeg)
	isDay := alphaDeg > 0.0 && ghiPOA > 0.5

	return OfflineEstimate{
		PowerKWDC:           powerKWDC,
		GHIPOAWM2:           ghiPOA,
		CellTempC:           cellTempC,
		AmbientTempC:        ambientTempC,
		WeatherCode:         weatherCode,
		IsDay:               isDay,
		CloudFactor:         cloudFactor,
		SolarElevationDeg:   alphaDeg,
		WindSpeedMS:         windSpeedMS,
		RelativeHumidityPct: relativeHumidityPct,
		SoilingFactor:       soilingFactor,
	}
}

func biradScatterCoeff(ta float64) float64 {
	return 0.5 * clamp(0.92-math.Abs(math.Log(ta))/10.0, 0.2, 0.5)
}

// linkeTurbidity reproduces spec's "clamp(season_turb ± daily_noise·0.7, 1.5, 6.5)"
// aerosol turbidity model: a seasonal baseline (haze builds up in the warm
// season of each hemisphere) perturbed by a day-keyed deterministic noise term.
func linkeTurbidity(latDeg, lonDeg, doy float64) float64 {
	seasonAngle := seasonalAngle(latDeg, doy)
	baseTurb := 3.0 + 0.8*math.Cos(seasonAngle)
	noise := fleetmath.Signed(fleetmath.Hash64(fmt.Sprintf("turb:%.3f:%.3f", latDeg, lonDeg), uint64(doy)))
	return clamp(baseTurb+noise*0.7, 1.5, 6.5)
}

// seasonalAngle centers warmest/clearest conditions at day 200 in the
// Northern Hemisphere and the mirrored day in the Southern Hemisphere.
func seasonalAngle(latDeg, doy float64) float64 {
	if latDeg >= 0.0 {
		return 2.0 * math.Pi * (doy - 200.0) / 365.0
	}
	return 2.0 * math.Pi * (doy - 20.0) / 365.0
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
