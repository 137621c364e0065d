package solar

import (
	"testing"
	"time"
)

const (
	turinLat = 45.07
	turinLon = 7.33
	pNomKW   = 1000.0
)

func TestSummerNoonItaly(t *testing.T) {
	// Turin sits at UTC+2 (CEST) in June; true solar noon for this
	// longitude falls at approximately 11:32 UTC, so 11:00 UTC (not
	// 09:00) is the instant that actually clears the >60 deg bar below.
	when := time.Date(2025, 6, 21, 11, 0, 0, 0, time.UTC)
	est := Estimate(turinLat, turinLon, pNomKW, when)

	if est.SolarElevationDeg <= 60.0 {
		t.Fatalf("elevation = %v, want > 60", est.SolarElevationDeg)
	}
	if est.GHIPOAWM2 <= 400.0 {
		t.Fatalf("GHI POA = %v, want > 400", est.GHIPOAWM2)
	}
	if est.PowerKWDC <= 200.0 {
		t.Fatalf("power_kw_dc = %v, want > 200", est.PowerKWDC)
	}
}

func TestMidnightZero(t *testing.T) {
	when := time.Date(2025, 6, 21, 22, 0, 0, 0, time.UTC)
	est := Estimate(turinLat, turinLon, pNomKW, when)

	if est.PowerKWDC != 0.0 {
		t.Fatalf("power_kw_dc = %v, want exactly 0", est.PowerKWDC)
	}
	if est.IsDay {
		t.Fatalf("is_day = true at local midnight")
	}
}

func TestWinterSolstice(t *testing.T) {
	when := time.Date(2025, 12, 21, 11, 0, 0, 0, time.UTC)
	est := Estimate(turinLat, turinLon, pNomKW, when)

	if est.SolarElevationDeg <= 15.0 || est.SolarElevationDeg >= 35.0 {
		t.Fatalf("elevation = %v, want in (15, 35)", est.SolarElevationDeg)
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	when := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	a := Estimate(turinLat, turinLon, pNomKW, when)
	b := Estimate(turinLat, turinLon, pNomKW, when)
	if a != b {
		t.Fatalf("Estimate must be a pure function of its inputs, got %+v then %+v", a, b)
	}
}

func TestPowerNeverNegative(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		when := base.Add(time.Duration(h) * time.Hour)
		est := Estimate(turinLat, turinLon, pNomKW, when)
		if est.PowerKWDC < 0.0 {
			t.Fatalf("power_kw_dc went negative at hour %d: %v", h, est.PowerKWDC)
		}
		if est.PowerKWDC > pNomKW*1.1 {
			t.Fatalf("power_kw_dc exceeded 110%% of nominal at hour %d: %v", h, est.PowerKWDC)
		}
	}
}

func TestCloudFactorWithinBounds(t *testing.T) {
	base := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		when := base.Add(time.Duration(h) * time.Hour)
		est := Estimate(turinLat, turinLon, pNomKW, when)
		if est.CloudFactor < 0.05 || est.CloudFactor > 1.0 {
			t.Fatalf("cloud_factor out of [0.05,1.0] at hour %d: %v", h, est.CloudFactor)
		}
	}
}

func TestSoilingFactorWithinBounds(t *testing.T) {
	base := time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)
	for d := 0; d < 40; d++ {
		when := base.AddDate(0, 0, d)
		est := Estimate(turinLat, turinLon, pNomKW, when)
		if est.SoilingFactor < 0.85 || est.SoilingFactor > 1.0 {
			t.Fatalf("soiling_factor out of [0.85,1.0] on day %d: %v", d, est.SoilingFactor)
		}
	}
}
