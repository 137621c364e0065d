package httpapi

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devskill-org/solar-fleet-sim/plant"
)

// metricsSampleInterval is how often the Prometheus gauges are
// refreshed from the shared store; independent of the WebSocket's 2s
// cadence and the simulator's 5s tick.
const metricsSampleInterval = 5 * time.Second

// metricsRegistry holds one GaugeVec per telemetry field family,
// each labelled by plant, following the teacher/pack's
// prometheus.NewGaugeVec-per-concern idiom (view/counters.go) rather
// than hand-writing the `# HELP`/`# TYPE` text format. Every field of
// plant.Data (bar the purely internal LastDayReset bookkeeping index)
// has a corresponding family here, per spec.md §6.
type metricsRegistry struct {
	registry *prometheus.Registry

	// Three-phase AC
	powerKW       *prometheus.GaugeVec
	voltageL1V    *prometheus.GaugeVec
	voltageL2V    *prometheus.GaugeVec
	voltageL3V    *prometheus.GaugeVec
	currentL1A    *prometheus.GaugeVec
	currentL2A    *prometheus.GaugeVec
	currentL3A    *prometheus.GaugeVec
	frequencyHz   *prometheus.GaugeVec
	rocofHzS      *prometheus.GaugeVec
	powerFactor   *prometheus.GaugeVec
	reactiveKVAR  *prometheus.GaugeVec
	apparentKVA   *prometheus.GaugeVec
	acThdPercent  *prometheus.GaugeVec
	dcInjectionMA *prometheus.GaugeVec

	// DC / MPPT
	dcVoltageV      *prometheus.GaugeVec
	dcCurrentA      *prometheus.GaugeVec
	dcPowerKW       *prometheus.GaugeVec
	mpptVoltageV    *prometheus.GaugeVec
	mpptCurrentA    *prometheus.GaugeVec
	string1VoltageV *prometheus.GaugeVec
	string1CurrentA *prometheus.GaugeVec
	string2VoltageV *prometheus.GaugeVec
	string2CurrentA *prometheus.GaugeVec

	// Thermal
	cellTempC      *prometheus.GaugeVec
	inverterTempC  *prometheus.GaugeVec
	ambientTempC   *prometheus.GaugeVec
	fanSpeedRPM    *prometheus.GaugeVec
	fanFaultActive *prometheus.GaugeVec

	// Irradiance / weather
	poaIrrad      *prometheus.GaugeVec
	cloudFactor   *prometheus.GaugeVec
	solarElevDeg  *prometheus.GaugeVec
	windSpeedMS   *prometheus.GaugeVec
	relHumidity   *prometheus.GaugeVec
	soilingFactor *prometheus.GaugeVec
	weatherCode   *prometheus.GaugeVec
	isDay         *prometheus.GaugeVec

	// Safety
	isolationM   *prometheus.GaugeVec
	leakageMA    *prometheus.GaugeVec
	status       *prometheus.GaugeVec
	faultCode    *prometheus.GaugeVec
	alarmFlags   *prometheus.GaugeVec

	// Energy
	dailyKWh    *prometheus.GaugeVec
	monthlyKWh  *prometheus.GaugeVec
	totalKWh    *prometheus.GaugeVec
	co2AvoidKg  *prometheus.GaugeVec
	dailyPeakKW *prometheus.GaugeVec

	// KPIs
	perfRatio     *prometheus.GaugeVec
	specificYield *prometheus.GaugeVec
	capacityFact  *prometheus.GaugeVec

	// Simulation bookkeeping
	rampFactor *prometheus.GaugeVec
}

func newMetricsRegistry() *metricsRegistry {
	const ns = "solar_fleet"
	labels := []string{"plant"}

	gv := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &metricsRegistry{
		registry: prometheus.NewRegistry(),

		powerKW:       gv("power_kw", "AC active power output"),
		voltageL1V:    gv("voltage_l1_v", "AC phase 1 voltage"),
		voltageL2V:    gv("voltage_l2_v", "AC phase 2 voltage"),
		voltageL3V:    gv("voltage_l3_v", "AC phase 3 voltage"),
		currentL1A:    gv("current_l1_a", "AC phase 1 current"),
		currentL2A:    gv("current_l2_a", "AC phase 2 current"),
		currentL3A:    gv("current_l3_a", "AC phase 3 current"),
		frequencyHz:   gv("frequency_hz", "Grid frequency"),
		rocofHzS:      gv("rocof_hz_s", "Rate of change of frequency"),
		powerFactor:   gv("power_factor", "AC power factor"),
		reactiveKVAR:  gv("reactive_power_kvar", "AC reactive power"),
		apparentKVA:   gv("apparent_power_kva", "AC apparent power"),
		acThdPercent:  gv("ac_thd_percent", "AC total harmonic distortion"),
		dcInjectionMA: gv("dc_injection_ma", "DC current injected into the AC grid"),

		dcVoltageV:      gv("dc_voltage_v", "DC bus voltage"),
		dcCurrentA:      gv("dc_current_a", "DC bus current"),
		dcPowerKW:       gv("dc_power_kw", "DC input power"),
		mpptVoltageV:    gv("mppt_voltage_v", "MPPT operating voltage"),
		mpptCurrentA:    gv("mppt_current_a", "MPPT operating current"),
		string1VoltageV: gv("string1_voltage_v", "DC string 1 voltage"),
		string1CurrentA: gv("string1_current_a", "DC string 1 current"),
		string2VoltageV: gv("string2_voltage_v", "DC string 2 voltage"),
		string2CurrentA: gv("string2_current_a", "DC string 2 current"),

		cellTempC:      gv("cell_temperature_c", "PV cell temperature"),
		inverterTempC:  gv("inverter_temperature_c", "Inverter heatsink temperature"),
		ambientTempC:   gv("ambient_temperature_c", "Ambient air temperature"),
		fanSpeedRPM:    gv("inverter_fan_speed_rpm", "Inverter cooling fan speed"),
		fanFaultActive: gv("fan_fault_active", "1 if the cooling fan is in a fault state"),

		poaIrrad:      gv("poa_irradiance_w_m2", "Plane-of-array irradiance"),
		cloudFactor:   gv("cloud_factor", "Clear-sky attenuation factor"),
		solarElevDeg:  gv("solar_elevation_deg", "Solar elevation angle"),
		windSpeedMS:   gv("wind_speed_m_s", "10m wind speed"),
		relHumidity:   gv("relative_humidity_pct", "Relative humidity"),
		soilingFactor: gv("soiling_factor", "Panel soiling derate factor"),
		weatherCode:   gv("weather_code", "WMO-style synthetic weather code"),
		isDay:         gv("is_day", "1 if the sun is above the horizon"),

		isolationM: gv("isolation_resistance_mohm", "DC-to-ground isolation resistance"),
		leakageMA:  gv("leakage_current_ma", "Residual leakage current to ground"),
		status:     gv("status", "Coarse operating status code (0 Stopped..5 MPPT)"),
		faultCode:  gv("fault_code", "Highest-priority active fault code, 0 if none"),
		alarmFlags: gv("alarm_flags", "Bitmask of currently active protection conditions"),

		dailyKWh:    gv("daily_energy_kwh", "Energy produced since local midnight"),
		monthlyKWh:  gv("monthly_energy_kwh", "Energy produced this calendar month"),
		totalKWh:    gv("total_energy_kwh", "Lifetime energy produced"),
		co2AvoidKg:  gv("co2_avoided_kg", "Estimated lifetime CO2 avoided"),
		dailyPeakKW: gv("daily_peak_power_kw", "Peak AC power since local midnight"),

		perfRatio:     gv("performance_ratio", "IEC 61724 performance ratio"),
		specificYield: gv("specific_yield_kwh_kwp", "Daily energy per installed kWp"),
		capacityFact:  gv("capacity_factor_percent", "Instantaneous capacity factor"),

		rampFactor: gv("ramp_factor", "MPPT soft-start ramp factor, 0 to 1"),
	}

	for _, c := range []prometheus.Collector{
		m.powerKW, m.voltageL1V, m.voltageL2V, m.voltageL3V,
		m.currentL1A, m.currentL2A, m.currentL3A,
		m.frequencyHz, m.rocofHzS, m.powerFactor, m.reactiveKVAR, m.apparentKVA,
		m.acThdPercent, m.dcInjectionMA,
		m.dcVoltageV, m.dcCurrentA, m.dcPowerKW, m.mpptVoltageV, m.mpptCurrentA,
		m.string1VoltageV, m.string1CurrentA, m.string2VoltageV, m.string2CurrentA,
		m.cellTempC, m.inverterTempC, m.ambientTempC, m.fanSpeedRPM, m.fanFaultActive,
		m.poaIrrad, m.cloudFactor, m.solarElevDeg, m.windSpeedMS, m.relHumidity,
		m.soilingFactor, m.weatherCode, m.isDay,
		m.isolationM, m.leakageMA, m.status, m.faultCode, m.alarmFlags,
		m.dailyKWh, m.monthlyKWh, m.totalKWh, m.co2AvoidKg, m.dailyPeakKW,
		m.perfRatio, m.specificYield, m.capacityFact,
		m.rampFactor,
	} {
		m.registry.MustRegister(c)
	}
	return m
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *metricsRegistry) sample(plantID string, d plant.Data) {
	m.powerKW.WithLabelValues(plantID).Set(d.PowerKW)
	m.voltageL1V.WithLabelValues(plantID).Set(d.VoltageL1V)
	m.voltageL2V.WithLabelValues(plantID).Set(d.VoltageL2V)
	m.voltageL3V.WithLabelValues(plantID).Set(d.VoltageL3V)
	m.currentL1A.WithLabelValues(plantID).Set(d.CurrentL1A)
	m.currentL2A.WithLabelValues(plantID).Set(d.CurrentL2A)
	m.currentL3A.WithLabelValues(plantID).Set(d.CurrentL3A)
	m.frequencyHz.WithLabelValues(plantID).Set(d.FrequencyHz)
	m.rocofHzS.WithLabelValues(plantID).Set(d.RocofHzS)
	m.powerFactor.WithLabelValues(plantID).Set(d.PowerFactor)
	m.reactiveKVAR.WithLabelValues(plantID).Set(d.ReactiveKVAR)
	m.apparentKVA.WithLabelValues(plantID).Set(d.ApparentKVA)
	m.acThdPercent.WithLabelValues(plantID).Set(d.ACThdPercent)
	m.dcInjectionMA.WithLabelValues(plantID).Set(d.DCInjectionMA)

	m.dcVoltageV.WithLabelValues(plantID).Set(d.DCVoltageV)
	m.dcCurrentA.WithLabelValues(plantID).Set(d.DCCurrentA)
	m.dcPowerKW.WithLabelValues(plantID).Set(d.DCPowerKW)
	m.mpptVoltageV.WithLabelValues(plantID).Set(d.MPPTVoltageV)
	m.mpptCurrentA.WithLabelValues(plantID).Set(d.MPPTCurrentA)
	m.string1VoltageV.WithLabelValues(plantID).Set(d.String1VoltageV)
	m.string1CurrentA.WithLabelValues(plantID).Set(d.String1CurrentA)
	m.string2VoltageV.WithLabelValues(plantID).Set(d.String2VoltageV)
	m.string2CurrentA.WithLabelValues(plantID).Set(d.String2CurrentA)

	m.cellTempC.WithLabelValues(plantID).Set(d.TemperatureC)
	m.inverterTempC.WithLabelValues(plantID).Set(d.InverterTempC)
	m.ambientTempC.WithLabelValues(plantID).Set(d.AmbientTempC)
	m.fanSpeedRPM.WithLabelValues(plantID).Set(float64(d.InverterFanSpeedRPM))
	m.fanFaultActive.WithLabelValues(plantID).Set(boolToFloat(d.FanFaultActive))

	m.poaIrrad.WithLabelValues(plantID).Set(d.POAIrradianceWM2)
	m.cloudFactor.WithLabelValues(plantID).Set(d.CloudFactor)
	m.solarElevDeg.WithLabelValues(plantID).Set(d.SolarElevationDeg)
	m.windSpeedMS.WithLabelValues(plantID).Set(d.WindSpeedMS)
	m.relHumidity.WithLabelValues(plantID).Set(d.RelativeHumidityPct)
	m.soilingFactor.WithLabelValues(plantID).Set(d.SoilingFactor)
	m.weatherCode.WithLabelValues(plantID).Set(float64(d.WeatherCode))
	m.isDay.WithLabelValues(plantID).Set(boolToFloat(d.IsDay))

	m.isolationM.WithLabelValues(plantID).Set(d.IsolationResistanceMOhm)
	m.leakageMA.WithLabelValues(plantID).Set(d.LeakageCurrentMA)
	m.status.WithLabelValues(plantID).Set(float64(d.Status))
	m.faultCode.WithLabelValues(plantID).Set(float64(d.FaultCode))
	m.alarmFlags.WithLabelValues(plantID).Set(float64(d.AlarmFlags))

	m.dailyKWh.WithLabelValues(plantID).Set(d.DailyEnergyKWh)
	m.monthlyKWh.WithLabelValues(plantID).Set(d.MonthlyEnergyKWh)
	m.totalKWh.WithLabelValues(plantID).Set(d.TotalEnergyKWh)
	m.co2AvoidKg.WithLabelValues(plantID).Set(d.CO2AvoidedKg)
	m.dailyPeakKW.WithLabelValues(plantID).Set(d.DailyPeakPowerKW)

	m.perfRatio.WithLabelValues(plantID).Set(d.PerformanceRatio)
	m.specificYield.WithLabelValues(plantID).Set(d.SpecificYieldKWhKWp)
	m.capacityFact.WithLabelValues(plantID).Set(d.CapacityFactorPercent)

	m.rampFactor.WithLabelValues(plantID).Set(d.RampFactor)
}

func (s *Server) sampleMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(metricsSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for id, d := range s.store.GetAll() {
				s.metrics.sample(id, d)
			}
		}
	}
}
