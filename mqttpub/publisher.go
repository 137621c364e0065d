// Package mqttpub implements the optional MQTT telemetry publisher:
// a birth/will-guarded, auto-reconnecting client that mirrors shared
// state onto per-plant telemetry/alarm topics and a fleet summary
// topic, grounded on the original mqtt_service.rs payload shape and
// the teacher pack's paho.mqtt.golang setup/reconnect idiom.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/devskill-org/solar-fleet-sim/config"
	"github.com/devskill-org/solar-fleet-sim/plant"
	"github.com/devskill-org/solar-fleet-sim/state"
)

// Publisher is the optional MQTT publisher (spec.md §6's MQTT topics).
type Publisher struct {
	cfg    config.MQTTConfig
	store  *state.Store
	plants []config.PlantConfig
	logger *log.Logger
	prefix string
}

// NewPublisher builds a Publisher from the loaded MQTT config, the
// shared store and the static plant list.
func NewPublisher(cfg config.MQTTConfig, store *state.Store, plants []config.PlantConfig, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		cfg:    cfg,
		store:  store,
		plants: plants,
		logger: logger,
		prefix: strings.TrimRight(cfg.TopicPrefix, "/"),
	}
}

// Run connects to the broker (if enabled) and publishes telemetry on
// cfg.PublishIntervalS until ctx is cancelled, at which point it
// publishes a retained OFFLINE message and disconnects. A disabled or
// unconfigured publisher returns immediately, matching the original's
// "Disabled or no broker configured — skipping" early-out.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.cfg.Enabled || p.cfg.BrokerHost == "" {
		p.logger.Printf("[mqtt] disabled or no broker configured, skipping")
		return nil
	}

	statusTopic := p.prefix + "/system/status"
	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("solar-fleet-sim-%d", time.Now().UnixNano())
	}

	willPayload, _ := json.Marshal(map[string]string{"status": "OFFLINE"})

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", p.cfg.BrokerHost, p.cfg.BrokerPort)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second).
		SetWill(statusTopic, string(willPayload), 1, true)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		p.store.SetMQTTConnected(true)
		p.publishBirth(c, statusTopic)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		p.logger.Printf("[mqtt] connection lost: %v", err)
		p.store.SetMQTTConnected(false)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return fmt.Errorf("mqtt: connect: %w", token.Error())
	}
	defer func() {
		payload, _ := json.Marshal(map[string]string{"status": "OFFLINE"})
		tok := client.Publish(statusTopic, 1, true, payload)
		tok.WaitTimeout(2 * time.Second)
		client.Disconnect(250)
		p.store.SetMQTTConnected(false)
	}()

	interval := p.cfg.PublishIntervalS
	if interval < 1 {
		interval = 10
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.publishTick(client)
		}
	}
}

func (p *Publisher) publishBirth(c mqtt.Client, topic string) {
	payload, _ := json.Marshal(map[string]string{
		"status":    "ONLINE",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	tok := c.Publish(topic, 1, true, payload)
	if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		p.logger.Printf("[mqtt] failed to publish birth message: %v", tok.Error())
	}
}

func (p *Publisher) publishTick(c mqtt.Client) {
	all := p.store.GetAll()

	for _, pc := range p.plants {
		data, ok := all[pc.ID]
		if !ok {
			continue
		}
		p.publishTelemetry(c, pc, data)

		active := p.store.ListAlarms(pc.ID, true, 0)
		if len(active) > 0 {
			payload, err := json.Marshal(active)
			if err == nil {
				topic := fmt.Sprintf("%s/%s/alarms", p.prefix, pc.ID)
				c.Publish(topic, 1, true, payload)
			}
		}
	}

	p.publishSummary(c)
}

func (p *Publisher) publishTelemetry(c mqtt.Client, pc config.PlantConfig, d plant.Data) {
	payload := map[string]interface{}{
		"plant_id":   pc.ID,
		"plant_name": pc.Name,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"ac": map[string]interface{}{
			"power_kw":      d.PowerKW,
			"voltage_l1_v":  d.VoltageL1V,
			"voltage_l2_v":  d.VoltageL2V,
			"voltage_l3_v":  d.VoltageL3V,
			"current_l1_a":  d.CurrentL1A,
			"current_l2_a":  d.CurrentL2A,
			"current_l3_a":  d.CurrentL3A,
			"frequency_hz":  d.FrequencyHz,
			"rocof_hz_s":    d.RocofHzS,
			"power_factor":  d.PowerFactor,
			"reactive_kvar": d.ReactiveKVAR,
			"apparent_kva":  d.ApparentKVA,
		},
		"dc": map[string]interface{}{
			"voltage_v":      d.DCVoltageV,
			"current_a":      d.DCCurrentA,
			"power_kw":       d.DCPowerKW,
			"mppt_voltage_v": d.MPPTVoltageV,
			"mppt_current_a": d.MPPTCurrentA,
		},
		"thermal": map[string]interface{}{
			"cell_temp_c":     d.TemperatureC,
			"inverter_temp_c": d.InverterTempC,
			"ambient_temp_c":  d.AmbientTempC,
		},
		"irradiance": map[string]interface{}{
			"poa_w_m2":            d.POAIrradianceWM2,
			"cloud_factor":        d.CloudFactor,
			"solar_elevation_deg": d.SolarElevationDeg,
		},
		"status":                    d.Status.String(),
		"fault_code":                d.FaultCode,
		"alarm_flags":               d.AlarmFlags,
		"isolation_resistance_mohm": d.IsolationResistanceMOhm,
		"energy": map[string]interface{}{
			"daily_kwh":   d.DailyEnergyKWh,
			"monthly_kwh": d.MonthlyEnergyKWh,
			"total_kwh":   d.TotalEnergyKWh,
		},
		"kpi": map[string]interface{}{
			"performance_ratio":       d.PerformanceRatio,
			"specific_yield_kwh_kwp":  d.SpecificYieldKWhKWp,
			"capacity_factor_percent": d.CapacityFactorPercent,
		},
		"weather_code": d.WeatherCode,
		"is_day":       d.IsDay,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Printf("[mqtt] marshal error for %s: %v", pc.ID, err)
		return
	}
	topic := fmt.Sprintf("%s/%s/telemetry", p.prefix, pc.ID)
	tok := c.Publish(topic, 0, false, data)
	if !tok.WaitTimeout(2*time.Second) || tok.Error() != nil {
		p.store.SetMQTTConnected(false)
	} else {
		p.store.SetMQTTConnected(true)
	}
}

func (p *Publisher) publishSummary(c mqtt.Client) {
	summary := p.store.FleetSummary(p.plants)
	summary["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	topic := p.prefix + "/system/summary"
	c.Publish(topic, 0, false, payload)
}
