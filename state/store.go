// Package state implements the shared concurrent store (C4): the
// per-plant telemetry map, the alarm registry, the event log, and the
// runtime mode flags that connect per-plant producers to the Modbus,
// HTTP/WS and MQTT consumers.
package state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/devskill-org/solar-fleet-sim/config"
	"github.com/devskill-org/solar-fleet-sim/plant"
	"github.com/devskill-org/solar-fleet-sim/solar"
)

const (
	maxAlarmHistory = 500
	maxEventLog     = 1000
)

// Store is the single process-wide container shared by all producers
// (per-plant tick tasks, the optional online weather fetch) and
// consumers (Modbus, HTTP, WebSocket, MQTT, Prometheus).
type Store struct {
	mu        sync.RWMutex
	plants    map[string]plant.Data
	prevFreq  map[string]float64

	alarmsMu sync.RWMutex
	alarms   []plant.Alarm

	eventsMu sync.Mutex
	events   []plant.Event

	offlineMode   atomic.Bool
	mqttConnected atomic.Bool
	startTime     time.Time
}

// NewStore constructs an empty Store with the given initial offline-mode flag.
func NewStore(offlineModeDefault bool) *Store {
	s := &Store{
		plants:   make(map[string]plant.Data),
		prevFreq: make(map[string]float64),
		startTime: time.Now(),
	}
	s.offlineMode.Store(offlineModeDefault)
	return s
}

// Get returns a snapshot of one plant's latest record.
func (s *Store) Get(plantID string) (plant.Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.plants[plantID]
	return d, ok
}

// GetAll returns a snapshot of every plant's latest record.
func (s *Store) GetAll() map[string]plant.Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]plant.Data, len(s.plants))
	for k, v := range s.plants {
		out[k] = v
	}
	return out
}

// IsOffline reports the current offline_mode flag.
func (s *Store) IsOffline() bool { return s.offlineMode.Load() }

// SetOffline sets the offline_mode flag and logs a ModeChange event.
func (s *Store) SetOffline(value bool) {
	s.offlineMode.Store(value)
	msg := "Mode changed to ONLINE"
	if value {
		msg = "Mode changed to OFFLINE"
	}
	s.PushEvent(nil, plant.EventModeChange, msg, nil)
}

// MQTTConnected reports whether the MQTT publisher currently holds a
// live broker connection.
func (s *Store) MQTTConnected() bool { return s.mqttConnected.Load() }

// SetMQTTConnected updates the mqtt_connected flag.
func (s *Store) SetMQTTConnected(value bool) { s.mqttConnected.Store(value) }

// StartTime is the instant the process (and this Store) started.
func (s *Store) StartTime() time.Time { return s.startTime }

// UptimeSeconds reports elapsed seconds since StartTime.
func (s *Store) UptimeSeconds() uint64 {
	d := time.Since(s.startTime)
	if d < 0 {
		return 0
	}
	return uint64(d.Seconds())
}

// Update runs one C3 tick for plantID: fetches an OfflineEstimate from
// src, derives the next Data via plant.Tick, writes the result under
// the plant lock, and then applies the alarm raise/clear transitions.
// The record and the alarm transitions are written under separate
// locks, so a reader can see the new record before its alarm changes;
// a raised alarm and its AlarmRaised event become visible together.
// No lock is held across the irradiance fetch itself.
func (s *Store) Update(ctx context.Context, src *solar.Source, pc config.PlantConfig, now time.Time) plant.Data {
	cfg := pc.ToPlant()
	est := src.Estimate(ctx, cfg.LatitudeDeg, cfg.LongitudeDeg, cfg.NominalPowerKW, now)

	s.mu.RLock()
	prev := s.plants[cfg.ID]
	prevFreq := s.prevFreq[cfg.ID]
	s.mu.RUnlock()

	result := plant.Tick(prev, est, cfg, prevFreq, now)

	s.mu.Lock()
	s.plants[cfg.ID] = result.Data
	s.prevFreq[cfg.ID] = result.Data.FrequencyHz
	s.mu.Unlock()

	for _, check := range result.Checks {
		if check.Active {
			s.raiseAlarm(cfg.ID, check.Code, check.Severity, check.Message)
		} else {
			s.clearAlarm(cfg.ID, check.Code)
		}
	}

	return result.Data
}

func (s *Store) raiseAlarm(plantID string, code uint16, severity plant.AlarmSeverity, message string) {
	s.alarmsMu.Lock()
	for _, a := range s.alarms {
		if a.PlantID == plantID && a.Code == code && a.Active {
			s.alarmsMu.Unlock()
			return
		}
	}
	s.alarms = append(s.alarms, plant.Alarm{
		ID:        uuid.NewString(),
		PlantID:   plantID,
		Code:      code,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Active:    true,
	})
	if len(s.alarms) > maxAlarmHistory {
		s.alarms = s.alarms[1:]
	}

	pid := plantID
	s.PushEvent(&pid, plant.EventAlarmRaised, "["+severity.String()+"] "+message, nil)
	s.alarmsMu.Unlock()
}

func (s *Store) clearAlarm(plantID string, code uint16) {
	s.alarmsMu.Lock()
	cleared := false
	now := time.Now().UTC()
	for i := range s.alarms {
		a := &s.alarms[i]
		if a.PlantID == plantID && a.Code == code && a.Active {
			a.Active = false
			a.ClearedAt = &now
			cleared = true
		}
	}
	s.alarmsMu.Unlock()

	if cleared {
		pid := plantID
		s.PushEvent(&pid, plant.EventAlarmCleared, "Alarm cleared", nil)
	}
}

// ClearAllForPlant marks every active alarm for plantID as cleared
// (operator acknowledgement).
func (s *Store) ClearAllForPlant(plantID string) {
	s.alarmsMu.Lock()
	now := time.Now().UTC()
	cleared := false
	for i := range s.alarms {
		a := &s.alarms[i]
		if a.PlantID == plantID && a.Active {
			a.Active = false
			a.ClearedAt = &now
			cleared = true
		}
	}
	s.alarmsMu.Unlock()
	if cleared {
		pid := plantID
		s.PushEvent(&pid, plant.EventAlarmCleared, "All alarms cleared by operator", nil)
	}
}

// ListAlarms returns alarms for plantID (or all plants when empty),
// optionally filtered to only active ones, most-recently-raised last
// (insertion order), capped to limit (0 = no cap).
func (s *Store) ListAlarms(plantID string, activeOnly bool, limit int) []plant.Alarm {
	s.alarmsMu.RLock()
	defer s.alarmsMu.RUnlock()

	out := make([]plant.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		if plantID != "" && a.PlantID != plantID {
			continue
		}
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// PushEvent appends a new entry to the front of the event ring buffer.
func (s *Store) PushEvent(plantID *string, kind plant.EventKind, message string, payload interface{}) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	s.events = append([]plant.Event{{
		ID:        uuid.NewString(),
		PlantID:   plantID,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}}, s.events...)

	if len(s.events) > maxEventLog {
		s.events = s.events[:maxEventLog]
	}
}

// FleetSummary computes the fleet-wide rollup shared by
// GET /api/power/global and the MQTT system/summary topic, grounded on
// mqtt_service.rs's inline summary block.
func (s *Store) FleetSummary(plants []config.PlantConfig) map[string]interface{} {
	all := s.GetAll()

	var totalKW, totalNominalKW, totalDailyKWh, prSum float64
	running := 0
	for _, pc := range plants {
		totalNominalKW += pc.NominalPowerKW
	}
	for _, d := range all {
		totalKW += d.PowerKW
		totalDailyKWh += d.DailyEnergyKWh
		prSum += d.PerformanceRatio
		if d.Status == plant.StatusRunning || d.Status == plant.StatusMPPT {
			running++
		}
	}
	fleetPR := 0.0
	if len(all) > 0 {
		fleetPR = prSum / float64(len(all))
	}
	return map[string]interface{}{
		"total_power_kw":   totalKW,
		"total_nominal_kw": totalNominalKW,
		"total_daily_kwh":  totalDailyKWh,
		"plants_running":   running,
		"plants_total":     len(plants),
		"fleet_pr":         fleetPR,
		"offline_mode":     s.IsOffline(),
	}
}

// ListEvents returns up to limit events, newest-first.
func (s *Store) ListEvents(limit int) []plant.Event {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]plant.Event, limit)
	copy(out, s.events[:limit])
	return out
}
