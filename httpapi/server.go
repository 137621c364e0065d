// Package httpapi implements the HTTP/JSON facade (C6): the REST
// surface over shared telemetry state, a WebSocket telemetry stream,
// and a Prometheus scrape endpoint. It is a thin projection layer —
// all numbers come from state.Store: no simulation logic lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/solar-fleet-sim/config"
	"github.com/devskill-org/solar-fleet-sim/modbus"
	"github.com/devskill-org/solar-fleet-sim/state"
)

// Version is reported by GET /health and the MQTT birth message.
const Version = "1.0.0"

// Server is the HTTP/WS/metrics facade (C6). It owns an *http.Server
// and the WebSocket client registry, and reads the shared store on
// every request; it never writes to it except for the offline-mode
// settings toggle and alarm-clear endpoints, which are themselves
// thin pass-throughs to state.Store.
type Server struct {
	store   *state.Store
	plants  []config.PlantConfig
	cfg     *config.Config
	metrics *metricsRegistry
	ws      *wsHub
	server  *http.Server
	logger  *log.Logger
}

// NewServer builds the facade bound to store, the static plant list
// and the loaded configuration (used only for /api/system/config, the
// listen address and the read/write timeouts).
func NewServer(cfg *config.Config, store *state.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:   store,
		plants:  cfg.Plants,
		cfg:     cfg,
		metrics: newMetricsRegistry(),
		ws:      newWSHub(),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/plants", s.handlePlants)
	mux.HandleFunc("GET /api/plants/{id}/power", s.handlePlantPower)
	mux.HandleFunc("GET /api/power/global", s.handleGlobalPower)
	mux.HandleFunc("GET /api/modbus/info", s.handleModbusInfo)
	mux.HandleFunc("GET /api/system/config", s.handleSystemConfig)
	mux.HandleFunc("GET /api/plants/{id}/alarms", s.handlePlantAlarms)
	mux.HandleFunc("DELETE /api/plants/{id}/alarms", s.handleClearPlantAlarms)
	mux.HandleFunc("GET /api/alarms", s.handleAllAlarms)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/settings/offline-mode", s.handleGetOfflineMode)
	mux.HandleFunc("POST /api/settings/offline-mode", s.handleSetOfflineMode)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP)
	mux.HandleFunc("GET /ws/telemetry", s.ws.handle)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Run starts the facade: the WebSocket broadcast ticker, the metrics
// sampler, and the HTTP listener itself. It blocks until ctx is
// cancelled, then drains in-flight handlers via Shutdown.
func (s *Server) Run(ctx context.Context) error {
	go s.ws.run(ctx, s.snapshotForWS)
	go s.sampleMetricsLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("[http] listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.ws.closeAll()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http: shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) snapshotForWS() telemetryFrame {
	return telemetryFrame{
		Type:      "telemetry",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Plants:    s.store.GetAll(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) handlePlants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.plants)
}

func (s *Server) handlePlantPower(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "unknown plant", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
}

func (s *Server) handleGlobalPower(w http.ResponseWriter, r *http.Request) {
	all := s.store.GetAll()
	perPlant := make(map[string]float64, len(all))
	for id, d := range all {
		perPlant[id] = d.PowerKW
	}
	resp := s.store.FleetSummary(s.plants)
	resp["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	resp["per_plant"] = perPlant
	writeJSON(w, http.StatusOK, resp)
}

// modbusInfoEntry is one row of GET /api/modbus/info.
type modbusInfoEntry struct {
	PlantID         string `json:"plant_id"`
	RegisterAddress uint16 `json:"register_address"`
	Length          uint16 `json:"length"`
	DataType        string `json:"data_type"`
	Description     string `json:"description"`
}

func (s *Server) handleModbusInfo(w http.ResponseWriter, r *http.Request) {
	layout := modbus.Layout()
	entries := make([]modbusInfoEntry, 0, len(s.plants)*len(layout))
	for _, p := range s.plants {
		base := p.ModbusMapping.BaseAddress
		for _, f := range layout {
			entries = append(entries, modbusInfoEntry{
				PlantID:         p.ID,
				RegisterAddress: base + f.Offset,
				Length:          f.Length,
				DataType:        f.DataType,
				Description:     f.Description,
			})
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSystemConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_port":    s.cfg.Server.Port,
		"modbus_port": s.cfg.Modbus.Port,
		"modbus_host": "0.0.0.0",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	all := s.store.GetAll()
	online := 0
	for range all {
		online++
	}

	resp := map[string]interface{}{
		"status":         "healthy",
		"version":        Version,
		"uptime_seconds": s.store.UptimeSeconds(),
		"plants_online":  online,
		"plants_total":   len(s.plants),
		"offline_mode":   s.store.IsOffline(),
		"mqtt_connected": s.store.MQTTConnected(),
	}

	if len(s.plants) > 0 {
		p := s.plants[0]
		now := time.Now()
		times := suncalc.GetTimes(now, p.Latitude, p.Longitude)
		pos := suncalc.GetPosition(now, p.Latitude, p.Longitude)
		sun := map[string]interface{}{
			"reference_plant_id": p.ID,
			"solar_angle_deg":    pos.Altitude * 180 / math.Pi,
		}
		if t, ok := times["sunrise"]; ok {
			sun["sunrise"] = t.Value.UTC().Format(time.RFC3339)
		}
		if t, ok := times["sunset"]; ok {
			sun["sunset"] = t.Value.UTC().Format(time.RFC3339)
		}
		resp["sun"] = sun
	}

	writeJSON(w, http.StatusOK, resp)
}
