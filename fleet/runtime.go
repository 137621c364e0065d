// Package fleet wires the simulation core (C1-C3), the shared store
// (C4) and the three protocol servers (C5, C6, optional MQTT) into one
// runnable process, playing the role of the teacher's MinerScheduler:
// one independent periodic task per plant, plus one long-running task
// per server, all launched under a single context and WaitGroup.
package fleet

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/solar-fleet-sim/config"
	"github.com/devskill-org/solar-fleet-sim/httpapi"
	"github.com/devskill-org/solar-fleet-sim/modbus"
	"github.com/devskill-org/solar-fleet-sim/mqttpub"
	"github.com/devskill-org/solar-fleet-sim/plant"
	"github.com/devskill-org/solar-fleet-sim/solar"
	"github.com/devskill-org/solar-fleet-sim/state"
)

// Runtime owns the configuration, the shared state and every
// producer/consumer task. It is constructed once per process and run
// to completion (until its context is cancelled).
type Runtime struct {
	cfg    *config.Config
	store  *state.Store
	logger *log.Logger

	offlineSrc *solar.Source
	onlineSrc  *solar.Source

	modbusSrv *modbus.Server
	httpSrv   *httpapi.Server
	mqttPub   *mqttpub.Publisher
}

// New builds a Runtime from a loaded configuration. logger is used as
// the base for every component's bracketed-prefix logger; a nil
// logger falls back to log.Default() at each constructor.
func New(cfg *config.Config, logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.Default()
	}

	store := state.NewStore(cfg.OfflineMode)

	offlineSrc := solar.NewSource(solar.Config{Mode: solar.ModeOffline}, prefixedLogger(logger, "solar"))

	var onlineSrc *solar.Source
	if cfg.Weather.Endpoint != "" {
		onlineSrc = solar.NewSource(solar.Config{
			Mode:      solar.ModeOnline,
			Endpoint:  cfg.Weather.Endpoint,
			UserAgent: cfg.Weather.UserAgent,
		}, prefixedLogger(logger, "solar"))
	}

	plantBases := make(map[uint16]string, len(cfg.Plants))
	for _, pc := range cfg.Plants {
		plantBases[pc.ModbusMapping.BaseAddress] = pc.ID
	}

	return &Runtime{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		offlineSrc: offlineSrc,
		onlineSrc:  onlineSrc,
		modbusSrv:  modbus.NewServer(modbusAddr(cfg), store, plantBases, prefixedLogger(logger, "modbus")),
		httpSrv:    httpapi.NewServer(cfg, store, prefixedLogger(logger, "http")),
		mqttPub:    mqttpub.NewPublisher(cfg.MQTT, store, cfg.Plants, prefixedLogger(logger, "mqtt")),
	}
}

func prefixedLogger(base *log.Logger, name string) *log.Logger {
	return log.New(base.Writer(), "["+name+"] ", base.Flags())
}

func modbusAddr(cfg *config.Config) string {
	return fmt.Sprintf(":%d", cfg.Modbus.Port)
}

// Store exposes the shared state for callers (e.g. the CLI's -info
// flag) that need a read-only view without depending on the whole
// runtime lifecycle.
func (rt *Runtime) Store() *state.Store { return rt.store }

// Run launches every per-plant tick task and every server task, and
// blocks until ctx is cancelled and all of them have drained.
func (rt *Runtime) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, pc := range rt.cfg.Plants {
		pc := pc
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.runPlantLoop(ctx, pc)
		}()
	}

	serverTasks := []func(context.Context) error{
		rt.modbusSrv.Run,
		rt.httpSrv.Run,
		rt.mqttPub.Run,
	}
	for _, task := range serverTasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(ctx); err != nil && ctx.Err() == nil {
				rt.logger.Printf("[fleet] server task error: %v", err)
			}
		}()
	}

	wg.Wait()
	rt.logger.Printf("[fleet] all tasks stopped")
	return nil
}

// runPlantLoop is one plant's independent 5s-period update task
// (PeriodicTask.run's initial-delay-then-ticker shape, with no
// initial delay since ticks are relative to process start, not
// wall-clock boundaries).
func (rt *Runtime) runPlantLoop(ctx context.Context, pc config.PlantConfig) {
	rt.tick(ctx, pc)

	ticker := time.NewTicker(rt.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.tick(ctx, pc)
		}
	}
}

func (rt *Runtime) tick(ctx context.Context, pc config.PlantConfig) {
	src := rt.offlineSrc
	if rt.onlineSrc != nil && !rt.store.IsOffline() {
		src = rt.onlineSrc
	}
	data := rt.store.Update(ctx, src, pc, time.Now())
	if data.Status == plant.StatusFault {
		rt.logger.Printf("[fleet] plant %s: fault_code=%d alarm_flags=%#x", pc.ID, data.FaultCode, data.AlarmFlags)
	}
}
