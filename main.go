// Package main provides the solar fleet simulator's entry point and
// CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/devskill-org/solar-fleet-sim/config"
	"github.com/devskill-org/solar-fleet-sim/fleet"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		info       = flag.Bool("info", false, "Show the loaded plant table and exit")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	if *info {
		showPlantInfo(cfg)
		return
	}

	fmt.Printf("Starting solar fleet simulator with the following configuration:\n")
	fmt.Printf("  HTTP port:    %d\n", cfg.Server.Port)
	fmt.Printf("  Modbus port:  %d\n", cfg.Modbus.Port)
	fmt.Printf("  Offline mode: %v\n", cfg.OfflineMode)
	fmt.Printf("  MQTT enabled: %v\n", cfg.MQTT.Enabled)
	fmt.Printf("  Plants:       %d\n", len(cfg.Plants))
	fmt.Println()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	runtime := fleet.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- runtime.Run(ctx)
	}()

	logger.Printf("[fleet] simulator started, press Ctrl+C to stop")

	select {
	case <-sigChan:
		logger.Printf("[fleet] shutdown signal received, draining tasks...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logger.Printf("[fleet] runtime error: %v", err)
			os.Exit(1)
		}
	}

	logger.Printf("[fleet] stopped")
}

func showPlantInfo(cfg *config.Config) {
	if len(cfg.Plants) == 0 {
		fmt.Println("No plants configured.")
		return
	}
	fmt.Printf("%-12s %-24s %8s %9s %8s %12s\n", "ID", "Name", "Lat", "Lon", "kWp", "Modbus base")
	for _, p := range cfg.Plants {
		fmt.Printf("%-12s %-24s %8.3f %9.3f %8.1f %12d\n",
			p.ID, p.Name, p.Latitude, p.Longitude, p.NominalPowerKW, p.ModbusMapping.BaseAddress)
	}
}

func showHelp() {
	fmt.Println("Solar Fleet Simulator - offline/online PV inverter fleet telemetry simulator")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Simulates a fleet of grid-tied photovoltaic inverters from solar geometry")
	fmt.Println("  and clear-sky/cloud models, exposing each plant's telemetry on a")
	fmt.Println("  read-only Modbus/TCP register map, an HTTP/JSON API with WebSocket")
	fmt.Println("  streaming and Prometheus scrape, and an optional MQTT publisher.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  solar-fleet-sim [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  solar-fleet-sim")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  solar-fleet-sim --config=config.json")
	fmt.Println()
	fmt.Println("  # Show the configured plant table")
	fmt.Println("  solar-fleet-sim --config=config.json --info")
}
