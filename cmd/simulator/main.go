package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL   = flag.String("server", "ws://localhost:9000/ocpp", "CSMS websocket URL")
	chargerID   = flag.String("id", "CP001", "Charger ID")
	vendor      = flag.String("vendor", "SimCo", "Charge point vendor")
	model       = flag.String("model", "SimulatorV1", "Charge point model")
	serial      = flag.String("serial", "SIM001", "Serial number")
	firmware    = flag.String("firmware", "1.0.0", "Firmware version")
	rateKW      = flag.Float64("rate", 7.0, "Charging rate (kW) used for meter progression")
	interactive = flag.Bool("interactive", false, "Enable interactive mode")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sim := NewSimulator(SimulatorConfig{
		ServerURL:       *serverURL,
		ChargerID:       *chargerID,
		Vendor:          *vendor,
		Model:           *model,
		SerialNumber:    *serial,
		FirmwareVersion: *firmware,
		ChargingRateKW:  *rateKW,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		sim.Stop()
		os.Exit(0)
	}()

	if err := sim.Connect(); err != nil {
		logger.Fatal("Failed to connect to server", zap.Error(err))
	}

	if *interactive {
		fmt.Println("Charge point simulator - interactive mode")
		fmt.Println("Commands: start [connector], stop, status <value>, meter <wh>, heartbeat, fault, quit")
		sim.RunInteractive()
		return
	}

	fmt.Printf("Charge point simulator started\n")
	fmt.Printf("  ID: %s\n", *chargerID)
	fmt.Printf("  Server: %s\n", *serverURL)
	fmt.Println("\nPress Ctrl+C to stop")
	select {}
}
