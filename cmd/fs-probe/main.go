package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"FlowSentry/internal/probe"
	"FlowSentry/pkg/capture"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (required for pub mode).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *mode {
	case "pub":
		runPublisher(cfg, *iface)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runPublisher captures on the given interface and ships every parsed packet
// to NATS, so a remote fs-sensor can do the flow aggregation.
func runPublisher(cfg *config.Config, iface string) {
	if iface == "" {
		iface = cfg.Sensor.Interface
	}
	if iface == "" {
		log.Fatalln("Error: -iface flag is required for pub mode.")
	}
	log.Printf("Starting fs-probe in PUBLISH mode on interface: %s", iface)

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	src, err := capture.NewLiveSource(iface, cfg.Sensor.BPFFilter,
		cfg.Sensor.SnapshotLen, cfg.Sensor.Promiscuous)
	if err != nil {
		log.Fatalf("Failed to open interface: %v", err)
	}
	defer src.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	published := 0
	for {
		select {
		case <-sigChan:
			log.Printf("Shutting down, %d packets published.", published)
			return
		case info, ok := <-src.Packets():
			if !ok {
				log.Printf("Capture ended, %d packets published.", published)
				return
			}
			if err := pub.Publish(info); err != nil {
				log.Printf("Error publishing packet: %v", err)
				continue
			}
			published++
		}
	}
}

// runSubscriber prints received packets, a quick way to verify the transport.
func runSubscriber(cfg *config.Config) {
	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	if err := sub.Start(func(info *model.PacketInfo) {
		log.Printf("Received: %s len=%d flags=%#02x", info.FiveTuple, info.Length, info.TCPFlags)
	}); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown complete.")
}
