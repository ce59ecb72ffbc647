package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowSentry/internal/api"
	"FlowSentry/internal/audit"
	"FlowSentry/internal/classifier"
	"FlowSentry/internal/config"
	"FlowSentry/internal/engine/features"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/mitigation"
	"FlowSentry/internal/model"
	"FlowSentry/internal/notification"
	"FlowSentry/internal/pipeline"
	"FlowSentry/internal/probe"
	"FlowSentry/pkg/capture"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Capture interface, overrides the config file.")
	duration := flag.Duration("duration", 0, "Run duration, overrides the config file. 0 runs until interrupted.")
	flag.Parse()

	log.Println("Starting fs-sensor...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *iface != "" {
		cfg.Sensor.Interface = *iface
	}
	log.Println("Configuration loaded successfully.")

	runDuration := *duration
	if runDuration == 0 && cfg.Sensor.RunDuration != "" {
		runDuration, err = time.ParseDuration(cfg.Sensor.RunDuration)
		if err != nil {
			log.Fatalf("Invalid run_duration %q: %v", cfg.Sensor.RunDuration, err)
		}
	}

	// The feature schema is a contract with the model server: refuse to start
	// if the configured schema does not match the extraction order.
	if cfg.Classifier.SchemaPath != "" {
		if _, err := features.LoadSchema(cfg.Classifier.SchemaPath); err != nil {
			log.Fatalf("Feature schema check failed: %v", err)
		}
		log.Printf("Feature schema verified against %s", cfg.Classifier.SchemaPath)
	}

	table := newFlowTable(cfg.FlowTable)

	clf, err := newClassifier(cfg.Classifier)
	if err != nil {
		log.Fatalf("Failed to set up classifier: %v", err)
	}
	defer clf.Close()

	blocker, cleanup := newBlocker(cfg.Mitigation, cfg.Sensor.Interface)
	defer cleanup()

	var notifier model.Notifier
	if cfg.Mitigation.Notify {
		notifier = notification.NewEmailNotifier(cfg.SMTP)
	}
	dispatcher := mitigation.NewDispatcher(mitigation.NewBlockedSet(), blocker, notifier)

	auditWriter := newAuditWriter(cfg.Audit)
	if auditWriter != nil {
		defer auditWriter.Close()
	}

	sweep := parseDurationOr(cfg.FlowTable.SweepInterval, 10*time.Second)
	pipe := pipeline.New(table, clf, dispatcher, auditWriter,
		cfg.Detection.NumWorkers, cfg.Detection.QueueSize, sweep)

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.ListenAddr, table, dispatcher, pipe)
		srv.Start()
		defer srv.Stop()
	}

	src, err := newSource(cfg)
	if err != nil {
		log.Fatalf("Failed to open packet source: %v", err)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
		log.Printf("Sensor will run for %s", runDuration)
	}

	pipe.Run(ctx, src)
	log.Println("Shutdown complete.")
}

func newFlowTable(cfg config.FlowTableConfig) *flowtable.Table {
	timeout := parseDurationOr(cfg.InactivityTimeout, 2*time.Minute)
	maxFlows := cfg.MaxFlows
	if maxFlows <= 0 {
		maxFlows = 1 << 20
	}
	return flowtable.NewTable(maxFlows, cfg.NumShards, timeout)
}

func newClassifier(cfg config.ClassifierConfig) (*classifier.Client, error) {
	timeout := parseDurationOr(cfg.Timeout, 2*time.Second)
	clf, err := classifier.NewClient(cfg.Addr, timeout)
	if err != nil {
		return nil, err
	}

	// The model server is a hard dependency: wait for it before capturing.
	readyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Printf("Waiting for model server at %s...", cfg.Addr)
	if err := clf.WaitReady(readyCtx); err != nil {
		clf.Close()
		return nil, err
	}
	log.Println("Model server is ready.")
	return clf, nil
}

// newBlocker attaches the XDP filter when mitigation is enabled. The returned
// cleanup detaches it so blocked IPs do not outlive the sensor.
func newBlocker(cfg config.MitigationConfig, captureIface string) (model.Blocker, func()) {
	if !cfg.Enabled {
		log.Println("Mitigation disabled, running in detect-only mode.")
		return mitigation.NopBlocker{}, func() {}
	}
	iface := cfg.Interface
	if iface == "" {
		iface = captureIface
	}
	filter := mitigation.NewXDPFilter(iface, cfg.Command)
	if err := filter.Load(); err != nil {
		log.Fatalf("Failed to attach XDP filter: %v", err)
	}
	log.Printf("XDP filter attached to %s", iface)
	return filter, func() {
		if err := filter.Unload(); err != nil {
			log.Printf("ERROR: failed to detach XDP filter: %v", err)
		} else {
			log.Printf("XDP filter detached from %s", iface)
		}
	}
}

func newAuditWriter(cfg config.AuditConfig) model.Writer {
	var writers []model.Writer
	if cfg.CSV.Enabled {
		w, err := audit.NewCSVWriter(cfg.CSV.Path)
		if err != nil {
			log.Fatalf("Failed to open CSV audit log: %v", err)
		}
		writers = append(writers, w)
		log.Printf("CSV audit log at %s", cfg.CSV.Path)
	}
	if cfg.ClickHouse.Enabled {
		w, err := audit.NewClickHouseWriter(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to set up ClickHouse audit writer: %v", err)
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return nil
	case 1:
		return audit.NewAsyncWriter(writers[0], cfg.BufferSize)
	default:
		return audit.NewAsyncWriter(audit.NewMultiWriter(writers...), cfg.BufferSize)
	}
}

func newSource(cfg *config.Config) (capture.Source, error) {
	switch cfg.Sensor.Source {
	case "", "pcap":
		return capture.NewLiveSource(cfg.Sensor.Interface, cfg.Sensor.BPFFilter,
			cfg.Sensor.SnapshotLen, cfg.Sensor.Promiscuous)
	case "nats":
		sub, err := probe.NewSubscriber(cfg.Probe)
		if err != nil {
			return nil, err
		}
		ch, stop, err := sub.Source(cfg.Detection.QueueSize)
		if err != nil {
			sub.Close()
			return nil, err
		}
		return capture.NewChanSource(ch, stop), nil
	default:
		log.Fatalf("Unknown sensor source %q (want pcap or nats)", cfg.Sensor.Source)
		return nil, nil
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("Invalid duration %q: %v", s, err)
	}
	return d
}
