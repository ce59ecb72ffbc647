package main

import (
	"context"
	"flag"
	"log"
	"time"

	"FlowSentry/internal/audit"
	"FlowSentry/internal/classifier"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/mitigation"
	"FlowSentry/internal/pipeline"
	"FlowSentry/pkg/capture"
)

// fs-replay runs a capture file through the full detection pipeline against
// a live model server, without touching the kernel: verdicts land in a CSV
// audit log instead of the XDP filter. Useful for evaluating a model against
// labelled traces.
func main() {
	pcapPath := flag.String("pcap", "", "Path to the pcap file to replay (required).")
	addr := flag.String("addr", "localhost:50051", "Model server address.")
	timeout := flag.Duration("timeout", 2*time.Second, "Per-classification timeout.")
	out := flag.String("out", "replay_detections.csv", "Path of the CSV audit log to write.")
	workers := flag.Int("workers", 4, "Number of detection workers.")
	flag.Parse()

	if *pcapPath == "" {
		log.Fatalln("Error: -pcap flag is required.")
	}

	clf, err := classifier.NewClient(*addr, *timeout)
	if err != nil {
		log.Fatalf("Failed to set up classifier: %v", err)
	}
	defer clf.Close()

	readyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := clf.WaitReady(readyCtx); err != nil {
		log.Fatalf("Model server at %s is not reachable: %v", *addr, err)
	}

	csvWriter, err := audit.NewCSVWriter(*out)
	if err != nil {
		log.Fatalf("Failed to open output file: %v", err)
	}
	defer csvWriter.Close()

	src, err := capture.NewFileSource(*pcapPath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer src.Close()

	table := flowtable.NewTable(1<<20, 256, 2*time.Minute)
	dispatcher := mitigation.NewDispatcher(mitigation.NewBlockedSet(), mitigation.NopBlocker{}, nil)
	pipe := pipeline.New(table, clf, dispatcher, csvWriter, *workers, 4096, 10*time.Second)

	start := time.Now()
	pipe.Run(context.Background(), src)

	stats := pipe.Stats()
	log.Printf("Replay finished in %s: %d packets, %d flows, %d would-block sources",
		time.Since(start).Round(time.Millisecond),
		stats.PacketsProcessed, stats.FlowsCompleted, stats.BlockedSources)
	for _, ip := range dispatcher.Blocked().List() {
		log.Printf("  would block: %s", ip)
	}
}
