package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/mitigation"
	"FlowSentry/internal/pipeline"

	"github.com/gorilla/mux"
)

// Server exposes the sensor's runtime state over HTTP: active flows, blocked
// sources, pipeline counters and Prometheus metrics. Manual unblock is the
// only mutating endpoint.
type Server struct {
	srv        *http.Server
	table      *flowtable.Table
	dispatcher *mitigation.Dispatcher
	pipe       *pipeline.Pipeline
}

// NewServer builds the router and the underlying http.Server.
func NewServer(listenAddr string, table *flowtable.Table, dispatcher *mitigation.Dispatcher, pipe *pipeline.Pipeline) *Server {
	s := &Server{
		table:      table,
		dispatcher: dispatcher,
		pipe:       pipe,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows", s.flowsHandler).Methods("GET")
	r.HandleFunc("/api/v1/blocked", s.blockedHandler).Methods("GET")
	r.HandleFunc("/api/v1/blocked/{ip}", s.unblockHandler).Methods("DELETE")
	r.Handle("/metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}
	return s
}

// Start serves in a background goroutine. A bind failure at startup is fatal.
func (s *Server) Start() {
	go func() {
		log.Printf("Status API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", s.srv.Addr, err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("ERROR: API server forced to shut down: %v", err)
	}
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Stats())
}

func (s *Server) flowsHandler(w http.ResponseWriter, r *http.Request) {
	views := s.table.Snapshot()
	writeJSON(w, map[string]interface{}{
		"count": len(views),
		"flows": views,
	})
}

func (s *Server) blockedHandler(w http.ResponseWriter, r *http.Request) {
	ips := s.dispatcher.Blocked().List()
	writeJSON(w, map[string]interface{}{
		"count":   len(ips),
		"blocked": ips,
	})
}

func (s *Server) unblockHandler(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if net.ParseIP(ip) == nil {
		http.Error(w, fmt.Sprintf("invalid IP address: %s", ip), http.StatusBadRequest)
		return
	}
	if err := s.dispatcher.Unblock(ip); err != nil {
		http.Error(w, fmt.Sprintf("failed to unblock %s: %v", ip, err), http.StatusConflict)
		return
	}
	metrics.BlockedSources.Set(float64(s.dispatcher.Blocked().Len()))
	log.Printf("Manually unblocked %s via API", ip)
	writeJSON(w, map[string]string{"unblocked": ip})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode API response: %v", err)
	}
}
