package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SensorConfig describes the capture side of the sensor.
type SensorConfig struct {
	Interface   string `yaml:"interface"`
	Source      string `yaml:"source"` // "pcap" or "nats"
	RunDuration string `yaml:"run_duration"`
	BPFFilter   string `yaml:"bpf_filter"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
}

// FlowTableConfig bounds the in-memory flow state.
type FlowTableConfig struct {
	InactivityTimeout string `yaml:"inactivity_timeout"`
	SweepInterval     string `yaml:"sweep_interval"`
	MaxFlows          int    `yaml:"max_flows"`
	NumShards         uint32 `yaml:"num_shards"`
}

// DetectionConfig sizes the extract/classify/mitigate worker pool.
type DetectionConfig struct {
	NumWorkers int `yaml:"num_workers"`
	QueueSize  int `yaml:"queue_size"`
}

// ClassifierConfig points at the external model server.
type ClassifierConfig struct {
	Addr       string `yaml:"addr"`
	Timeout    string `yaml:"timeout"`
	SchemaPath string `yaml:"schema_path"`
}

// MitigationConfig controls the xdp-filter collaborator.
type MitigationConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
	Command   string `yaml:"command"`
	Notify    bool   `yaml:"notify"`
}

// CSVAuditConfig configures the append-only CSV audit log.
type CSVAuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ClickHouseConfig configures the ClickHouse audit writer.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AuditConfig groups the audit writers.
type AuditConfig struct {
	BufferSize int              `yaml:"buffer_size"`
	CSV        CSVAuditConfig   `yaml:"csv"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// APIConfig configures the HTTP status/metrics endpoint.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// ProbeConfig holds the NATS transport settings shared by fs-probe and the
// sensor's nats capture source.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Sensor     SensorConfig     `yaml:"sensor"`
	FlowTable  FlowTableConfig  `yaml:"flowtable"`
	Detection  DetectionConfig  `yaml:"detection"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Mitigation MitigationConfig `yaml:"mitigation"`
	Audit      AuditConfig      `yaml:"audit"`
	API        APIConfig        `yaml:"api"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Probe      ProbeConfig      `yaml:"probe"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return &cfg, nil
}
