package features

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NumFeatures is the dimensionality of the classifier input.
const NumFeatures = 20

// Names lists the feature set in training order. This ordering is a contract
// with the shipped model artifact, not a design freedom: the schema file
// distributed alongside the model must match it exactly.
var Names = [NumFeatures]string{
	"Destination Port",
	"Fwd Packet Length Max",
	"Fwd Packet Length Mean",
	"Bwd Packet Length Max",
	"Bwd Packet Length Min",
	"Bwd Packet Length Mean",
	"Bwd Packet Length Std",
	"Fwd IAT Std",
	"Bwd IAT Total",
	"Bwd IAT Max",
	"Min Packet Length",
	"Max Packet Length",
	"Packet Length Mean",
	"Packet Length Std",
	"Packet Length Variance",
	"PSH Flag Count",
	"URG Flag Count",
	"Average Packet Size",
	"Avg Fwd Segment Size",
	"Avg Bwd Segment Size",
}

// Schema is the feature list shipped next to the model artifact.
type Schema struct {
	Features []string `yaml:"features"`
}

// LoadSchema reads a feature schema from a YAML file and verifies it against
// the extractor's built-in ordering. A mismatch means the sensor and the
// model were trained on different contracts and is a startup error.
func LoadSchema(filePath string) (*Schema, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature schema: %w", err)
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature schema YAML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the schema against the built-in feature ordering.
func (s *Schema) Validate() error {
	if len(s.Features) != NumFeatures {
		return fmt.Errorf("feature schema has %d features, expected %d", len(s.Features), NumFeatures)
	}
	for i, name := range s.Features {
		if name != Names[i] {
			return fmt.Errorf("feature schema mismatch at position %d: got %q, expected %q", i, name, Names[i])
		}
	}
	return nil
}
