package classifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"FlowSentry/internal/model"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// classifyMethod is the full gRPC method name exposed by the model server.
// The server side wraps the pre-fit model artifact; the wire contract is a
// Struct with a "features" list going in, and a Struct with "label" and
// "confidence" coming back.
const classifyMethod = "/flowsentry.v1.Classifier/Classify"

// Client calls the external model server. It implements model.Classifier and
// bounds every call with a timeout so a slow model can never stall the
// ingestion path.
type Client struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
}

// NewClient dials the model server. The connection is lazy; call WaitReady
// during startup to turn an unreachable server into a startup failure
// instead of a per-flow one.
func NewClient(addr string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create model server client: %w", err)
	}
	return &Client{conn: conn, addr: addr, timeout: timeout}, nil
}

// WaitReady blocks until the underlying connection is ready or ctx expires.
func (c *Client) WaitReady(ctx context.Context) error {
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		if state == connectivity.Ready {
			log.Printf("Connected to model server at %s", c.addr)
			return nil
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("model server at %s not reachable: %w", c.addr, ctx.Err())
		}
	}
}

// Classify sends a feature vector to the model server and returns its
// verdict. The call is bounded by the configured timeout.
func (c *Client) Classify(ctx context.Context, features model.FeatureVector) (model.Verdict, error) {
	values := make([]interface{}, len(features))
	for i, v := range features {
		values[i] = v
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"features": values,
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("failed to encode feature vector: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, classifyMethod, req, resp); err != nil {
		return model.Verdict{}, fmt.Errorf("classify call failed: %w", err)
	}

	return verdictFromStruct(resp)
}

// Close tears down the connection to the model server.
func (c *Client) Close() error {
	return c.conn.Close()
}

func verdictFromStruct(resp *structpb.Struct) (model.Verdict, error) {
	labelField, ok := resp.Fields["label"]
	if !ok {
		return model.Verdict{}, fmt.Errorf("model server response missing label")
	}

	var label model.Label
	switch labelField.GetStringValue() {
	case "benign":
		label = model.LabelBenign
	case "attack", "malicious":
		label = model.LabelAttack
	default:
		return model.Verdict{}, fmt.Errorf("model server returned unknown label %q", labelField.GetStringValue())
	}

	confidence := resp.Fields["confidence"].GetNumberValue()
	if confidence < 0 || confidence > 1 {
		return model.Verdict{}, fmt.Errorf("model server returned confidence %v outside [0,1]", confidence)
	}

	return model.Verdict{Label: label, Confidence: confidence}, nil
}
