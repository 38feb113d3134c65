// Package diagnosis — client.go
//
// gRPC client for the optional LLM-backed diagnosis collaborator: enriches
// aggregations asynchronously. Fully asynchronous and lossy by design —
// failures here never affect alerting or ingestion throughput.
//
// Transport setup is plain TCP gRPC with dedicated dial options and
// context-bound calls, no mTLS/Ed25519 — there is no peer trust model
// here, just one outbound call to a single configured collaborator.

package diagnosis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Request carries the aggregation snapshot sent to the diagnosis service.
type Request struct {
	ProjectID       string   `json:"projectId"`
	ErrorHash       string   `json:"errorHash"`
	Message         string   `json:"message"`
	Stack           string   `json:"stack,omitempty"`
	OccurrenceCount int      `json:"occurrenceCount"`
	AffectedUsers   int      `json:"affectedUsers"`
	SourceFile      string   `json:"sourceFile,omitempty"`
	SourceLine      int      `json:"sourceLine,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// Result is the diagnosis service's best-effort analysis. Summary and
// Fields are merged into ErrorAggregation.AIDiagnosis verbatim by the
// caller.
type Result struct {
	Summary    string            `json:"summary"`
	Confidence float64           `json:"confidence"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Client dials the diagnosis service once and reuses the connection for
// every Diagnose call.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	log     *zap.Logger
}

// Dial connects to the diagnosis service at addr. The connection is plain
// TCP (no TLS) — the collaborator is assumed to be reachable only from the
// server's private network, same posture as other internal RPC calls in
// this pipeline.
func Dial(addr string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("diagnosis: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout, log: log}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Diagnose calls the remote service's Diagnose method. Never returns an
// error that the caller should treat as retryable — the ai-diagnosis
// queue's handler logs and drops on any failure, it does not feed into
// the dead-letter path.
func (c *Client) Diagnose(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp Result
	err := c.conn.Invoke(ctx, "/monitor.diagnosis.v1.DiagnosisService/Diagnose", &req, &resp)
	if err != nil {
		return nil, fmt.Errorf("diagnosis: invoke: %w", err)
	}
	return &resp, nil
}

// Handler builds a queue.Handler-shaped best-effort diagnosis step: on any
// failure it logs and returns nil so the job is never retried or
// dead-lettered, matching the "lossy by design" contract.
func (c *Client) Handler(apply func(ctx context.Context, req Request, result *Result) error) func(ctx context.Context, req Request) error {
	return func(ctx context.Context, req Request) error {
		result, err := c.Diagnose(ctx, req)
		if err != nil {
			if c.log != nil {
				c.log.Warn("diagnosis call failed, dropping",
					zap.String("projectId", req.ProjectID),
					zap.String("errorHash", req.ErrorHash),
					zap.Error(err))
			}
			return nil
		}
		if err := apply(ctx, req, result); err != nil && c.log != nil {
			c.log.Warn("diagnosis result apply failed, dropping",
				zap.String("projectId", req.ProjectID),
				zap.String("errorHash", req.ErrorHash),
				zap.Error(err))
		}
		return nil
	}
}
