package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// StructuredReply is the JSON shape the completion service is
// contractually required to return.
type StructuredReply struct {
	Content string   `json:"content"`
	Choices []string `json:"choices"`
}

// Structured wraps a Client with the response-format contract: a
// bounded timeout, a token cap, and reject-and-retry-once on non-JSON
// output. All failures are reported as core.ErrCompletionService so
// callers can fall back to the template path.
type Structured struct {
	client    Client
	timeout   time.Duration
	maxTokens int
}

// NewStructured builds the contract-enforcing wrapper. Zero values
// select a 5s timeout and a 1024 token cap.
func NewStructured(client Client, timeout time.Duration, maxTokens int) *Structured {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Structured{client: client, timeout: timeout, maxTokens: maxTokens}
}

// Complete runs the request and parses the structured reply. One retry
// is attempted when the service answers with something that is not the
// required JSON object.
func (s *Structured) Complete(ctx context.Context, req *CompletionRequest) (*StructuredReply, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: no provider configured", core.ErrCompletionService)
	}

	req.MaxTokens = s.maxTokens
	start := time.Now()

	reply, err := s.completeOnce(ctx, req)
	if err != nil {
		// Retry only contract violations. Timeouts and transport
		// failures go straight to the fallback path.
		if ctx.Err() == nil && strings.Contains(err.Error(), "malformed") {
			reply, err = s.completeOnce(ctx, req)
		}
	}

	if err != nil {
		metrics.RecordCompletion(s.client.Name(), "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordCompletion(s.client.Name(), "success", time.Since(start).Seconds())
	return reply, nil
}

func (s *Structured) completeOnce(ctx context.Context, req *CompletionRequest) (*StructuredReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Complete(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCompletionService, err)
	}

	reply, err := parseStructured(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed output: %v", core.ErrCompletionService, err)
	}
	return reply, nil
}

// parseStructured extracts the {content, choices} object from raw
// model output. Models occasionally wrap JSON in prose or code fences;
// the first balanced object is taken.
func parseStructured(raw string) (*StructuredReply, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var reply StructuredReply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return nil, fmt.Errorf("empty content field")
	}
	return &reply, nil
}

// Provider returns the underlying provider name, or "none".
func (s *Structured) Provider() string {
	if s.client == nil {
		return "none"
	}
	return s.client.Name()
}
