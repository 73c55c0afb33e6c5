package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
)

type scriptedClient struct {
	outputs []string
	err     error
	delay   time.Duration
	calls   int
}

func (c *scriptedClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	c.calls++
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	out := c.outputs[0]
	if len(c.outputs) > 1 {
		c.outputs = c.outputs[1:]
	}
	return &CompletionResponse{Content: out, Model: "scripted"}, nil
}

func (c *scriptedClient) Name() string     { return "scripted" }
func (c *scriptedClient) Models() []string { return nil }

func TestStructuredParsesContract(t *testing.T) {
	client := &scriptedClient{outputs: []string{`{"content":"Bonjour !","choices":["Je veux commander","Autre question"]}`}}
	s := NewStructured(client, time.Second, 512)

	reply, err := s.Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", reply.Content)
	assert.Equal(t, []string{"Je veux commander", "Autre question"}, reply.Choices)
}

func TestStructuredExtractsWrappedJSON(t *testing.T) {
	client := &scriptedClient{outputs: []string{"Voici ma réponse :\n```json\n{\"content\":\"Oui\",\"choices\":[]}\n```"}}
	s := NewStructured(client, time.Second, 512)

	reply, err := s.Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "Oui", reply.Content)
}

func TestStructuredRetriesOnceOnMalformedOutput(t *testing.T) {
	client := &scriptedClient{outputs: []string{
		"désolé, je ne peux pas",
		`{"content":"Réparé","choices":[]}`,
	}}
	s := NewStructured(client, time.Second, 512)

	reply, err := s.Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, "Réparé", reply.Content)
}

func TestStructuredReportsCompletionFailure(t *testing.T) {
	client := &scriptedClient{err: errors.New("quota exceeded")}
	s := NewStructured(client, time.Second, 512)

	_, err := s.Complete(context.Background(), &CompletionRequest{})

	assert.ErrorIs(t, err, core.ErrCompletionService)
	assert.Equal(t, 1, client.calls, "transport failures are not retried")
}

func TestStructuredTimesOut(t *testing.T) {
	client := &scriptedClient{
		outputs: []string{`{"content":"trop tard","choices":[]}`},
		delay:   200 * time.Millisecond,
	}
	s := NewStructured(client, 20*time.Millisecond, 512)

	start := time.Now()
	_, err := s.Complete(context.Background(), &CompletionRequest{})

	assert.ErrorIs(t, err, core.ErrCompletionService)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestStructuredWithoutProvider(t *testing.T) {
	s := NewStructured(nil, time.Second, 512)

	_, err := s.Complete(context.Background(), &CompletionRequest{})

	assert.ErrorIs(t, err, core.ErrCompletionService)
	assert.Equal(t, "none", s.Provider())
}
