package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
)

const (
	// StreamName is the JetStream stream carrying sales events.
	StreamName = "SALES"

	// SubjectPrefix is the prefix for all sales event subjects.
	SubjectPrefix = "sales"
)

// Publisher is the sales-event publishing interface the orchestrator
// depends on. A Nop implementation covers deployments without NATS.
type Publisher interface {
	Publish(ctx context.Context, event *model.SalesEvent)
}

// StreamPublisher publishes events to JetStream. Publish failures are
// logged and dropped: an event bus outage must never block a reply.
type StreamPublisher struct {
	client *Client
	logger *logger.Logger
}

// NewStreamPublisher ensures the SALES stream exists and returns the
// publisher.
func NewStreamPublisher(ctx context.Context, client *Client, log *logger.Logger) (*StreamPublisher, error) {
	_, err := client.JetStream().CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &StreamPublisher{client: client, logger: log}, nil
}

// Publish sends one event on subject sales.<type>.<sessionID>.
func (p *StreamPublisher) Publish(ctx context.Context, event *model.SalesEvent) {
	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode sales event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, event.Type, event.SessionID)
	if _, err := p.client.JetStream().Publish(ctx, subject, payload); err != nil {
		p.logger.Warn("publish sales event failed",
			zap.String("subject", subject), zap.Error(err))
	}
}

// Nop is a Publisher that discards events.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(ctx context.Context, event *model.SalesEvent) {}
