package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/snapshot"
)

// Message job types.
const (
	JobSourceRefresh = "source_refresh"
	JobHealthCheck   = "health_check"
)

// Message errors. Messages failing with these are acked since redelivery
// cannot succeed.
var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidMessage = errors.New("invalid message")
)

// Refresher queues source refreshes.
type Refresher interface {
	Trigger(name string) error
	TriggerAll()
}

// PubSubHandler turns Pub/Sub messages into source refresh triggers.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Refresher        Refresher
	Logger           zerolog.Logger
}

// RefreshMessage represents a source refresh job message.
type RefreshMessage struct {
	JobType    string `json:"job_type"`
	Source     string `json:"source,omitempty"`
	RefreshAll bool   `json:"refresh_all,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.Refresher, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.dispatcher.Dispatch(ctx, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrUnknownJobType), errors.Is(err, ErrInvalidMessage), errors.Is(err, snapshot.ErrUnknownSource):
		logger.Warn().Err(err).Msg("ignoring message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// Dispatcher decodes refresh messages and applies them to a Refresher.
type Dispatcher struct {
	refresher Refresher
	logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(refresher Refresher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{refresher: refresher, logger: logger}
}

// Dispatch handles one message payload.
func (d *Dispatcher) Dispatch(_ context.Context, data []byte) error {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	switch msg.JobType {
	case JobSourceRefresh:
		if msg.RefreshAll {
			d.logger.Info().Msg("refresh of all sources requested")
			d.refresher.TriggerAll()
			return nil
		}
		if msg.Source == "" {
			return fmt.Errorf("%w: source_refresh needs source or refresh_all", ErrInvalidMessage)
		}
		d.logger.Info().Str("source", msg.Source).Msg("source refresh requested")
		return d.refresher.Trigger(msg.Source)
	case JobHealthCheck:
		d.logger.Debug().Msg("health check passed")
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}
