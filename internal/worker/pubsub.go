package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Runner executes a maintenance job by type.
type Runner interface {
	Run(ctx context.Context, jobType string) error
}

// PubSubHandler handles Pub/Sub messages for the worker.
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
	Runner           Runner
	Logger           zerolog.Logger
}

// JobMessage is an on-demand maintenance job request.
type JobMessage struct {
	JobType string `json:"job_type"`
	UserID  string `json:"user_id,omitempty"`
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
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.Runner, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.logger.Debug().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Msg("received pubsub message")

		if h.dispatcher.Handle(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Dispatcher decodes job messages and runs them.
type Dispatcher struct {
	runner Runner
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for runner.
func NewDispatcher(runner Runner, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{runner: runner, logger: logger}
}

// Handle processes one message body and reports whether it should be acked.
// Malformed bodies and unknown job types are acked so they are not
// redelivered; job failures are nacked for retry.
func (d *Dispatcher) Handle(ctx context.Context, messageID string, data []byte) bool {
	startTime := time.Now()
	logger := d.logger.With().Str("message_id", messageID).Logger()

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	err := d.runner.Run(ctx, msg.JobType)
	switch {
	case errors.Is(err, ErrUnknownJobType):
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	case err != nil:
		logger.Error().Err(err).Str("job_type", msg.JobType).Str("user_id", msg.UserID).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Str("user_id", msg.UserID).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}
