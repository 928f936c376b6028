package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fintrack/fintrack/internal/resilience"
)

// RemoteSink receives mirrored audit events.
type RemoteSink interface {
	Send(ctx context.Context, events []Event) error
}

// PostgresSink writes events to the privacy_audit_logs table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a PostgreSQL sink.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Send inserts events, ignoring ids that were already mirrored.
func (s *PostgresSink) Send(ctx context.Context, events []Event) error {
	query := `
		INSERT INTO privacy_audit_logs
			(id, user_id, action, resource, metadata, occurred_at, success, error_message, compliance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", e.ID, err)
		}
		var errMsg *string
		if e.ErrorMessage != "" {
			errMsg = &e.ErrorMessage
		}
		batch.Queue(query, e.ID, e.UserID, string(e.Action), e.Resource, meta, e.Timestamp, e.Success, errMsg, e.Compliance)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}
	return nil
}

// HTTPSink posts events as JSON to a remote audit endpoint.
type HTTPSink struct {
	client *resilience.Client
	url    string
	token  string
}

// NewHTTPSink creates a sink posting to url through a resilient client.
func NewHTTPSink(client *resilience.Client, url, token string) *HTTPSink {
	return &HTTPSink{client: client, url: url, token: token}
}

type httpSinkPayload struct {
	Events []Event `json:"events"`
}

// Send posts the batch. Any non-2xx response is an error.
func (s *HTTPSink) Send(ctx context.Context, events []Event) error {
	body, err := json.Marshal(httpSinkPayload{Events: events})
	if err != nil {
		return fmt.Errorf("marshal audit batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("post audit batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post audit batch: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// MemorySink collects mirrored events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Send appends events unless a failure has been injected.
func (s *MemorySink) Send(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Events returns the delivered events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Ensure implementations satisfy RemoteSink.
var (
	_ RemoteSink = (*PostgresSink)(nil)
	_ RemoteSink = (*HTTPSink)(nil)
	_ RemoteSink = (*MemorySink)(nil)
)
