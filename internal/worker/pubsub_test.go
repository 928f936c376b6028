package worker_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/fintrack/fintrack/internal/worker"
)

type recordingRunner struct {
	ran []string
	err error
}

func (r *recordingRunner) Run(_ context.Context, jobType string) error {
	r.ran = append(r.ran, jobType)
	if jobType == "reindex" {
		return worker.ErrUnknownJobType
	}
	return r.err
}

func TestDispatcher_Handle(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		runErr  error
		wantAck bool
		wantRan []string
	}{
		{"known job", `{"job_type":"retention_check"}`, nil, true, []string{"retention_check"}},
		{"with user scope", `{"job_type":"export_cleanup","user_id":"usr_1"}`, nil, true, []string{"export_cleanup"}},
		{"job failure nacks", `{"job_type":"audit_flush"}`, errors.New("mirror down"), false, []string{"audit_flush"}},
		{"unknown type acks", `{"job_type":"reindex"}`, nil, true, []string{"reindex"}},
		{"malformed body acks", `{not json`, nil, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{err: tt.runErr}
			d := worker.NewDispatcher(runner, zerolog.New(io.Discard))

			ack := d.Handle(context.Background(), "msg-1", []byte(tt.body))

			assert.Equal(t, tt.wantAck, ack)
			assert.Equal(t, tt.wantRan, runner.ran)
		})
	}
}
