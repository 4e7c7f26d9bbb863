package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var errTestFixture = errors.New("fixture error")

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "adds subject when list empty",
			subjects: nil,
			subject:  "gpudb.node.deactivated",
			want:     []string{"gpudb.node.deactivated"},
		},
		{
			name:     "keeps list when wildcard matches",
			subjects: []string{"gpudb.node.*"},
			subject:  "gpudb.node.deactivated",
			want:     []string{"gpudb.node.*"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"gpudb.>"},
			subject:  "gpudb.node.deactivated",
			want:     []string{"gpudb.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"events.syslog.*"},
			subject:  "gpudb.node.deactivated",
			want:     []string{"events.syslog.*", "gpudb.node.deactivated"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result := ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject)

			if len(result) != len(tc.want) {
				t.Fatalf("expected %d subjects, got %d", len(tc.want), len(result))
			}

			for i := range tc.want {
				if tc.want[i] != result[i] {
					t.Fatalf("result[%d] = %q, want %q", i, result[i], tc.want[i])
				}
			}
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "gpudb.node.deactivated", "gpudb.node.deactivated", true},
		{"single wildcard", "gpudb.*.deactivated", "gpudb.node.deactivated", true},
		{"greater wildcard", "gpudb.>", "gpudb.node.deactivated", true},
		{"no match length", "gpudb.*", "gpudb.node.deactivated", false},
		{"no match tokens", "events.syslog.*", "gpudb.node.deactivated", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := matchesSubject(tc.pattern, tc.subject); got != tc.expected {
				t.Fatalf("matchesSubject(%q, %q) = %t, want %t", tc.pattern, tc.subject, got, tc.expected)
			}
		})
	}
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"jetstream no stream response", jetstream.ErrNoStreamResponse, true},
		{"jetstream stream not found", jetstream.ErrStreamNotFound, true},
		{"nats no stream response", nats.ErrNoStreamResponse, true},
		{"nats stream not found", nats.ErrStreamNotFound, true},
		{"nats no responders", nats.ErrNoResponders, true},
		{"other error", errTestFixture, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isStreamMissingErr(tc.err); got != tc.expected {
				t.Fatalf("isStreamMissingErr(%v) = %t, want %t", tc.err, got, tc.expected)
			}
		})
	}
}

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	jetstream.JetStream

	streamErr  error
	info       *jetstream.StreamInfo
	created    []jetstream.StreamConfig
	updated    []jetstream.StreamConfig
	published  []published
	publishErr error
}

func (f *fakeJetStream) Stream(context.Context, string) (jetstream.Stream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}

	return &fakeStream{info: f.info}, nil
}

func (f *fakeJetStream) CreateOrUpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created = append(f.created, cfg)
	return &fakeStream{}, nil
}

func (f *fakeJetStream) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.updated = append(f.updated, cfg)
	return &fakeStream{}, nil
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}

	f.published = append(f.published, published{subject: subject, data: data})

	return &jetstream.PubAck{Stream: "GPUDB", Sequence: uint64(len(f.published))}, nil
}

type fakeStream struct {
	jetstream.Stream

	info *jetstream.StreamInfo
}

func (f *fakeStream) CachedInfo() *jetstream.StreamInfo {
	return f.info
}

func TestEnsureStreamCreatesMissingStream(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{streamErr: jetstream.ErrStreamNotFound}
	p := NewEventPublisher(js, "GPUDB", "", logger.NewTestLogger())

	require.NoError(t, p.EnsureStream(context.Background()))
	require.Len(t, js.created, 1)
	assert.Equal(t, "GPUDB", js.created[0].Name)
	assert.Equal(t, []string{"gpudb.>"}, js.created[0].Subjects)
}

func TestEnsureStreamAddsSubjects(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{info: &jetstream.StreamInfo{Config: jetstream.StreamConfig{
		Name:     "EVENTS",
		Subjects: []string{"events.syslog.*"},
	}}}
	p := NewEventPublisher(js, "EVENTS", "gpudb", logger.NewTestLogger())

	require.NoError(t, p.EnsureStream(context.Background()))
	assert.Empty(t, js.created)
	require.Len(t, js.updated, 1)
	assert.Equal(t, []string{"events.syslog.*", "gpudb.>"}, js.updated[0].Subjects)

	covered := &fakeJetStream{info: &jetstream.StreamInfo{Config: jetstream.StreamConfig{
		Name:     "GPUDB",
		Subjects: []string{">"},
	}}}
	require.NoError(t, NewEventPublisher(covered, "GPUDB", "gpudb", logger.NewTestLogger()).EnsureStream(context.Background()))
	assert.Empty(t, covered.updated)
}

func TestEnsureStreamErrors(t *testing.T) {
	t.Parallel()

	err := NewEventPublisher(&fakeJetStream{}, "", "", logger.NewTestLogger()).EnsureStream(context.Background())
	require.ErrorIs(t, err, errStreamNameRequired)

	js := &fakeJetStream{streamErr: errTestFixture}
	err = NewEventPublisher(js, "GPUDB", "", logger.NewTestLogger()).EnsureStream(context.Background())
	require.ErrorIs(t, err, errTestFixture)
	assert.Empty(t, js.created)
}

func TestPublishCloudEvents(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{}
	p := NewEventPublisher(js, "GPUDB", "gpudb", logger.NewTestLogger())
	ctx := context.Background()
	at := time.Date(2025, 5, 2, 13, 0, 0, 0, time.UTC)

	require.NoError(t, p.NodeDeactivated(ctx, &models.NodeDeactivatedEvent{
		RunID: "run-1", Hypervisor: "gpu07", Address: "0000:3b:00.0", Timestamp: at,
	}))
	require.NoError(t, p.AssignmentClosed(ctx, &models.AssignmentClosedEvent{
		RunID: "run-1", AssignmentID: 9, InstanceUUID: "inst", TerminatedAt: at, Timestamp: at,
	}))
	require.NoError(t, p.RunCompleted(ctx, &models.RunSummary{RunID: "run-1", Processed: 3}))

	require.Len(t, js.published, 3)
	assert.Equal(t, "gpudb.node.deactivated", js.published[0].subject)
	assert.Equal(t, "gpudb.assignment.closed", js.published[1].subject)
	assert.Equal(t, "gpudb.run.completed", js.published[2].subject)

	var event struct {
		models.CloudEvent
		Data models.NodeDeactivatedEvent `json:"data"`
	}

	require.NoError(t, json.Unmarshal(js.published[0].data, &event))
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, "nz.ac.auckland.gpudb.node.deactivated", event.Type)
	assert.Equal(t, "gpudb-sync", event.Source)
	assert.NotEmpty(t, event.ID)
	require.NotNil(t, event.Time)
	assert.True(t, at.Equal(*event.Time))
	assert.Equal(t, "gpu07", event.Data.Hypervisor)

	var summary struct {
		Time *time.Time `json:"time"`
	}

	require.NoError(t, json.Unmarshal(js.published[2].data, &summary))
	require.NotNil(t, summary.Time)
	assert.False(t, summary.Time.IsZero())
}

func TestPublishError(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{publishErr: nats.ErrConnectionClosed}
	p := NewEventPublisher(js, "GPUDB", "gpudb", logger.NewTestLogger())

	err := p.RunCompleted(context.Background(), &models.RunSummary{RunID: "run-1"})
	require.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.Contains(t, err.Error(), "run.completed")
}

func TestTLSConfig(t *testing.T) {
	t.Parallel()

	_, err := TLSConfig(nil)
	require.ErrorIs(t, err, ErrCAFileRequired)

	_, err = TLSConfig(&models.TLSConfig{CAFile: "/etc/ssl/ca.pem", CertFile: "client.pem"})
	require.ErrorIs(t, err, ErrClientCertIncomplete)

	dir := t.TempDir()
	bogus := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))

	_, err = TLSConfig(&models.TLSConfig{CAFile: bogus})
	require.ErrorIs(t, err, ErrCAParsingFailed)

	_, err = TLSConfig(&models.TLSConfig{CAFile: filepath.Join(dir, "missing.pem")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CA certificate")
}
