package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

const (
	eventSource     = "gpudb-sync"
	eventTypePrefix = "nz.ac.auckland.gpudb."

	kindNodeDeactivated  = "node.deactivated"
	kindAssignmentClosed = "assignment.closed"
	kindRunCompleted     = "run.completed"
)

var errStreamNameRequired = errors.New("natsutil: stream name is required")

// EventPublisher publishes gpudb run outcomes as CloudEvents to NATS JetStream.
type EventPublisher struct {
	js            jetstream.JetStream
	stream        string
	subjectPrefix string
	logger        logger.Logger
}

// NewEventPublisher creates a publisher writing subjects under subjectPrefix.
func NewEventPublisher(js jetstream.JetStream, streamName, subjectPrefix string, log logger.Logger) *EventPublisher {
	if subjectPrefix == "" {
		subjectPrefix = models.DefaultNATSSubjectPrefix
	}

	return &EventPublisher{
		js:            js,
		stream:        streamName,
		subjectPrefix: subjectPrefix,
		logger:        log,
	}
}

// Subject returns the full subject for an event kind.
func (p *EventPublisher) Subject(kind string) string {
	return p.subjectPrefix + "." + kind
}

// EnsureStream creates the stream when it is missing, or adds the publisher's
// subjects to an existing stream that does not cover them.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	if p.stream == "" {
		return errStreamNameRequired
	}

	wildcard := p.subjectPrefix + ".>"

	stream, err := p.js.Stream(ctx, p.stream)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", p.stream, err)
		}

		_, err = p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     p.stream,
			Subjects: []string{wildcard},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", p.stream, err)
		}

		p.logger.Info().Str("stream", p.stream).Str("subjects", wildcard).Msg("Created NATS JetStream stream")

		return nil
	}

	info := stream.CachedInfo()
	if info == nil {
		return nil
	}

	subjects := ensureSubjectList(append([]string(nil), info.Config.Subjects...), wildcard)
	if len(subjects) == len(info.Config.Subjects) {
		return nil
	}

	cfg := info.Config
	cfg.Subjects = subjects

	if _, err := p.js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subjects to stream %s: %w", p.stream, err)
	}

	p.logger.Info().Str("stream", p.stream).Strs("subjects", subjects).Msg("Updated NATS JetStream stream subjects")

	return nil
}

// NodeDeactivated publishes a node.deactivated event.
func (p *EventPublisher) NodeDeactivated(ctx context.Context, event *models.NodeDeactivatedEvent) error {
	return p.publish(ctx, kindNodeDeactivated, event.Timestamp, event)
}

// AssignmentClosed publishes an assignment.closed event.
func (p *EventPublisher) AssignmentClosed(ctx context.Context, event *models.AssignmentClosedEvent) error {
	return p.publish(ctx, kindAssignmentClosed, event.Timestamp, event)
}

// RunCompleted publishes the run summary.
func (p *EventPublisher) RunCompleted(ctx context.Context, summary *models.RunSummary) error {
	return p.publish(ctx, kindRunCompleted, summary.FinishedAt, summary)
}

func (p *EventPublisher) publish(ctx context.Context, kind string, at time.Time, data interface{}) error {
	if at.IsZero() {
		at = time.Now()
	}

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventTypePrefix + kind,
		DataContentType: "application/json",
		Subject:         p.Subject(kind),
		Time:            &at,
		Data:            data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", event.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published event")

	return nil
}

// Connect dials NATS with cfg, ensures the stream and returns a publisher.
// The caller owns the returned connection.
func Connect(ctx context.Context, cfg *models.NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*EventPublisher, *nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(eventSource),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.TLS != nil {
		tlsConf, err := TLSConfig(cfg.TLS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := NewEventPublisher(js, cfg.Stream, cfg.SubjectPrefix, log)

	if err := publisher.EnsureStream(ctx); err != nil {
		nc.Close()
		return nil, nil, err
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("stream", cfg.Stream).Msg("Connected to NATS")

	return publisher, nc, nil
}

// ensureSubjectList appends subject unless an existing pattern already
// matches it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject applies NATS wildcard rules: "*" matches one token and ">"
// matches one or more trailing tokens.
func matchesSubject(pattern, subject string) bool {
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, tok := range pTokens {
		if tok == ">" {
			return len(sTokens) > i
		}

		if i >= len(sTokens) {
			return false
		}

		if tok != "*" && tok != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
