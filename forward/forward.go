// Package forward implements the optional persistence collaborator: every
// accepted record is published to NATS best-effort. Forwarding failures are
// swallowed and logged at debug level; the pipeline never fails, retries, or
// queues because of them.
package forward

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
)

// DefaultSubjectPrefix prefixes per-posting forward subjects.
const DefaultSubjectPrefix = "jobstats.stats"

// Publisher is the transport the forwarder publishes through.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Forwarder publishes accepted records to jobstats.stats.<entityID>.
type Forwarder struct {
	publisher     Publisher
	subjectPrefix string
	logger        *slog.Logger

	forwarded int64
	failed    int64
}

// New creates a forwarder. A nil publisher disables forwarding entirely;
// Forward becomes a no-op.
func New(publisher Publisher, subjectPrefix string, logger *slog.Logger) *Forwarder {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		publisher:     publisher,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}
}

// Forward publishes rec best-effort. It reports whether the record went out,
// for drop accounting only; callers must not treat false as an error.
func (f *Forwarder) Forward(ctx context.Context, rec record.Record) bool {
	if f.publisher == nil {
		return false
	}

	data, err := json.Marshal(rec)
	if err != nil {
		atomic.AddInt64(&f.failed, 1)
		f.logger.Debug("record marshal failed, dropping forward",
			"component", "forward",
			"entity_id", rec.EntityID,
			"error", err)
		return false
	}

	subject := f.subjectPrefix + "." + rec.EntityID
	if err := f.publisher.Publish(ctx, subject, data); err != nil {
		atomic.AddInt64(&f.failed, 1)
		f.logger.Debug("forward publish failed, dropping",
			"component", "forward",
			"subject", subject,
			"error", err)
		return false
	}

	atomic.AddInt64(&f.forwarded, 1)
	return true
}

// Forwarded returns the number of records successfully forwarded.
func (f *Forwarder) Forwarded() int64 {
	return atomic.LoadInt64(&f.forwarded)
}

// Failed returns the number of forwards dropped on failure.
func (f *Forwarder) Failed() int64 {
	return atomic.LoadInt64(&f.failed)
}
