// Package batch drives certificate generation over many attendees, one at a
// time with a fixed spacing, recording each outcome independently.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"certEngine/internal/certificate"
)

// Generator produces one certificate; *certificate.Compositor satisfies it.
type Generator interface {
	Generate(ctx context.Context, referenceID string, kind certificate.Kind) (*certificate.Certificate, error)
}

// Item is the outcome for one attendee reference.
type Item struct {
	ReferenceID string
	Certificate *certificate.Certificate
	Err         error
	Elapsed     time.Duration
}

// OK reports whether the item produced a document.
func (i Item) OK() bool { return i.Err == nil && i.Certificate != nil }

// Report summarises a run.
type Report struct {
	Items     []Item
	Succeeded int
	Failed    int
	// Canceled is set when the context ended before every reference was attempted.
	Canceled bool
}

// Sink receives each item as soon as it finishes. Returning an error stops the run.
type Sink func(ctx context.Context, item Item) error

// Driver runs generations sequentially with at least Delay between starts.
type Driver struct {
	gen     Generator
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDriver returns a driver. delay <= 0 disables throttling.
func NewDriver(gen Generator, delay time.Duration, logger *slog.Logger) *Driver {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{gen: gen, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

// ErrStopped wraps a sink error that ended the run early.
var ErrStopped = errors.New("batch stopped")

// Run generates kind for every reference in order. A failing attendee is
// recorded and the run continues; only context cancellation or a sink error
// ends it early. Items are not retained in the report when sink is non-nil.
func (d *Driver) Run(ctx context.Context, refs []string, kind certificate.Kind, sink Sink) (Report, error) {
	var report Report
	for idx, ref := range refs {
		if err := d.limiter.Wait(ctx); err != nil {
			report.Canceled = true
			d.logger.Warn("batch canceled", slog.Int("remaining", len(refs)-idx), slog.String("error", err.Error()))
			return report, nil
		}
		start := time.Now()
		cert, err := d.gen.Generate(ctx, ref, kind)
		item := Item{ReferenceID: ref, Certificate: cert, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			report.Failed++
			d.logger.Warn("certificate failed",
				slog.String("reference_id", ref),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		} else {
			report.Succeeded++
		}
		if sink == nil {
			report.Items = append(report.Items, item)
			continue
		}
		if err := sink(ctx, item); err != nil {
			return report, errors.Join(ErrStopped, err)
		}
	}
	return report, nil
}
