// Package pipeline runs one check cycle: fetch every tag, drop entries already
// seen, record the new ones, and announce them.
package pipeline

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"

	"feed_notifier/internal/metrics"
	"feed_notifier/internal/model"
)

// Fetcher retrieves the feed of every tag.
type Fetcher interface {
	FetchAll(ctx context.Context, tags []string) ([]model.TagBucket, error)
}

// Store filters and records seen entries.
type Store interface {
	Unseen(ctx context.Context, bucket model.TagBucket) (model.TagBucket, error)
	Save(ctx context.Context, bucket model.TagBucket) error
}

// Notifier announces a tag's new entries. Delivery failures are reported in
// the returned counts, never as errors.
type Notifier interface {
	Notify(ctx context.Context, bucket model.TagBucket) model.Delivery
}

// Outcome is the terminal state of a run.
type Outcome int

// Terminal states.
const (
	Failed Outcome = iota
	NoUpdates
	Updated
)

func (o Outcome) String() string {
	switch o {
	case NoUpdates:
		return "no_updates"
	case Updated:
		return "updated"
	default:
		return "failed"
	}
}

type sink struct {
	name     string
	notifier Notifier
}

// Pipeline sequences a single check cycle.
type Pipeline struct {
	fetcher Fetcher
	store   Store
	tags    []string
	sinks   []sink
	isolate bool
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier adds a notifier; notifiers run in the order they are added.
func WithNotifier(name string, n Notifier) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sink{name: name, notifier: n}) }
}

// WithTagIsolation keeps filtering and storing other tags after one tag fails.
func WithTagIsolation(on bool) Option {
	return func(p *Pipeline) { p.isolate = on }
}

// WithMetrics records run counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline for tags.
func New(fetcher Fetcher, store Store, tags []string, log *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: fetcher,
		store:   store,
		tags:    tags,
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p
}

// Run executes one cycle. Without tag isolation the first fetch, filter, or
// store error ends the run with Failed. With isolation, filter and store errors
// are collected and returned alongside the outcome of the remaining tags.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	p.log.Info("start checking", "tags", len(p.tags))

	buckets, err := p.fetcher.FetchAll(ctx, p.tags)
	if err != nil {
		p.metrics.TagFailures.WithLabelValues("fetch").Inc()
		p.log.Warn("fetch feeds", "error", err)
		return Failed, err
	}
	for _, b := range buckets {
		p.metrics.EntriesFetched.WithLabelValues(b.Tag).Add(float64(len(b.Entries)))
	}

	var errs error

	fresh := make([]model.TagBucket, 0, len(buckets))
	for _, b := range buckets {
		unseen, err := p.store.Unseen(ctx, b)
		if err != nil {
			p.metrics.TagFailures.WithLabelValues("filter").Inc()
			p.log.Warn("filter seen entries", "tag", b.Tag, "error", err)
			if !p.isolate {
				return Failed, err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		p.metrics.EntriesNew.WithLabelValues(b.Tag).Add(float64(len(unseen.Entries)))
		p.log.Debug("filtered", "tag", b.Tag, "fetched", len(b.Entries), "new", len(unseen.Entries))
		fresh = append(fresh, unseen)
	}

	if allEmpty(fresh) {
		p.log.Info("nothing updated")
		return NoUpdates, errs
	}

	for _, b := range fresh {
		if b.Empty() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Failed, multierr.Append(errs, err)
		}

		if err := p.store.Save(ctx, b); err != nil {
			p.metrics.TagFailures.WithLabelValues("store").Inc()
			p.log.Warn("store new entries", "tag", b.Tag, "error", err)
			if !p.isolate {
				return Failed, err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		p.metrics.EntriesStored.WithLabelValues(b.Tag).Add(float64(len(b.Entries)))
		p.log.Info("stored new entries", "tag", b.Tag, "count", len(b.Entries))

		p.notify(ctx, b)
	}

	p.log.Info("checking finished")
	return Updated, errs
}

func (p *Pipeline) notify(ctx context.Context, b model.TagBucket) {
	for _, s := range p.sinks {
		d := s.notifier.Notify(ctx, b)
		p.metrics.Deliveries.WithLabelValues(s.name, "sent").Add(float64(d.Sent))
		p.metrics.Deliveries.WithLabelValues(s.name, "failed").Add(float64(d.Failed))
		if d.Failed > 0 {
			p.log.Warn("notification incomplete", "tag", b.Tag, "sink", s.name, "sent", d.Sent, "failed", d.Failed)
		}
	}
}

func allEmpty(buckets []model.TagBucket) bool {
	for _, b := range buckets {
		if !b.Empty() {
			return false
		}
	}
	return true
}
