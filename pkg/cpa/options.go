package cpa

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultSlowDownIncrement is added to the polling interval on every slow_down answer.
	DefaultSlowDownIncrement = 5 * time.Second

	// DefaultMaxPollDuration bounds polling when the provider sends no grant expiry.
	DefaultMaxPollDuration = 15 * time.Minute
)

// ApprovalHandler is called from the session goroutine when a user-mode
// grant needs a human to approve the device. It should return promptly;
// polling starts once it returns.
type ApprovalHandler func(ctx context.Context, approval Approval)

type options struct {
	clock             Clock
	observer          Observer
	approvalHandler   ApprovalHandler
	logger            *slog.Logger
	slowDownIncrement time.Duration
	maxPollDuration   time.Duration
	clientOpts        []ClientOption
}

func defaultOptions() options {
	return options{
		clock:             realClock{},
		observer:          noopObserver{},
		logger:            slog.Default(),
		slowDownIncrement: DefaultSlowDownIncrement,
		maxPollDuration:   DefaultMaxPollDuration,
	}
}

// Option configures a Provider.
type Option func(*options)

// WithClock sets the time source for expiry checks and poll scheduling.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithObserver registers an observer for session events.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithApprovalHandler sets the handler invoked when a human must approve a device.
func WithApprovalHandler(handler ApprovalHandler) Option {
	return func(o *options) {
		o.approvalHandler = handler
	}
}

// WithLogger sets the logger used by the provider and its authorization client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSlowDownIncrement overrides the interval increase applied on slow_down.
func WithSlowDownIncrement(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.slowDownIncrement = d
		}
	}
}

// WithMaxPollDuration overrides the polling bound used when a grant carries no expiry.
func WithMaxPollDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxPollDuration = d
		}
	}
}

// WithClientOptions passes options to the underlying AuthorizationClient.
func WithClientOptions(opts ...ClientOption) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}
