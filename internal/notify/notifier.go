// Package notify delivers signal lifecycle announcements to external sinks.
package notify

import (
	"context"
	"errors"

	"solana-launch-signals/internal/domain"
)

// Notifier receives signal lifecycle announcements. Implementations must be
// safe for concurrent use. A delivery failure is reported to the caller but
// must never corrupt sink state; the pipeline treats it as non-fatal.
type Notifier interface {
	// SignalCreated announces a freshly inserted pending signal.
	SignalCreated(ctx context.Context, sig *domain.Signal) error

	// SignalClosed announces a signal that reached a terminal status.
	SignalClosed(ctx context.Context, sig *domain.Signal) error
}

// Noop discards every announcement.
type Noop struct{}

// SignalCreated implements Notifier.
func (Noop) SignalCreated(context.Context, *domain.Signal) error { return nil }

// SignalClosed implements Notifier.
func (Noop) SignalClosed(context.Context, *domain.Signal) error { return nil }

// Multi fans announcements out to several sinks. Every sink sees every
// announcement; failures are collected instead of short-circuiting.
type Multi []Notifier

// SignalCreated implements Notifier.
func (m Multi) SignalCreated(ctx context.Context, sig *domain.Signal) error {
	var errs []error
	for _, n := range m {
		if err := n.SignalCreated(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalClosed implements Notifier.
func (m Multi) SignalClosed(ctx context.Context, sig *domain.Signal) error {
	var errs []error
	for _, n := range m {
		if err := n.SignalClosed(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = Noop{}
	_ Notifier = Multi{}
)
