package archive

import (
	"context"
	"log/slog"

	"github.com/yourorg/address-formatter/internal/events"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/store"
)

// Writer is the part of store.Store the archiver uses.
type Writer interface {
	Upsert(ctx context.Context, rec store.Record) (string, error)
}

type Archiver struct {
	Store   Writer
	Pub     events.Publisher
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (a *Archiver) Enabled() bool { return a != nil && a.Store != nil }

// Write upserts j and announces it. Without a store it does nothing.
func (a *Archiver) Write(ctx context.Context, j Job) error {
	if !a.Enabled() {
		return nil
	}
	id, err := a.Store.Upsert(ctx, store.Record{
		RequestKey:  j.RequestKey,
		CountryCode: j.CountryCode,
		Components:  j.Components,
		Formatted:   j.Formatted,
	})
	if err != nil {
		a.Metrics.IncrementArchive("error")
		return err
	}
	a.Metrics.IncrementArchive("ok")
	if a.Pub != nil {
		a.Pub.PublishAddressFormatted(ctx, events.AddressFormatted{
			ID:          id,
			RequestKey:  j.RequestKey,
			CountryCode: j.CountryCode,
		})
	}
	return nil
}

// Run is the Queue callback: it writes j and logs failures.
func (a *Archiver) Run(ctx context.Context, j Job) {
	if err := a.Write(ctx, j); err != nil && a.Logger != nil {
		a.Logger.ErrorContext(ctx, "archive write failed",
			"request_key", j.RequestKey,
			"error", err,
		)
	}
}
