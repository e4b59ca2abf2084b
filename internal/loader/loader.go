// Package loader fetches assets and fonts into a workspace directory, once
// per id, with batch loads that either fully succeed or leave nothing behind.
package loader

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
)

type Options struct {
	Logger      zerolog.Logger
	Dir         string
	Concurrency int
	// Listener, when set, is told about every fetch from the source.
	Listener Listener
}

type Loader struct {
	logger zerolog.Logger
	store  *store
}

func New(source domain.AssetSource, opts Options) *Loader {
	logger := opts.Logger.With().Str("component", "loader").Logger()
	if opts.Listener != nil {
		source = NewNotifyingSource(source, opts.Listener)
	}
	fetch := func(ctx context.Context, key string) ([]byte, error) {
		return source.Fetch(ctx, domain.AssetID(key))
	}
	return &Loader{
		logger: logger,
		store:  newStore(logger, opts.Dir, "asset", "", opts.Concurrency, fetch),
	}
}

// Load fetches one asset, or returns the handle of an earlier load.
func (l *Loader) Load(ctx context.Context, id domain.AssetID) (domain.Handle, error) {
	res, err := l.store.load(ctx, string(id))
	if err != nil {
		return domain.Handle{}, errs.Asset("load", string(id), err)
	}
	return res.handle, nil
}

// LoadParallel loads every distinct id concurrently. On failure the error is
// a *LoadError naming every failed id and no handle written by this call is
// left in the workspace.
func (l *Loader) LoadParallel(ctx context.Context, ids []domain.AssetID, progress ProgressFunc) (map[domain.AssetID]domain.Handle, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	handles, err := l.store.loadAll(ctx, keys, progress)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.AssetID]domain.Handle, len(handles))
	for k, h := range handles {
		out[domain.AssetID(k)] = h
	}
	l.logger.Debug().Int("count", len(out)).Msg("assets loaded")
	return out, nil
}

// FailedAssets returns the asset ids of a *LoadError in err.
func FailedAssets(err error) []domain.AssetID {
	keys := FailedKeys(err)
	out := make([]domain.AssetID, len(keys))
	for i, k := range keys {
		out[i] = domain.AssetID(k)
	}
	return out
}

type CleanupReport struct {
	Removed int
	Failed  int
	Errors  []error
}

// Cleanup removes the files behind handles and forgets them. Failures are
// logged and counted, never returned.
func (l *Loader) Cleanup(handles map[domain.AssetID]domain.Handle) CleanupReport {
	var report CleanupReport
	keys := make([]string, 0, len(handles))

	for id, h := range handles {
		keys = append(keys, string(id))
		if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			report.Failed++
			report.Errors = append(report.Errors, errs.Cleanup("cleanup", err))
			l.logger.Warn().Err(err).Str("asset", string(id)).Msg("failed to remove loaded asset")
			continue
		}
		report.Removed++
	}

	l.store.forget(keys)
	return report
}
