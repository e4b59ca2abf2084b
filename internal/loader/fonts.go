package loader

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/fontcache"
)

// FontLoader loads font families into the workspace, reading through a
// persistent cache when one is configured.
type FontLoader struct {
	logger zerolog.Logger
	cache  *fontcache.Cache
	store  *store
}

func NewFontLoader(source domain.FontSource, cache *fontcache.Cache, opts Options) *FontLoader {
	logger := opts.Logger.With().Str("component", "fonts").Logger()
	if opts.Listener != nil {
		source = NewNotifyingFontSource(source, opts.Listener)
	}

	f := &FontLoader{logger: logger, cache: cache}
	f.store = newStore(logger, opts.Dir, "font", ".ttf", opts.Concurrency, func(ctx context.Context, family string) ([]byte, error) {
		return f.fetch(ctx, source, family)
	})
	f.store.errKind = "font"
	return f
}

func (f *FontLoader) fetch(ctx context.Context, source domain.FontSource, family string) ([]byte, error) {
	if f.cache != nil {
		data, ok, err := f.cache.Get(ctx, family)
		if err != nil {
			f.logger.Warn().Err(err).Str("family", family).Msg("font cache read failed")
		}
		if ok {
			return data, nil
		}
	}

	data, err := source.FetchFont(ctx, family)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, family, data); err != nil {
			f.logger.Warn().Err(err).Str("family", family).Msg("font cache write failed")
		}
	}
	return data, nil
}

// Load makes every family available as a font file, keyed by family.
func (f *FontLoader) Load(ctx context.Context, families []string, progress ProgressFunc) (map[string]string, error) {
	if f.cache != nil {
		f.cache.MaybeSweep(ctx)
	}

	handles, err := f.store.loadAll(ctx, families, progress)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(handles))
	for family, h := range handles {
		out[family] = h.Path
	}
	return out, nil
}

// Cleanup removes loaded font files. Failures are logged only.
func (f *FontLoader) Cleanup(paths map[string]string) CleanupReport {
	var report CleanupReport
	keys := make([]string, 0, len(paths))
	for family, path := range paths {
		keys = append(keys, family)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			report.Failed++
			report.Errors = append(report.Errors, errs.Cleanup("cleanup", err))
			f.logger.Warn().Err(err).Str("family", family).Msg("failed to remove font file")
			continue
		}
		report.Removed++
	}
	f.store.forget(keys)
	return report
}
