package loader

import (
	"context"
	"fmt"

	"github.com/eleven-am/montage/internal/domain"
)

// FetchStatus reports the outcome of one fetch from an external source.
type FetchStatus struct {
	Key   string
	Size  int
	Error string
}

type Listener interface {
	Fetched(ctx context.Context, status FetchStatus)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, status FetchStatus)

func (f ListenerFunc) Fetched(ctx context.Context, status FetchStatus) { f(ctx, status) }

// NotifyingSource decorates an AssetSource and reports every fetch.
type NotifyingSource struct {
	source   domain.AssetSource
	listener Listener
}

func NewNotifyingSource(source domain.AssetSource, listener Listener) *NotifyingSource {
	return &NotifyingSource{
		source:   source,
		listener: listener,
	}
}

func (s *NotifyingSource) Fetch(ctx context.Context, id domain.AssetID) ([]byte, error) {
	data, err := s.source.Fetch(ctx, id)
	if err != nil {
		s.listener.Fetched(ctx, FetchStatus{Key: string(id), Error: err.Error()})
		return nil, fmt.Errorf("fetch asset: %w", err)
	}

	s.listener.Fetched(ctx, FetchStatus{Key: string(id), Size: len(data)})
	return data, nil
}

// NotifyingFontSource is NotifyingSource for fonts.
type NotifyingFontSource struct {
	source   domain.FontSource
	listener Listener
}

func NewNotifyingFontSource(source domain.FontSource, listener Listener) *NotifyingFontSource {
	return &NotifyingFontSource{
		source:   source,
		listener: listener,
	}
}

func (s *NotifyingFontSource) FetchFont(ctx context.Context, family string) ([]byte, error) {
	data, err := s.source.FetchFont(ctx, family)
	if err != nil {
		s.listener.Fetched(ctx, FetchStatus{Key: family, Error: err.Error()})
		return nil, fmt.Errorf("fetch font: %w", err)
	}

	s.listener.Fetched(ctx, FetchStatus{Key: family, Size: len(data)})
	return data, nil
}
