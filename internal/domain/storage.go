package domain

import "context"

// AssetSource resolves an asset id to its raw bytes.
type AssetSource interface {
	Fetch(ctx context.Context, id AssetID) ([]byte, error)
}

// FontSource resolves a font family to font file bytes (TTF/OTF).
type FontSource interface {
	FetchFont(ctx context.Context, family string) ([]byte, error)
}

// Handle addresses a loaded asset inside the engine workspace.
type Handle struct {
	ID   string
	Path string
	Size int64
}
