package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves trade history out of the primary store into cold storage.
type Archiver interface {
	ArchiveTrades(ctx context.Context, trades []TradeRecord) (path string, err error)
}
