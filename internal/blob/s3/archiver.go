package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// Archiver implements domain.Archiver by writing trade batches as JSONL
// objects. Deleting the archived rows is left to the caller, after the
// upload has succeeded.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	newID  func() string
}

// NewArchiver creates an Archiver writing under prefix (default "archive").
func NewArchiver(writer domain.BlobWriter, prefix string) *Archiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{writer: writer, prefix: prefix, newID: domain.NewID}
}

// ArchiveTrades uploads trades, oldest first, to
// {prefix}/trades/YYYY-MM/{id}.jsonl partitioned by the oldest close time,
// and returns the object path.
func (a *Archiver) ArchiveTrades(ctx context.Context, trades []domain.TradeRecord) (string, error) {
	if len(trades) == 0 {
		return "", errors.New("s3blob: archive trades: empty batch")
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	key := path.Join(a.prefix, "trades", trades[0].ClosedAt.UTC().Format("2006-01"), a.newID()+".jsonl")
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return "", fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	return key, nil
}

// marshalJSONL encodes one JSON document per line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
