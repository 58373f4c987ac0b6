package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
)

// ArchiveImpl implements domain.SampleArchiver by serializing pruned quote
// samples to JSONL and uploading the result to S3-compatible storage.
//
// Deletion of the archived rows from Postgres happens before this is
// called (QuoteStore.PruneSamples returns the rows it deleted); if the
// upload fails, the retention sweep logs the error and keeps the rows out
// of the database anyway rather than blocking on archival succeeding.
type ArchiveImpl struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates a new ArchiveImpl. prefix is prepended to every
// archive key, e.g. "quote-samples/".
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, prefix string) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, audit: audit, prefix: prefix}
}

// ArchiveQuoteSamples serializes samples as newline-delimited JSON and
// uploads them to <prefix><YYYY-MM-DDTHH>-<count>.jsonl, named after the
// bucket hour of the first sample in the batch. It logs the event to the audit trail and returns the
// object's key.
func (a *ArchiveImpl) ArchiveQuoteSamples(ctx context.Context, samples []domain.QuoteSample) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(samples)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive quote samples marshal: %w", err)
	}

	path := archivePath(a.prefix, samples[0].BucketStart, len(samples))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive quote samples upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.quote_samples", map[string]any{
		"path":  path,
		"count": len(samples),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive quote samples audit log: %w", err)
	}

	return path, nil
}

// archivePath builds the S3 key for a quote-sample archive file from the UTC
// date and hour of bucketStart and the number of samples in the file:
//
//	quote-samples/2026-08-02T03-42.jsonl
func archivePath(prefix string, bucketStart time.Time, count int) string {
	return fmt.Sprintf("%s%s-%d.jsonl", prefix, bucketStart.UTC().Format("2006-01-02T15"), count)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON
// (JSONL). Each element is marshalled as a single compact JSON line
// followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
