package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// Archiver exports ledger rows older than the retention window to object
// storage as JSONL, then prunes them from the primary store. Rows are only
// deleted after the upload succeeds, so a failed export leaves the ledger
// intact for the next run.
type Archiver struct {
	writer    domain.BlobWriter
	ledger    domain.TradeLedger
	audit     domain.AuditStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver keeping retentionDays of ledger history.
func NewArchiver(
	writer domain.BlobWriter,
	ledger domain.TradeLedger,
	audit domain.AuditStore,
	retentionDays int,
	logger *slog.Logger,
) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Archiver{
		writer:    writer,
		ledger:    ledger,
		audit:     audit,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run archives once immediately and then once per day until the context is
// cancelled. Failures are logged and retried on the next cycle.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "archiver started", slog.Duration("retention", a.retention))

	a.runOnce(ctx)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

func (a *Archiver) runOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.retention)
	count, err := a.ArchiveTrades(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "ledger archive failed", slog.String("error", err.Error()))
		return
	}
	if count > 0 {
		a.logger.InfoContext(ctx, "ledger rows archived",
			slog.Int64("count", count),
			slog.Time("cutoff", cutoff),
		)
	}
}

// ArchiveTrades exports every ledger row with a timestamp before the cutoff
// to archive/trades/<cutoff-date>.jsonl, records the export in the audit
// log, and deletes the exported rows. It returns the number of rows moved.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.ledger.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.ledger.DeleteBefore(ctx, before)
	if err != nil {
		// Upload succeeded but the prune failed; the next run re-exports the
		// same rows to the same key, which is harmless.
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades prune: %w", err)
	}

	if err := a.audit.Log(ctx, "ledger_archived", map[string]any{
		"path":    path,
		"count":   len(trades),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	return deleted, nil
}

// archivePath builds the object key, partitioned by cutoff date:
//
//	archive/trades/2025-08-23.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01-02"))
}

// marshalJSONL serializes records as newline-delimited JSON.
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
