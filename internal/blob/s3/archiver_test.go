package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

type fakeWriter struct {
	paths  []string
	bodies []string
	err    error
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, _ := io.ReadAll(data)
	f.paths = append(f.paths, path)
	f.bodies = append(f.bodies, string(body))
	return nil
}

type fakeLedger struct {
	trades  []domain.Trade
	deleted int64
	listErr error
	delErr  error
}

func (f *fakeLedger) Insert(ctx context.Context, trade domain.Trade) (int64, error) { return 0, nil }
func (f *fakeLedger) SumSince(ctx context.Context, since time.Time) (domain.DailyUsage, error) {
	return domain.DailyUsage{}, nil
}
func (f *fakeLedger) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}
func (f *fakeLedger) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	return false, nil
}
func (f *fakeLedger) HasOrderID(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}
func (f *fakeLedger) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return f.trades, f.listErr
}
func (f *fakeLedger) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if f.delErr != nil {
		return 0, f.delErr
	}
	f.deleted = int64(len(f.trades))
	return f.deleted, nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveTradesExportsAndPrunes(t *testing.T) {
	writer := &fakeWriter{}
	ledger := &fakeLedger{trades: []domain.Trade{
		{ID: 1, TokenID: "tok-1", AmountUSD: 50},
		{ID: 2, TokenID: "tok-2", AmountUSD: 25},
	}}
	audit := &fakeAudit{}
	a := NewArchiver(writer, ledger, audit, 90, quietLogger())

	cutoff := time.Date(2025, 8, 23, 0, 0, 0, 0, time.UTC)
	moved, err := a.ArchiveTrades(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2", moved)
	}
	if len(writer.paths) != 1 || writer.paths[0] != "archive/trades/2025-08-23.jsonl" {
		t.Errorf("paths = %v", writer.paths)
	}
	if lines := strings.Count(strings.TrimSpace(writer.bodies[0]), "\n") + 1; lines != 2 {
		t.Errorf("jsonl lines = %d, want 2", lines)
	}
	if len(audit.events) != 1 || audit.events[0] != "ledger_archived" {
		t.Errorf("audit events = %v", audit.events)
	}
}

func TestArchiveTradesEmptyLedgerIsNoOp(t *testing.T) {
	writer := &fakeWriter{}
	ledger := &fakeLedger{}
	a := NewArchiver(writer, ledger, &fakeAudit{}, 90, quietLogger())

	moved, err := a.ArchiveTrades(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if moved != 0 || len(writer.paths) != 0 {
		t.Errorf("moved=%d paths=%v, want no export", moved, writer.paths)
	}
}

func TestArchiveTradesUploadFailureKeepsRows(t *testing.T) {
	writer := &fakeWriter{err: errors.New("bucket gone")}
	ledger := &fakeLedger{trades: []domain.Trade{{ID: 1}}}
	a := NewArchiver(writer, ledger, &fakeAudit{}, 90, quietLogger())

	_, err := a.ArchiveTrades(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if ledger.deleted != 0 {
		t.Error("rows must not be deleted when the upload fails")
	}
}
