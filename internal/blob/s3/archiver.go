package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only needs
// the time-ranged query methods it actually calls, not the full domain store
// interfaces. The Postgres stores satisfy these implicitly.

// PositionArchiveStore provides read access to closed positions for archival.
type PositionArchiveStore interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// OrderArchiveStore provides read access to filled orders for archival.
type OrderArchiveStore interface {
	ListFilledBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// RiskEventArchiveStore provides read access to risk events for archival.
type RiskEventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.RiskEvent, error)
}

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	positions  PositionArchiveStore
	orders     OrderArchiveStore
	riskEvents RiskEventArchiveStore
	audit      domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	positions PositionArchiveStore,
	orders OrderArchiveStore,
	riskEvents RiskEventArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		positions:  positions,
		orders:     orders,
		riskEvents: riskEvents,
		audit:      audit,
	}
}

// ArchivePositions queries all positions closed before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/positions/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	count := int64(len(positions))

	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}

	return count, nil
}

// ArchiveOrders queries all orders filled before the cutoff, serializes them
// to JSONL, and uploads the file to S3 at archive/orders/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListFilledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	path := archivePath("orders", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	count := int64(len(orders))

	if err := a.audit.Log(ctx, "archive.orders", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive orders audit log: %w", err)
	}

	return count, nil
}

// ArchiveRiskEvents queries all risk events recorded before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/risk_events/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveRiskEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.riskEvents.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive risk events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive risk events marshal: %w", err)
	}

	path := archivePath("risk_events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive risk events upload: %w", err)
	}

	count := int64(len(events))

	if err := a.audit.Log(ctx, "archive.risk_events", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive risk events audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/positions/2025-01.jsonl
//	archive/orders/2025-01.jsonl
//	archive/risk_events/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
