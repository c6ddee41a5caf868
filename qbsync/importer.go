package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
)

const (
	importPageSize  = 1000
	importChunkSize = 250
	importRetries   = 3
)

// DateRange optionally narrows a full import of a transactional kind to a
// TxnDate window. Either bound may be zero.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r *DateRange) empty() bool {
	return r == nil || (r.From.IsZero() && r.To.IsZero())
}

type ImportResult struct {
	EntityType  string        `json:"entity_type"`
	RemoteTotal int           `json:"remote_total"`
	Imported    int           `json:"imported"`
	Errors      int           `json:"errors"`
	Elapsed     time.Duration `json:"elapsed"`
	PerSecond   float64       `json:"per_second"`
}

// remoteQuerier is the slice of Client the importer and verifier use.
type remoteQuerier interface {
	Query(ctx context.Context, realmID string, query string) ([]byte, error)
}

// Importer performs the full historical sync for one entity type at a time.
// It exists for first connection and backfill; the incremental path never
// uses it. Pages run sequentially so memory holds one page at a time and the
// rate limiter's budget is respected.
type Importer struct {
	client remoteQuerier
	store  entityStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewImporter(client remoteQuerier, db func() *gorm.DB, logger *logrus.Logger) *Importer {
	return &Importer{client: client, store: &gormEntityStore{db: db}, logger: logger, now: time.Now}
}

// queryResponseEnvelope is the /query response shape; the entity array key
// is the type name, so the inner object stays raw.
type queryResponseEnvelope struct {
	QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
}

// ImportEntityType pulls every remote record of one kind and upserts it
// locally in sub-chunks.
func (im *Importer) ImportEntityType(ctx context.Context, realmID string, entityType string, dateRange *DateRange) (ImportResult, error) {
	started := im.now()
	result := ImportResult{EntityType: entityType}
	reg, err := lookupEntityType(entityType)
	if err != nil {
		return result, err
	}
	if !reg.Transactional {
		dateRange = nil
	}

	total, err := im.remoteCount(ctx, realmID, entityType, dateRange)
	if err != nil {
		return result, err
	}
	result.RemoteTotal = total

	for _, page := range planPages(total, importPageSize) {
		rows, err := im.fetchPage(ctx, realmID, entityType, dateRange, page)
		if err != nil {
			return result, err
		}
		imported, errored := im.upsertPage(ctx, realmID, entityType, rows)
		result.Imported += imported
		result.Errors += errored
		im.logger.WithFields(logrus.Fields{
			"realm_id":    realmID,
			"entity_type": entityType,
			"start":       page.Start,
			"fetched":     len(rows),
			"imported":    result.Imported,
		}).Info("import page complete")
	}

	result.Elapsed = im.now().Sub(started)
	if secs := result.Elapsed.Seconds(); secs > 0 {
		result.PerSecond = float64(result.Imported) / secs
	}
	return result, nil
}

func (im *Importer) remoteCount(ctx context.Context, realmID string, entityType string, dateRange *DateRange) (int, error) {
	body, err := im.client.Query(ctx, realmID, countQuery(entityType, dateRange))
	if err != nil {
		return 0, err
	}
	var envelope struct {
		QueryResponse struct {
			TotalCount int `json:"totalCount"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0, err
	}
	return envelope.QueryResponse.TotalCount, nil
}

func (im *Importer) fetchPage(ctx context.Context, realmID string, entityType string, dateRange *DateRange, page pageDescriptor) ([]json.RawMessage, error) {
	body, err := im.client.Query(ctx, realmID, selectQuery(entityType, dateRange, page))
	if err != nil {
		return nil, err
	}
	var envelope queryResponseEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope.QueryResponse[entityType]
	if !ok {
		return nil, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// upsertPage normalizes the page and writes it in sub-chunks, one batched
// upsert per chunk. A normalization failure skips that row only; a chunk
// write failure after retries counts the whole chunk as errored and the page
// continues with the next chunk.
func (im *Importer) upsertPage(ctx context.Context, realmID string, entityType string, rows []json.RawMessage) (imported int, errored int) {
	normalized := make([]any, 0, len(rows))
	for _, raw := range rows {
		row, err := NormalizeAt(entityType, raw, realmID, im.now())
		if err != nil {
			errored++
			config.LogError(im.logger, "qbsync", "upsertPage", "normalize "+entityType, realmID, err)
			continue
		}
		normalized = append(normalized, row)
	}

	for start := 0; start < len(normalized); start += importChunkSize {
		end := start + importChunkSize
		if end > len(normalized) {
			end = len(normalized)
		}
		chunk := normalized[start:end]
		if err := im.upsertChunkWithRetry(ctx, entityType, chunk); err != nil {
			errored += len(chunk)
			config.LogError(im.logger, "qbsync", "upsertPage", "upsert "+entityType, realmID, err)
			continue
		}
		imported += len(chunk)
	}
	return imported, errored
}

// upsertChunkWithRetry retries the batched write on transient network
// failures only; a constraint violation would fail identically every time
// and is surfaced immediately.
func (im *Importer) upsertChunkWithRetry(ctx context.Context, entityType string, chunk []any) error {
	var lastErr error
	for attempt := 0; attempt < importRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = im.store.UpsertBatch(ctx, entityType, chunk)
		if lastErr == nil {
			return nil
		}
		if !isTransientNetError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

type pageDescriptor struct {
	Start int // 1-based STARTPOSITION
	Size  int
}

// planPages covers [1, total] with fixed-size pages.
func planPages(total int, pageSize int) []pageDescriptor {
	if total <= 0 || pageSize <= 0 {
		return nil
	}
	pages := make([]pageDescriptor, 0, (total+pageSize-1)/pageSize)
	for start := 1; start <= total; start += pageSize {
		size := pageSize
		if remaining := total - start + 1; remaining < size {
			size = remaining
		}
		pages = append(pages, pageDescriptor{Start: start, Size: size})
	}
	return pages
}

func countQuery(entityType string, dateRange *DateRange) string {
	return "SELECT COUNT(*) FROM " + entityType + dateRangeClause(dateRange)
}

func selectQuery(entityType string, dateRange *DateRange, page pageDescriptor) string {
	return fmt.Sprintf("SELECT * FROM %s%s STARTPOSITION %d MAXRESULTS %d",
		entityType, dateRangeClause(dateRange), page.Start, page.Size)
}

func dateRangeClause(dateRange *DateRange) string {
	if dateRange.empty() {
		return ""
	}
	var conds []string
	if !dateRange.From.IsZero() {
		conds = append(conds, fmt.Sprintf("TxnDate >= '%s'", dateRange.From.Format("2006-01-02")))
	}
	if !dateRange.To.IsZero() {
		conds = append(conds, fmt.Sprintf("TxnDate <= '%s'", dateRange.To.Format("2006-01-02")))
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "broken pipe")
}
