package extractor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/domain/ingest"
	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

// Page is one offset/limit window of the source query. A failed page carries
// no records; the failure itself is already in the tracker.
type Page struct {
	BatchNum int
	Offset   int
	Limit    int
	Records  []ingest.SourceRecord
	Columns  []string
	Failed   bool
	Err      error
}

// RecordIDs returns the sort-key value of every record on the page.
func (p Page) RecordIDs(idColumn string) []string {
	out := make([]string, 0, len(p.Records))
	for _, r := range p.Records {
		if v, ok := r[idColumn]; ok && v != nil {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

type Extractor struct {
	DB      *gorm.DB
	Query   graphmodel.QuerySpec
	Limit   int
	Tracker *failures.Tracker
	Metrics *runmetrics.State
	Log     *logger.Logger
}

func New(db *gorm.DB, q graphmodel.QuerySpec, limit int, tracker *failures.Tracker, metrics *runmetrics.State, log *logger.Logger) (*Extractor, error) {
	if db == nil {
		return nil, fmt.Errorf("extractor: db required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("extractor: batch size must be positive, got %d", limit)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{
		DB:      db,
		Query:   q,
		Limit:   limit,
		Tracker: tracker,
		Metrics: metrics,
		Log:     log.With("component", "Extractor", "query", q.Name),
	}, nil
}

func (e *Extractor) pageSQL() string {
	return fmt.Sprintf("SELECT * FROM (%s) AS src ORDER BY %s LIMIT ? OFFSET ?",
		e.Query.SQL, pgx.Identifier{e.Query.SortKey}.Sanitize())
}

// Count returns the number of rows the query yields.
func (e *Extractor) Count(ctx context.Context) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS src", e.Query.SQL)
	if err := e.DB.WithContext(ctx).Raw(q).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("extractor: count %s: %w", e.Query.Name, err)
	}
	return n, nil
}

// Fetch reads page batchNum (0-based). Errors never escape: they are tracked
// as a BatchFailure and an empty, failed page is returned.
func (e *Extractor) Fetch(ctx context.Context, batchNum int) Page {
	p := Page{BatchNum: batchNum, Offset: batchNum * e.Limit, Limit: e.Limit}

	records, cols, err := e.fetch(ctx, p.Offset)
	if err != nil {
		p.Failed = true
		p.Err = err
		partial := Page{Records: records}
		e.Tracker.AddBatch(failures.BatchFailure{
			BatchNum:  p.BatchNum,
			Offset:    p.Offset,
			Limit:     p.Limit,
			Error:     err.Error(),
			RecordIDs: partial.RecordIDs(e.Query.SortKey),
		})
		e.Log.Warn("batch fetch failed", "batch", batchNum, "offset", p.Offset, "error", err)
		return p
	}
	p.Records = records
	p.Columns = cols
	if e.Metrics != nil {
		e.Metrics.PagePulled(len(records))
	}
	e.Log.Debug("batch fetched", "batch", batchNum, "offset", p.Offset, "rows", len(records))
	return p
}

func (e *Extractor) fetch(ctx context.Context, offset int) ([]ingest.SourceRecord, []string, error) {
	rows, err := e.DB.WithContext(ctx).Raw(e.pageSQL(), e.Limit, offset).Rows()
	if err != nil {
		return nil, nil, fmt.Errorf("query page: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]ingest.SourceRecord, []string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}
	dbTypes := make([]string, len(cols))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			dbTypes[i] = ct.DatabaseTypeName()
		}
	}

	var out []ingest.SourceRecord
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			if isJSONType(dbTypes[i]) {
				cell := &jsonCell{}
				vals[i], ptrs[i] = cell, cell
				continue
			}
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return out, cols, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		rec := make(ingest.SourceRecord, len(cols))
		for i, c := range cols {
			rec[c] = normalizeValue(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return out, cols, fmt.Errorf("iterate rows: %w", err)
	}
	return out, cols, nil
}
