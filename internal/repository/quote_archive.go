package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/internal/domain/repository"
	pkgch "FinFeed/pkg/clickhouse"
	applogger "FinFeed/pkg/logger"
)

const insertChunk = 2000

// ClickHouseArchive implements QuoteArchive for ClickHouse.
type ClickHouseArchive struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

// NewClickHouseArchive creates a quote archive writing to database.table.
func NewClickHouseArchive(client *pkgch.Client, database, table string, l *applogger.Logger) repository.QuoteArchive {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseArchive{client: client, db: client.DB(), table: database + "." + table, l: l}
}

func (s *ClickHouseArchive) Store(ctx context.Context, q *models.Quote) error {
	return s.StoreBatch(ctx, []*models.Quote{q})
}

func (s *ClickHouseArchive) StoreBatch(ctx context.Context, quotes []*models.Quote) error {
	for start := 0; start < len(quotes); start += insertChunk {
		end := min(start+insertChunk, len(quotes))
		stmt, args := buildInsert(s.table, quotes[start:end])
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			s.l.Error("clickhouse insert quotes failed",
				applogger.String("table", s.table),
				applogger.Int("rows", len(args)/7),
				applogger.Error(err),
			)
			return fmt.Errorf("insert quotes: %w", err)
		}
	}
	return nil
}

// buildInsert renders a multi-row insert, skipping quotes without symbol or timestamp.
func buildInsert(table string, quotes []*models.Quote) (string, []any) {
	values := make([]string, 0, len(quotes))
	args := make([]any, 0, len(quotes)*7)
	for _, q := range quotes {
		if q == nil || q.Symbol == "" || q.Timestamp.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, q.Timestamp.UTC(), q.Symbol, q.Price, q.Change, q.ChangePercent, q.Volume, q.Source)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (ts, symbol, price, change, change_percent, volume, source) VALUES %s",
		table, strings.Join(values, ",")), args
}

// Query returns archived quotes for symbol in [from, to], newest first.
func (s *ClickHouseArchive) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Quote, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, price, change, change_percent, volume, source
FROM %s FINAL
WHERE symbol = ? AND ts >= ? AND ts <= ?
ORDER BY ts DESC
LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Quote, 0, limit)
	for rows.Next() {
		var qt models.Quote
		if err := rows.Scan(&qt.Symbol, &qt.Timestamp, &qt.Price, &qt.Change, &qt.ChangePercent, &qt.Volume, &qt.Source); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, &qt)
	}
	return out, rows.Err()
}

func (s *ClickHouseArchive) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseArchive) Close() error {
	return s.client.Close()
}
