package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/service"
	pkgch "QuantLens/pkg/clickhouse"
	"QuantLens/pkg/logger"
)

const insertChunkSize = 2000

// DailyPricesDDL creates the close-price table used by CHPriceStore.
func DailyPricesDDL(database, table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            symbol      LowCardinality(String),
            date        Date,
            close       Float64,
            source      LowCardinality(String),
            inserted_at DateTime DEFAULT now()
        )
        ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (symbol, date)`, database, table)
}

// CHPriceStore reads and writes daily closes in ClickHouse.
type CHPriceStore struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

func NewCHPriceStore(ch *pkgch.Client, table string, log *logger.Logger) *CHPriceStore {
	if log == nil {
		log = logger.Nop()
	}
	return &CHPriceStore{
		db:    ch.DB(),
		table: ch.Database() + "." + table,
		log:   log.With(logger.String("table", table)),
	}
}

func (s *CHPriceStore) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (models.RawSeries, error) {
	if len(symbols) == 0 {
		return models.RawSeries{}, nil
	}
	began := time.Now()
	q, args := selectPricesQuery(s.table, symbols, start, end)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.log.Error("clickhouse fetch_prices query error", logger.Error(err))
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer rows.Close()

	out := make(models.RawSeries, len(symbols))
	n := 0
	for rows.Next() {
		var (
			sym string
			p   models.PricePoint
		)
		if err := rows.Scan(&sym, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out[sym] = append(out[sym], p)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.log.Debug("clickhouse fetch_prices ok",
		logger.Int("symbols", len(out)),
		logger.Int("rows", n),
		logger.Duration("duration_ms", time.Since(began)),
	)
	return out, nil
}

// Store upserts closes for every symbol in raw, chunked into multi-row inserts.
func (s *CHPriceStore) Store(ctx context.Context, raw models.RawSeries, source string) error {
	rows := flattenSeries(raw)
	for startIdx := 0; startIdx < len(rows); startIdx += insertChunkSize {
		chunk := rows[startIdx:min(startIdx+insertChunkSize, len(rows))]
		q, args := insertPricesQuery(s.table, chunk, source)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store prices: %w", err)
		}
	}
	return nil
}

type priceRow struct {
	symbol string
	models.PricePoint
}

func flattenSeries(raw models.RawSeries) []priceRow {
	var rows []priceRow
	for sym, points := range raw {
		for _, p := range points {
			rows = append(rows, priceRow{symbol: sym, PricePoint: p})
		}
	}
	return rows
}

func selectPricesQuery(table string, symbols []string, start, end time.Time) (string, []interface{}) {
	var b strings.Builder
	args := make([]interface{}, 0, len(symbols)+2)
	fmt.Fprintf(&b, "SELECT symbol, date, argMax(close, inserted_at) AS close FROM %s WHERE symbol IN (%s)",
		table, placeholders(len(symbols)))
	for _, sym := range symbols {
		args = append(args, sym)
	}
	if !start.IsZero() {
		b.WriteString(" AND date >= ?")
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		b.WriteString(" AND date <= ?")
		args = append(args, end.UTC())
	}
	b.WriteString(" GROUP BY symbol, date ORDER BY symbol, date")
	return b.String(), args
}

func insertPricesQuery(table string, rows []priceRow, source string) (string, []interface{}) {
	values := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	for i, r := range rows {
		values[i] = "(?, ?, ?, ?)"
		args = append(args, r.symbol, r.Date.UTC(), r.Close, source)
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, date, close, source) VALUES %s", table, strings.Join(values, ","))
	return q, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// ArchivingPriceFetcher serves prices from a primary fetcher and copies what
// it returns into the store. Archive failures are logged, never returned.
type ArchivingPriceFetcher struct {
	primary service.PriceFetcher
	store   priceArchive
	source  string
	log     *logger.Logger
}

type priceArchive interface {
	Store(ctx context.Context, raw models.RawSeries, source string) error
}

func NewArchivingPriceFetcher(primary service.PriceFetcher, store priceArchive, source string, log *logger.Logger) *ArchivingPriceFetcher {
	if log == nil {
		log = logger.Nop()
	}
	return &ArchivingPriceFetcher{primary: primary, store: store, source: source, log: log}
}

func (f *ArchivingPriceFetcher) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (models.RawSeries, error) {
	raw, err := f.primary.FetchPrices(ctx, symbols, start, end)
	if err != nil {
		return nil, err
	}
	if err := f.store.Store(ctx, raw, f.source); err != nil {
		f.log.Warn("archiving prices failed", logger.Error(err))
	}
	return raw, nil
}

var (
	_ service.PriceFetcher = (*CHPriceStore)(nil)
	_ service.PriceFetcher = (*ArchivingPriceFetcher)(nil)
)
