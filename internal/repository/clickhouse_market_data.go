package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	pkgch "StockVote/pkg/clickhouse"
	applogger "StockVote/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// TableFor expands the {tf} placeholder of a bars table pattern and
// rejects anything that is not a plain [db.]table identifier.
func TableFor(pattern string, tf domrepo.Timeframe) (string, error) {
	table := strings.ReplaceAll(pattern, "{tf}", string(tf))
	if !identRe.MatchString(table) {
		return "", fmt.Errorf("invalid bars table %q", table)
	}
	return table, nil
}

// CHMarketData reads price bars from ClickHouse.
type CHMarketData struct {
	db      *sql.DB
	table   string
	l       *applogger.Logger
	metrics domrepo.Metrics
}

// NewCHMarketData builds a provider over the given bars table.
func NewCHMarketData(ch *pkgch.Client, table string, l *applogger.Logger) *CHMarketData {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHMarketData{db: ch.DB(), table: table, l: l}
}

// SetMetrics attaches a latency recorder.
func (s *CHMarketData) SetMetrics(m domrepo.Metrics) { s.metrics = m }

// FetchSeries returns the bars of one instrument within [from, to].
// Zero rows is ErrNotFound; any query fault is ErrUnavailable.
func (s *CHMarketData) FetchSeries(ctx context.Context, instrumentID string, from, to time.Time) (models.PriceSeries, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, volume, amount
        FROM %s
        WHERE code = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
        LIMIT 1 BY ts
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), instrumentID, from, to)
	if err != nil {
		s.l.Error("clickhouse fetch_series query error",
			applogger.String("table", s.table),
			applogger.String("instrument", instrumentID),
			applogger.Error(err),
		)
		return models.PriceSeries{}, fmt.Errorf("fetch %s: %w: %w", instrumentID, domrepo.ErrUnavailable, err)
	}
	defer rows.Close()

	bars := make([]models.PriceBar, 0, 1024)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount); err != nil {
			return models.PriceSeries{}, fmt.Errorf("scan bar %s: %w: %w", instrumentID, domrepo.ErrUnavailable, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return models.PriceSeries{}, fmt.Errorf("rows %s: %w: %w", instrumentID, domrepo.ErrUnavailable, err)
	}
	if len(bars) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%s between %s and %s: %w",
			instrumentID, from.Format(time.DateTime), to.Format(time.DateTime), domrepo.ErrNotFound)
	}

	series, err := models.NewPriceSeries(instrumentID, bars)
	if err != nil {
		return models.PriceSeries{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("fetch_series", time.Since(start).Seconds())
	}
	s.l.Debug("clickhouse fetch_series ok",
		applogger.String("instrument", instrumentID),
		applogger.Int("rows", series.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return series, nil
}

// CHUniverse ranks instruments by traded value over a trailing window.
type CHUniverse struct {
	db     *sql.DB
	table  string
	window time.Duration
	now    func() time.Time
	l      *applogger.Logger
}

func NewCHUniverse(ch *pkgch.Client, table string, window time.Duration, l *applogger.Logger) *CHUniverse {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHUniverse{db: ch.DB(), table: table, window: window, now: time.Now, l: l}
}

func (u *CHUniverse) ListInstruments(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	const qtpl = `
        SELECT code
        FROM %s
        WHERE ts >= ?
        GROUP BY code
        ORDER BY sum(amount) DESC, code ASC
        LIMIT ?
    `
	since := u.now().Add(-u.window)
	rows, err := u.db.QueryContext(ctx, fmt.Sprintf(qtpl, u.table), since, limit)
	if err != nil {
		u.l.Error("clickhouse universe query error", applogger.String("table", u.table), applogger.Error(err))
		return nil, fmt.Errorf("list instruments: %w: %w", domrepo.ErrUnavailable, err)
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	u.l.Info("clickhouse universe loaded",
		applogger.Int("limit", limit),
		applogger.Int("instruments", len(out)),
		applogger.Duration("window_ms", u.window),
	)
	return out, nil
}
