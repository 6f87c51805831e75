package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	pkgch "SignalDesk/pkg/clickhouse"
	applogger "SignalDesk/pkg/logger"

	"github.com/shopspring/decimal"
)

const historyTable = "signal_history"

// HistorySchema creates the history table. Prices are kept as strings so
// the exact decimal survives without a Decimal64 scale choice.
var HistorySchema = []string{`
	CREATE TABLE IF NOT EXISTS signal_history (
		evaluated_at    DateTime64(3, 'UTC'),
		symbol          LowCardinality(String),
		name            String,
		market          LowCardinality(String),
		source          LowCardinality(String),
		interval        LowCardinality(String),
		direction       LowCardinality(String),
		prev_direction  LowCardinality(String),
		strength        UInt8,
		score           Int8,
		price           String,
		entry           Nullable(String),
		stop_loss       Nullable(String),
		take_profit     Nullable(String),
		reasons         Array(String),
		fresh_cross     Bool,
		rejected_reason String,
		alerted         Bool,
		snapshot        String
	) ENGINE = MergeTree
	ORDER BY (symbol, evaluated_at)`,
}

var historyColumns = []string{
	"evaluated_at", "symbol", "name", "market", "source", "interval",
	"direction", "prev_direction", "strength", "score", "price",
	"entry", "stop_loss", "take_profit", "reasons", "fresh_cross",
	"rejected_reason", "alerted", "snapshot",
}

// CHHistory stores evaluations in ClickHouse.
type CHHistory struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHHistory(ch *pkgch.Client, l *applogger.Logger) *CHHistory {
	return &CHHistory{ch: ch, db: ch.DB(), l: l}
}

// Init creates the table if missing.
func (s *CHHistory) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, HistorySchema)
}

func (s *CHHistory) Append(ctx context.Context, ev models.Evaluation) error {
	return s.AppendBatch(ctx, []models.Evaluation{ev})
}

func (s *CHHistory) AppendBatch(ctx context.Context, evs []models.Evaluation) error {
	rows := make([][]any, 0, len(evs))
	for _, ev := range evs {
		row, err := historyRow(ev)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	q := fmt.Sprintf("INSERT INTO %s (%s)", historyTable, strings.Join(historyColumns, ", "))
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		s.l.Error("clickhouse history insert error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *CHHistory) Recent(ctx context.Context, f models.HistoryFilter) ([]models.Evaluation, error) {
	start := time.Now()

	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if !f.Since.IsZero() {
		where = append(where, "evaluated_at >= ?")
		args = append(args, f.Since.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(historyColumns, ", "), historyTable)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY evaluated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse history query error", applogger.String("symbol", f.Symbol), applogger.Error(err))
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]models.Evaluation, 0, limit)
	for rows.Next() {
		var r historyRecord
		if err := rows.Scan(&r.EvaluatedAt, &r.Symbol, &r.Name, &r.Market, &r.Source, &r.Interval,
			&r.Direction, &r.PrevDirection, &r.Strength, &r.Score, &r.Price,
			&r.Entry, &r.StopLoss, &r.TakeProfit, &r.Reasons, &r.FreshCross,
			&r.RejectedReason, &r.Alerted, &r.Snapshot); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		ev, err := r.evaluation()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse history read ok",
		applogger.String("symbol", f.Symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *CHHistory) Close() error { return nil }

type historyRecord struct {
	EvaluatedAt    time.Time
	Symbol         string
	Name           string
	Market         string
	Source         string
	Interval       string
	Direction      string
	PrevDirection  string
	Strength       uint8
	Score          int8
	Price          string
	Entry          sql.NullString
	StopLoss       sql.NullString
	TakeProfit     sql.NullString
	Reasons        []string
	FreshCross     bool
	RejectedReason string
	Alerted        bool
	Snapshot       string
}

func historyRow(ev models.Evaluation) ([]any, error) {
	snap, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	res := ev.Result
	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return []any{
		ev.EvaluatedAt.UTC(),
		ev.Instrument.Symbol,
		ev.Instrument.Name,
		string(ev.Instrument.Market),
		string(ev.Instrument.Source),
		ev.Instrument.Interval,
		string(res.Direction),
		string(ev.PrevDirection),
		uint8(res.Strength),
		int8(res.Score),
		ev.Snapshot.Price.String(),
		nullDecimal(res.Entry),
		nullDecimal(res.StopLoss),
		nullDecimal(res.TakeProfit),
		reasons,
		res.FreshCross,
		res.RejectedReason,
		ev.Alerted,
		string(snap),
	}, nil
}

func nullDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func (r historyRecord) evaluation() (models.Evaluation, error) {
	ev := models.Evaluation{
		Instrument: models.Instrument{
			Symbol:   r.Symbol,
			Name:     r.Name,
			Market:   models.MarketClass(r.Market),
			Source:   models.Source(r.Source),
			Interval: r.Interval,
		},
		Result: models.SignalResult{
			Direction:      models.Direction(r.Direction),
			Strength:       int(r.Strength),
			Score:          int(r.Score),
			Reasons:        r.Reasons,
			FreshCross:     r.FreshCross,
			RejectedReason: r.RejectedReason,
		},
		PrevDirection: models.Direction(r.PrevDirection),
		EvaluatedAt:   r.EvaluatedAt.UTC(),
		Alerted:       r.Alerted,
	}
	if r.Snapshot != "" {
		if err := json.Unmarshal([]byte(r.Snapshot), &ev.Snapshot); err != nil {
			return models.Evaluation{}, fmt.Errorf("decode snapshot of %s: %w", r.Symbol, err)
		}
	}

	var err error
	if ev.Result.Entry, err = parseNullDecimal(r.Entry); err != nil {
		return models.Evaluation{}, err
	}
	if ev.Result.StopLoss, err = parseNullDecimal(r.StopLoss); err != nil {
		return models.Evaluation{}, err
	}
	if ev.Result.TakeProfit, err = parseNullDecimal(r.TakeProfit); err != nil {
		return models.Evaluation{}, err
	}
	return ev, nil
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse level %q: %w", s.String, err)
	}
	return &d, nil
}
