package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/middleware"
	"SignalDesk/internal/services/signal"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/util"

	"github.com/go-playground/validator/v10"
)

// SnapshotProcessor is the ingestion pipeline the handler feeds.
type SnapshotProcessor interface {
	Process(ctx context.Context, in models.Instrument, s models.IndicatorSnapshot) error
}

// KafkaSnapshotsHandler evaluates snapshots published by external indicator
// producers. Malformed and out-of-range snapshots are permanent failures, so
// the consumer sends them to the DLQ without retrying.
type KafkaSnapshotsHandler struct {
	topic       string
	proc        SnapshotProcessor
	instruments map[string]models.Instrument
	validate    *validator.Validate
	metrics     domrepo.Metrics
}

// NewKafkaSnapshotsHandler takes the configured instruments so snapshots of a
// known symbol keep its name, source and interval.
func NewKafkaSnapshotsHandler(topic string, proc SnapshotProcessor, known []models.Instrument, metrics domrepo.Metrics) *KafkaSnapshotsHandler {
	byName := make(map[string]models.Instrument, len(known))
	for _, in := range known {
		byName[in.Symbol] = in
	}
	return &KafkaSnapshotsHandler{
		topic:       topic,
		proc:        proc,
		instruments: byName,
		validate:    validator.New(),
		metrics:     metrics,
	}
}

func (h *KafkaSnapshotsHandler) Topic() string { return h.topic }

func (h *KafkaSnapshotsHandler) Handle(ctx context.Context, b []byte) error {
	var msg models.SnapshotMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode snapshot message: %w", err))
	}
	if err := h.validate.StructCtx(ctx, msg); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("snapshot message: %w", err))
	}

	in, err := h.instrument(msg)
	if err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(err)
	}
	snap, err := msg.Snapshot.Decode()
	if err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("snapshot %s: %w", in.Symbol, err))
	}
	snap.Instrument = in.Symbol
	snap.Market = in.Market
	if t, ok := util.ParseTime(msg.At); ok {
		snap.At = t
	}

	err = h.proc.Process(ctx, in, snap)
	switch {
	case err == nil, errors.Is(err, middleware.ErrThrottled):
		return nil
	case errors.Is(err, signal.ErrInvalidSnapshot), errors.Is(err, signal.ErrUnknownMarket):
		return pkgkafka.Permanent(err)
	}
	return err
}

func (h *KafkaSnapshotsHandler) instrument(msg models.SnapshotMessage) (models.Instrument, error) {
	market, err := models.ParseMarketClass(msg.Market)
	if err != nil {
		return models.Instrument{}, err
	}
	symbol := strings.TrimSpace(msg.Instrument)
	if in, ok := h.instruments[symbol]; ok {
		in.Market = market
		return in, nil
	}
	return models.Instrument{Symbol: symbol, Market: market}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaSnapshotsHandler)(nil)
