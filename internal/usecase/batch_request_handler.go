package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"StockVote/internal/strategy"
	pkgkafka "StockVote/pkg/kafka"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/util"
)

// BatchStarter starts batches. Implemented by BatchEngine.
type BatchStarter interface {
	Start(ctx context.Context, req BatchRequest) (*BatchHandle, error)
}

// BatchRequestMessage is the JSON payload of a queued batch request.
type BatchRequestMessage struct {
	Name        string   `json:"name"`
	Instruments []string `json:"instruments"`
	Limit       int      `json:"limit"`
	Strategies  []string `json:"strategies"`
	Concurrency int      `json:"concurrency"`
	Days        int      `json:"days"`
}

// BatchRequestHandler starts a batch for every message of its topic.
type BatchRequestHandler struct {
	topic   string
	starter BatchStarter
	logger  *applogger.Logger
}

func NewBatchRequestHandler(topic string, starter BatchStarter, logger *applogger.Logger) *BatchRequestHandler {
	return &BatchRequestHandler{topic: topic, starter: starter, logger: logger}
}

func (h *BatchRequestHandler) Topic() string { return h.topic }

// Handle starts the batch and returns without waiting for it. Malformed
// requests are marked permanent so the consumer dead-letters them at once.
func (h *BatchRequestHandler) Handle(ctx context.Context, b []byte) error {
	var m BatchRequestMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("decode batch request: %w", err))
	}
	req := BatchRequest{
		Name:        m.Name,
		Instruments: m.Instruments,
		Limit:       m.Limit,
		Strategies:  m.Strategies,
		Concurrency: m.Concurrency,
		Days:        m.Days,
	}
	handle, err := h.starter.Start(ctx, req)
	if err != nil {
		err = fmt.Errorf("start batch: %w", err)
		if setupFault(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	h.logger.Info("batch requested from queue",
		applogger.String("topic", h.topic),
		applogger.String("batch_id", handle.ID()))
	return nil
}

// setupFault reports errors that no retry of the same request can fix.
func setupFault(err error) bool {
	return errors.Is(err, strategy.ErrUnknownStrategy) ||
		errors.Is(err, ErrEmptyUniverse) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, util.ErrInvalidInstrument)
}
