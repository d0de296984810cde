package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"StockVote/internal/strategy"
	pkgkafka "StockVote/pkg/kafka"
	applogger "StockVote/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStarter struct {
	req BatchRequest
	err error
}

func (s *recordingStarter) Start(_ context.Context, req BatchRequest) (*BatchHandle, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &BatchHandle{id: "b-1", done: make(chan struct{})}, nil
}

func TestBatchRequestHandler(t *testing.T) {
	starter := &recordingStarter{}
	h := NewBatchRequestHandler("analysis.requests", starter, applogger.Nop())
	assert.Equal(t, "analysis.requests", h.Topic())

	err := h.Handle(context.Background(), []byte(`{"name":"am","instruments":["000001.SZ"],"strategies":["macd"],"concurrency":2,"days":10}`))
	require.NoError(t, err)
	assert.Equal(t, "am", starter.req.Name)
	assert.Equal(t, []string{"000001.SZ"}, starter.req.Instruments)
	assert.Equal(t, []string{"macd"}, starter.req.Strategies)
	assert.Equal(t, 2, starter.req.Concurrency)
	assert.Equal(t, 10, starter.req.Days)
	assert.True(t, starter.req.From.IsZero(), "the engine aligns the window")
	assert.True(t, starter.req.To.IsZero())

	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{`)), pkgkafka.ErrPermanent)
}

func TestBatchRequestHandlerClassifiesFaults(t *testing.T) {
	starter := &recordingStarter{}
	h := NewBatchRequestHandler("analysis.requests", starter, applogger.Nop())

	for _, fault := range []error{
		ErrEmptyUniverse,
		ErrInvalidWindow,
		fmt.Errorf("%w: astrology", strategy.ErrUnknownStrategy),
	} {
		starter.err = fault
		err := h.Handle(context.Background(), []byte(`{}`))
		assert.ErrorIs(t, err, fault)
		assert.ErrorIs(t, err, pkgkafka.ErrPermanent, "%v is not retried", fault)
	}

	starter.err = errors.New("create batch: connection refused")
	err := h.Handle(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, pkgkafka.ErrPermanent), "store faults are retried")
}
