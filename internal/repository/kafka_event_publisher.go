package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"StockVote/internal/domain/models"
	"StockVote/pkg/util"
)

// MessageProducer is the subset of pkg/kafka.Producer the publisher needs.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error
	Close() error
}

// ConsensusEvent is the wire form of one instrument's consensus.
type ConsensusEvent struct {
	BatchID      string                `json:"batch_id"`
	InstrumentID string                `json:"instrument_id"`
	Code         string                `json:"code"`
	Signal       models.Signal         `json:"signal"`
	Confidence   float64               `json:"confidence"`
	Consistency  float64               `json:"consistency"`
	Tier         models.Tier           `json:"tier"`
	VoteTally    map[models.Signal]int `json:"vote_tally"`
	Requested    int                   `json:"requested"`
	Reasons      []string              `json:"reasons,omitempty"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// KafkaEventPublisher emits consensus and batch events, keyed by instrument
// and batch id respectively so each key stays ordered within a partition.
type KafkaEventPublisher struct {
	producer       MessageProducer
	consensusTopic string
	batchTopic     string
}

func NewKafkaEventPublisher(p MessageProducer, consensusTopic, batchTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, consensusTopic: consensusTopic, batchTopic: batchTopic}
}

func (p *KafkaEventPublisher) PublishConsensus(ctx context.Context, batchID string, res *models.ConsensusResult) error {
	ev := ConsensusEvent{
		BatchID:      batchID,
		InstrumentID: res.InstrumentID,
		Code:         util.ExchangeCode(res.InstrumentID),
		Signal:       res.Signal,
		Confidence:   res.Confidence,
		Consistency:  res.Consistency,
		Tier:         res.Tier,
		VoteTally:    res.VoteTally,
		Requested:    res.Requested,
		Reasons:      res.SupportingReasons(3),
		GeneratedAt:  res.GeneratedAt,
	}
	if err := p.producer.Publish(ctx, p.consensusTopic, []byte(res.InstrumentID), ev, eventHeader("consensus")); err != nil {
		return fmt.Errorf("publish consensus %s: %w", res.InstrumentID, err)
	}
	return nil
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, run *models.BatchRun) error {
	if err := p.producer.Publish(ctx, p.batchTopic, []byte(run.ID), run, eventHeader("batch."+string(run.Status))); err != nil {
		return fmt.Errorf("publish batch %s: %w", run.ID, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }

func eventHeader(kind string) kafka.Header {
	return kafka.Header{Key: "event-type", Value: []byte(kind)}
}
