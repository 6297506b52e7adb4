package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/utils"
)

// EmbeddingWorkerPool indexes stored messages off a redis stream. It is
// both the producer (Enqueue) and the consumer group.
type EmbeddingWorkerPool struct {
	Redis      *redis.Client
	Messages   sqldb.MessageRepository
	Retrieval  services.RetrievalService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

const streamMaxLen = 100_000

func (p *EmbeddingWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = "embedding:stream"
	}
	if p.Group == "" {
		p.Group = "embedding-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logger.Discard()
	}
}

func (p *EmbeddingWorkerPool) Enqueue(ctx context.Context, msg models.Message) {
	p.defaults()
	err := p.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"message_id": msg.ID, "user_id": msg.UserID},
	}).Err()
	if err != nil {
		p.Logger.WithFields(logrus.Fields{
			"component":  "embedding_worker",
			"message_id": msg.ID,
			"user_id":    msg.UserID,
		}).WithError(err).Warn("enqueue failed, message left for backfill")
	}
}

func (p *EmbeddingWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Messages == nil || p.Retrieval == nil {
		return errors.New("EmbeddingWorkerPool missing dependency: Redis/Messages/Retrieval must be set")
	}
	p.defaults()

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *EmbeddingWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for ctx.Err() == nil {
		streams, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if !sleepCtx(ctx, 500*time.Millisecond) {
				return
			}
			continue
		}

		var ids []string
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				ids = append(ids, msg.ID)
			}
		}
		// failures are acked too; Backfill retries anything without an embedding
		if len(ids) > 0 {
			_ = p.Redis.XAck(ctx, p.Stream, p.Group, ids...).Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *EmbeddingWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	messageID, _ := msg.Values["message_id"].(string)
	if messageID == "" {
		return
	}
	log := p.Logger.WithFields(logrus.Fields{
		"component":  "embedding_worker",
		"redis_id":   msg.ID,
		"message_id": messageID,
	})

	m, err := p.Messages.GetByID(ctx, messageID)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			log.WithError(err).Warn("load message failed")
		}
		return
	}
	indexed, err := p.Retrieval.IndexMessage(ctx, *m)
	if err != nil {
		log.WithError(err).Warn("embedding failed, message left for backfill")
		return
	}
	log.WithField("indexed", indexed).Debug("message processed")
}
