package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
)

const defaultIndexTimeout = 30 * time.Second

// GoroutineIndexer embeds each message on its own goroutine, detached from
// the caller's cancellation.
type GoroutineIndexer struct {
	retrieval services.RetrievalService
	timeout   time.Duration
	log       *logrus.Logger
	wg        sync.WaitGroup
}

func NewGoroutineIndexer(retrieval services.RetrievalService, log *logrus.Logger) *GoroutineIndexer {
	if log == nil {
		log = logger.Discard()
	}
	return &GoroutineIndexer{retrieval: retrieval, timeout: defaultIndexTimeout, log: log}
}

func (ix *GoroutineIndexer) Enqueue(ctx context.Context, msg models.Message) {
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ix.timeout)
		defer cancel()

		if _, err := ix.retrieval.IndexMessage(ctx, msg); err != nil {
			ix.log.WithFields(logrus.Fields{
				"component":  "indexer",
				"message_id": msg.ID,
				"user_id":    msg.UserID,
			}).WithError(err).Warn("embedding failed, message left for backfill")
		}
	}()
}

// Wait blocks until every enqueued message has been processed.
func (ix *GoroutineIndexer) Wait() { ix.wg.Wait() }
