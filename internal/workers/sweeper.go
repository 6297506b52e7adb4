package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/services"
)

type SweepReport struct {
	MessagesExpired int `json:"messages_expired"`
	ConsentsExpired int `json:"consents_expired"`
	SessionsEnded   int `json:"sessions_ended"`
	Backfilled      int `json:"backfilled"`
}

const defaultSweepBackfill = 200

// Sweeper runs the periodic housekeeping: retention, consent expiry, idle
// sessions and, when Retrieval is set, a bounded embedding backfill that
// picks up messages the background indexer failed on.
type Sweeper struct {
	Conversations services.ConversationService
	Consents      services.ConsentService
	Sessions      services.SessionService
	Retrieval     services.RetrievalService
	BackfillLimit int
	Interval      time.Duration
	Logger        *logrus.Logger
}

// RunOnce runs every sweep even when an earlier one fails and returns the
// first error.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var (
		rep      SweepReport
		firstErr error
		err      error
	)
	keep := func(e error) {
		if e != nil && firstErr == nil {
			firstErr = e
		}
	}

	rep.MessagesExpired, err = s.Conversations.RetentionSweep(ctx)
	keep(err)
	rep.ConsentsExpired, err = s.Consents.RevokeExpired(ctx)
	keep(err)
	rep.SessionsEnded, err = s.Sessions.EndIdle(ctx)
	keep(err)
	if s.Retrieval != nil {
		limit := s.BackfillLimit
		if limit <= 0 {
			limit = defaultSweepBackfill
		}
		bf, err := s.Retrieval.Backfill(ctx, limit)
		rep.Backfilled = bf.Succeeded
		keep(err)
	}
	return rep, firstErr
}

// Run blocks, sweeping every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log := s.Logger
	if log == nil {
		log = logger.Discard()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := s.RunOnce(ctx)
			entry := log.WithFields(logrus.Fields{
				"component":        "sweeper",
				"messages_expired": rep.MessagesExpired,
				"consents_expired": rep.ConsentsExpired,
				"sessions_ended":   rep.SessionsEnded,
				"backfilled":       rep.Backfilled,
			})
			if err != nil {
				entry.WithError(err).Warn("sweep finished with errors")
				continue
			}
			entry.Info("sweep finished")
		}
	}
}
