package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/tokens"
	"github.com/yoockh/yoomemory/internal/utils"
)

const (
	DefaultContextMaxTokens = 2000
	// upper bound on session turns read before budget selection
	currentScanLimit = 200
)

type AssembleRequest struct {
	UserID                string
	SessionID             string
	Query                 string
	MaxTokens             int
	TopK                  int
	MinSimilarity         *float64
	IncludeCurrentSession bool
	IncludeProfile        bool
}

type ContextMessage struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	Role       models.Role `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Tokens     int         `json:"tokens"`
	Similarity float64     `json:"similarity,omitempty"`
	Relevance  float64     `json:"relevance,omitempty"`
	Rank       int         `json:"rank,omitempty"`
}

type TemporalContext struct {
	SessionStart  *time.Time `json:"session_start,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	Elapsed       string     `json:"elapsed,omitempty"`
	ElapsedSecond int64      `json:"elapsed_seconds"`
	Now           time.Time  `json:"now"`
}

type PruneReport struct {
	RetrievedDropped int  `json:"retrieved_dropped"`
	CurrentDropped   int  `json:"current_dropped"`
	ProfileDropped   bool `json:"profile_dropped"`
	Truncated        bool `json:"truncated"`
}

type ContextQuality struct {
	AvgRelevance       float64     `json:"avg_relevance"`
	RetrievalLatencyMS int64       `json:"retrieval_latency_ms"`
	EstimatedTokens    int         `json:"estimated_tokens"`
	Budget             int         `json:"budget"`
	Degraded           bool        `json:"degraded"`
	DegradedReason     string      `json:"degraded_reason,omitempty"`
	Pruned             PruneReport `json:"pruned"`
}

type ContextPackage struct {
	UserID          string           `json:"user_id"`
	SessionID       string           `json:"session_id,omitempty"`
	Query           string           `json:"query,omitempty"`
	CurrentMessages []ContextMessage `json:"current_messages"`
	Retrieved       []ContextMessage `json:"retrieved"`
	Profile         string           `json:"profile,omitempty"`
	Temporal        TemporalContext  `json:"temporal"`
	Quality         ContextQuality   `json:"quality"`
}

type ContextService interface {
	AssembleContext(ctx context.Context, req AssembleRequest) (*ContextPackage, error)
	// FormatPrompt renders a package as plain text for a text generator.
	FormatPrompt(pkg *ContextPackage) string
}

type ContextConfig struct {
	MaxTokens int
}

type contextService struct {
	messages  sqldb.MessageRepository
	sessions  sqldb.SessionRepository
	profiles  sqldb.ProfileRepository
	retrieval RetrievalService
	consent   ConsentService
	counter   tokens.Counter
	cfg       ContextConfig
	log       *logrus.Logger
}

func NewContextService(
	messages sqldb.MessageRepository,
	sessions sqldb.SessionRepository,
	profiles sqldb.ProfileRepository,
	retrieval RetrievalService,
	consent ConsentService,
	counter tokens.Counter,
	cfg ContextConfig,
	log *logrus.Logger,
) ContextService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultContextMaxTokens
	}
	if counter == nil {
		counter = tokens.Heuristic{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &contextService{
		messages:  messages,
		sessions:  sessions,
		profiles:  profiles,
		retrieval: retrieval,
		consent:   consent,
		counter:   counter,
		cfg:       cfg,
		log:       log,
	}
}

func (s *contextService) tokensOf(m models.Message) int {
	if m.TokenCount > 0 {
		return m.TokenCount
	}
	return s.counter.Count(m.Content)
}

func (s *contextService) AssembleContext(ctx context.Context, req AssembleRequest) (*ContextPackage, error) {
	const op = "ContextService.AssembleContext"

	if req.UserID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	budget := req.MaxTokens
	if budget <= 0 {
		budget = s.cfg.MaxTokens
	}
	now := time.Now().UTC()
	pkg := &ContextPackage{
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		Query:           req.Query,
		CurrentMessages: []ContextMessage{},
		Retrieved:       []ContextMessage{},
		Temporal:        TemporalContext{Now: now},
		Quality:         ContextQuality{Budget: budget},
	}
	fields := logrus.Fields{"component": "context", "user_id": req.UserID, "session_id": req.SessionID}

	session, err := s.resolveSession(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to resolve session", err)
	}
	if session != nil {
		pkg.SessionID = session.ID
		start, last := session.StartedAt, session.LastActivity
		pkg.Temporal.SessionStart = &start
		pkg.Temporal.LastActivity = &last
		elapsed := now.Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		pkg.Temporal.ElapsedSecond = int64(elapsed.Seconds())
		pkg.Temporal.Elapsed = elapsed.Round(time.Second).String()

		current, err := s.currentTurns(ctx, req.UserID, session.ID, budget/2)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to load session history", err)
		}
		pkg.CurrentMessages = current
	}

	if req.Query != "" {
		start := time.Now()
		retrieved, err := s.retrieve(ctx, req, pkg)
		pkg.Quality.RetrievalLatencyMS = time.Since(start).Milliseconds()
		if err != nil {
			pkg.Quality.Degraded = true
			pkg.Quality.DegradedReason = "retrieval_failed"
			s.log.WithFields(fields).WithError(err).Warn("retrieval failed, using session-only context")
		} else {
			pkg.Retrieved = retrieved
		}
	}

	if req.IncludeProfile && s.consent.HasConsent(ctx, req.UserID, models.ConsentPersonalization) {
		p, err := s.profiles.GetByUserID(ctx, req.UserID)
		switch {
		case err == nil:
			pkg.Profile = strings.TrimSpace(p.Snippet())
		case !errors.Is(err, utils.ErrNotFound):
			s.log.WithFields(fields).WithError(err).Warn("profile lookup failed, omitting snippet")
		}
	}

	s.prune(pkg, budget)

	if n := len(pkg.Retrieved); n > 0 {
		var sum float64
		for _, r := range pkg.Retrieved {
			sum += r.Relevance
		}
		pkg.Quality.AvgRelevance = sum / float64(n)
	}
	pkg.Quality.EstimatedTokens = s.total(pkg)

	s.log.WithFields(fields).WithFields(logrus.Fields{
		"current":   len(pkg.CurrentMessages),
		"retrieved": len(pkg.Retrieved),
		"tokens":    pkg.Quality.EstimatedTokens,
		"degraded":  pkg.Quality.Degraded,
	}).Debug("context assembled")
	return pkg, nil
}

func (s *contextService) resolveSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	var (
		ss  *models.Session
		err error
	)
	if sessionID != "" {
		ss, err = s.sessions.GetByID(ctx, sessionID)
		if err == nil && ss.UserID != userID {
			return nil, nil
		}
	} else {
		ss, err = s.sessions.ActiveForUser(ctx, userID)
	}
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	}
	return ss, err
}

// currentTurns picks the newest turns that fit in limit tokens (always at
// least the newest one) and returns them oldest first.
func (s *contextService) currentTurns(ctx context.Context, userID, sessionID string, limit int) ([]ContextMessage, error) {
	rows, err := s.messages.ListBySession(ctx, userID, sessionID, currentScanLimit)
	if err != nil {
		return nil, err
	}
	out := make([]ContextMessage, 0, len(rows))
	used := 0
	for _, m := range rows {
		t := s.tokensOf(m)
		if len(out) > 0 && used+t > limit {
			break
		}
		used += t
		out = append(out, ContextMessage{
			ID:        m.ID,
			SessionID: m.SessionID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Tokens:    t,
		})
	}
	reverse(out)
	return out, nil
}

func (s *contextService) retrieve(ctx context.Context, req AssembleRequest, pkg *ContextPackage) ([]ContextMessage, error) {
	opts := SearchOptions{TopK: req.TopK, MinSimilarity: req.MinSimilarity}
	if !req.IncludeCurrentSession {
		opts.ExcludeSessionID = pkg.SessionID
	}
	for _, c := range pkg.CurrentMessages {
		opts.ExcludeIDs = append(opts.ExcludeIDs, c.ID)
	}

	results, err := s.retrieval.Search(ctx, req.UserID, req.Query, opts)
	if err != nil {
		return nil, err
	}
	out := make([]ContextMessage, 0, len(results))
	for _, r := range results {
		t := r.TokenCount
		if t <= 0 {
			t = s.counter.Count(r.Content)
		}
		out = append(out, ContextMessage{
			ID:         r.MessageID,
			SessionID:  r.SessionID,
			Role:       r.Role,
			Content:    r.Content,
			Timestamp:  r.CreatedAt,
			Tokens:     t,
			Similarity: r.Similarity,
			Relevance:  r.Relevance,
			Rank:       r.Rank,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	return out, nil
}

func (s *contextService) total(pkg *ContextPackage) int {
	n := 0
	for _, m := range pkg.CurrentMessages {
		n += m.Tokens
	}
	for _, m := range pkg.Retrieved {
		n += m.Tokens
	}
	if pkg.Profile != "" {
		n += s.counter.Count(pkg.Profile)
	}
	return n
}

// prune brings the package under budget: least relevant retrieved items
// first, then the oldest current turns down to one, then the profile,
// and finally the text of the one remaining turn.
func (s *contextService) prune(pkg *ContextPackage, budget int) {
	total := s.total(pkg)
	rep := &pkg.Quality.Pruned

	for total > budget && len(pkg.Retrieved) > 0 {
		last := pkg.Retrieved[len(pkg.Retrieved)-1]
		pkg.Retrieved = pkg.Retrieved[:len(pkg.Retrieved)-1]
		total -= last.Tokens
		rep.RetrievedDropped++
	}
	for total > budget && len(pkg.CurrentMessages) > 1 {
		total -= pkg.CurrentMessages[0].Tokens
		pkg.CurrentMessages = pkg.CurrentMessages[1:]
		rep.CurrentDropped++
	}
	if total > budget && pkg.Profile != "" {
		total -= s.counter.Count(pkg.Profile)
		pkg.Profile = ""
		rep.ProfileDropped = true
	}
	if total > budget && len(pkg.CurrentMessages) == 1 {
		m := &pkg.CurrentMessages[0]
		allowed := budget - (total - m.Tokens)
		m.Content = s.truncate(m.Content, allowed)
		m.Tokens = s.counter.Count(m.Content)
		rep.Truncated = true
	}
}

func (s *contextService) truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	r := []rune(text)
	if n := maxTokens * 4; len(r) > n {
		r = r[:n]
	}
	for len(r) > 0 && s.counter.Count(string(r)) > maxTokens {
		cut := len(r) / 10
		if cut == 0 {
			cut = 1
		}
		r = r[:len(r)-cut]
	}
	return string(r)
}

func (s *contextService) FormatPrompt(pkg *ContextPackage) string {
	if pkg == nil {
		return ""
	}
	var b strings.Builder
	if pkg.Profile != "" {
		b.WriteString("## About the user\n")
		b.WriteString(pkg.Profile)
		b.WriteString("\n\n")
	}
	if len(pkg.Retrieved) > 0 {
		b.WriteString("## Relevant memories\n")
		for _, m := range pkg.Retrieved {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", m.Timestamp.Format("2006-01-02"), m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	if pkg.Temporal.SessionStart != nil {
		fmt.Fprintf(&b, "## Session\nstarted %s, running for %s\n\n",
			pkg.Temporal.SessionStart.Format(time.RFC3339), pkg.Temporal.Elapsed)
	}
	b.WriteString("## Conversation\n")
	for _, m := range pkg.CurrentMessages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	if q := strings.TrimSpace(pkg.Query); q != "" && !endsWith(pkg.CurrentMessages, q) {
		fmt.Fprintf(&b, "%s: %s\n", models.RoleUser, q)
	}
	return b.String()
}

func endsWith(msgs []ContextMessage, content string) bool {
	return len(msgs) > 0 && msgs[len(msgs)-1].Content == content
}
