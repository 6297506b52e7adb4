package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/analysis/style"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/utils"
)

// engagement scan covers at most this many recent user turns
const engagementSampleLimit = 500

type AdaptResult struct {
	Text    string         `json:"text"`
	Applied bool           `json:"applied"`
	Profile style.Profile  `json:"profile"`
	Changes []style.Change `json:"changes"`
}

type PersonalizationService interface {
	// DetectStyle returns the default profile unless the user has granted
	// both personalization and memory_storage consent.
	DetectStyle(ctx context.Context, userID string) (style.Profile, error)
	AdaptResponse(ctx context.Context, userID, draft string) (*AdaptResult, error)
	// EngagementScore is 0..100. ok is false when analytics consent is missing.
	EngagementScore(ctx context.Context, userID string) (score int, ok bool, err error)
}

type personalizationService struct {
	messages sqldb.MessageRepository
	profiles sqldb.ProfileRepository
	consent  ConsentService
	detector *style.Detector
	log      *logrus.Logger
}

func NewPersonalizationService(
	messages sqldb.MessageRepository,
	profiles sqldb.ProfileRepository,
	consent ConsentService,
	detector *style.Detector,
	log *logrus.Logger,
) PersonalizationService {
	if detector == nil {
		detector = style.NewDetector(0, style.DefaultThreshold)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &personalizationService{
		messages: messages,
		profiles: profiles,
		consent:  consent,
		detector: detector,
		log:      log,
	}
}

// styleAllowed: style is learned from stored history, so revoking
// memory_storage stops adaptation as well as personalization does.
func (s *personalizationService) styleAllowed(ctx context.Context, userID string) bool {
	return s.consent.HasConsent(ctx, userID, models.ConsentPersonalization) &&
		s.consent.HasConsent(ctx, userID, models.ConsentMemoryStorage)
}

func (s *personalizationService) DetectStyle(ctx context.Context, userID string) (style.Profile, error) {
	const op = "PersonalizationService.DetectStyle"

	if userID == "" {
		return style.Default(), utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if !s.styleAllowed(ctx, userID) {
		return style.Default(), nil
	}
	rows, err := s.messages.ListRecentByUser(ctx, userID, models.RoleUser, s.detector.Window())
	if err != nil {
		return style.Default(), utils.E(utils.CodeInternal, op, "failed to load recent messages", err)
	}
	texts := make([]string, len(rows))
	for i, m := range rows {
		texts[len(rows)-1-i] = m.Content
	}
	return s.detector.Detect(texts), nil
}

func (s *personalizationService) AdaptResponse(ctx context.Context, userID, draft string) (*AdaptResult, error) {
	const op = "PersonalizationService.AdaptResponse"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	res := &AdaptResult{Text: draft, Profile: style.Default(), Changes: []style.Change{}}
	if strings.TrimSpace(draft) == "" {
		return res, nil
	}
	if !s.styleAllowed(ctx, userID) {
		return res, nil
	}
	p, err := s.profiles.GetByUserID(ctx, userID)
	switch {
	case err == nil && !p.MemoryEnabled:
		return res, nil
	case err != nil && !errors.Is(err, utils.ErrNotFound):
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}

	prof, err := s.DetectStyle(ctx, userID)
	if err != nil {
		return nil, err
	}
	text, changes := style.Adapt(draft, prof)
	res.Text = text
	res.Profile = prof
	res.Applied = true
	if changes != nil {
		res.Changes = changes
	}

	s.log.WithFields(logrus.Fields{
		"component": "personalization",
		"user_id":   userID,
		"changes":   len(res.Changes),
	}).Debug("response adapted")
	return res, nil
}

func (s *personalizationService) EngagementScore(ctx context.Context, userID string) (int, bool, error) {
	const op = "PersonalizationService.EngagementScore"

	if userID == "" {
		return 0, false, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if !s.consent.HasConsent(ctx, userID, models.ConsentAnalytics) {
		return 0, false, nil
	}
	rows, err := s.messages.ListRecentByUser(ctx, userID, models.RoleUser, engagementSampleLimit)
	if err != nil {
		return 0, false, utils.E(utils.CodeInternal, op, "failed to load messages", err)
	}
	return Engagement(rows, time.Now().UTC()), true, nil
}

// Engagement scores a user's turns (newest first) on a 0..100 scale:
// frequency over the last week up to 30, average length up to 20, emoji
// and question use up to 15 each, recency of the last turn up to 20.
func Engagement(rows []models.Message, now time.Time) int {
	if len(rows) == 0 {
		return 0
	}
	weekAgo := now.Add(-7 * 24 * time.Hour)
	var week, chars, withEmoji, questions int
	for _, m := range rows {
		if !m.Timestamp.Before(weekAgo) {
			week++
		}
		chars += utf8.RuneCountInString(m.Content)
		if style.HasEmoji(m.Content) {
			withEmoji++
		}
		if strings.Contains(m.Content, "?") {
			questions++
		}
	}
	n := float64(len(rows))

	score := math.Min(30, float64(week)*3)
	score += math.Min(20, float64(chars)/n/10)
	score += math.Min(15, float64(withEmoji)/n*30)
	score += math.Min(15, float64(questions)/n*30)

	since := now.Sub(rows[0].Timestamp)
	switch {
	case since <= 24*time.Hour:
		score += 20
	case since <= 3*24*time.Hour:
		score += 15
	case since <= 7*24*time.Hour:
		score += 10
	case since <= 30*24*time.Hour:
		score += 5
	}
	return int(math.Round(math.Min(100, score)))
}
