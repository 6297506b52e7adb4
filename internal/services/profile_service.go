package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/utils"
)

// ProfileUpdate carries optional changes; nil fields are left alone.
type ProfileUpdate struct {
	Nickname           *string  `json:"nickname"`
	ConversationStyle  *string  `json:"conversation_style"`
	Topics             []string `json:"topics_of_interest"`
	MemoryEnabled      *bool    `json:"memory_enabled"`
	RetentionDays      *int     `json:"data_retention_days"`
	ShareWithCompanion *bool    `json:"share_with_companion"`
}

type ProfileService interface {
	// GetOrCreate returns the user's profile, creating a default one on
	// first contact.
	GetOrCreate(ctx context.Context, userID string) (*models.UserProfile, error)
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Update(ctx context.Context, userID string, in ProfileUpdate) (*models.UserProfile, error)
	Touch(ctx context.Context, userID string) error
}

type profileService struct {
	profiles sqldb.ProfileRepository
}

func NewProfileService(profiles sqldb.ProfileRepository) ProfileService {
	return &profileService{profiles: profiles}
}

func (s *profileService) GetOrCreate(ctx context.Context, userID string) (*models.UserProfile, error) {
	const op = "ProfileService.GetOrCreate"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}

	now := time.Now().UTC()
	p = &models.UserProfile{
		UserID:        userID,
		MemoryEnabled: true,
		CreatedAt:     now,
		LastActiveAt:  now,
	}
	if _, err := s.profiles.CreateIfAbsent(ctx, p); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create profile", err)
	}
	// re-read: a concurrent first contact may have won
	out, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	return out, nil
}

func (s *profileService) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	const op = "ProfileService.Get"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	return p, nil
}

func (s *profileService) Update(ctx context.Context, userID string, in ProfileUpdate) (*models.UserProfile, error) {
	const op = "ProfileService.Update"

	if in.RetentionDays != nil && *in.RetentionDays < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "data_retention_days must be >= 0", nil)
	}
	p, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Nickname != nil {
		nick := strings.TrimSpace(*in.Nickname)
		if nick == "" {
			p.Nickname = nil
		} else {
			p.Nickname = &nick
		}
	}
	if in.ConversationStyle != nil {
		p.ConversationStyle = strings.TrimSpace(*in.ConversationStyle)
	}
	if in.Topics != nil {
		p.Topics = cleanTopics(in.Topics)
	}
	if in.MemoryEnabled != nil {
		p.MemoryEnabled = *in.MemoryEnabled
	}
	if in.RetentionDays != nil {
		p.RetentionDays = *in.RetentionDays
	}
	if in.ShareWithCompanion != nil {
		p.ShareWithCompanion = *in.ShareWithCompanion
	}
	p.LastActiveAt = time.Now().UTC()

	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update profile", err)
	}
	return p, nil
}

func (s *profileService) Touch(ctx context.Context, userID string) error {
	const op = "ProfileService.Touch"

	if err := s.profiles.Touch(ctx, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to touch profile", err)
	}
	return nil
}

func cleanTopics(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
