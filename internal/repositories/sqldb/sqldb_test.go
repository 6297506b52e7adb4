package sqldb_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/testutil"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	profiles sqldb.ProfileRepository
	sessions sqldb.SessionRepository
	messages sqldb.MessageRepository
	embeds   sqldb.EmbeddingRepository
	consents sqldb.ConsentRepository
	audit    sqldb.AuditRepository
	rights   sqldb.DataRightsRepository
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	return &fixture{
		db:       db,
		profiles: sqldb.NewProfileRepo(db),
		sessions: sqldb.NewSessionRepo(db),
		messages: sqldb.NewMessageRepo(db),
		embeds:   sqldb.NewEmbeddingRepo(db),
		consents: sqldb.NewConsentRepo(db),
		audit:    sqldb.NewAuditRepo(db),
		rights:   sqldb.NewDataRightsRepo(db),
	}
}

func (f *fixture) seedUser(t *testing.T, userID string) *models.Session {
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := f.profiles.CreateIfAbsent(ctx, &models.UserProfile{
		UserID:        userID,
		MemoryEnabled: true,
		CreatedAt:     now,
		LastActiveAt:  now,
	})
	require.NoError(t, err)

	s := &models.Session{ID: uuid.NewString(), UserID: userID}
	require.NoError(t, f.sessions.Create(ctx, s))
	return s
}

func (f *fixture) appendMsg(t *testing.T, s *models.Session, content string, ts time.Time) *models.Message {
	m := &models.Message{
		ID:         uuid.NewString(),
		SessionID:  s.ID,
		UserID:     s.UserID,
		Role:       models.RoleUser,
		Content:    content,
		Timestamp:  ts,
		TokenCount: len(content) / 4,
	}
	require.NoError(t, f.messages.Append(context.Background(), m))
	return m
}

func TestProfile_CreateIfAbsentKeepsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	nick := "Sam"

	created, err := f.profiles.CreateIfAbsent(ctx, &models.UserProfile{UserID: "u1", Nickname: &nick, MemoryEnabled: true, CreatedAt: now, LastActiveAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.profiles.CreateIfAbsent(ctx, &models.UserProfile{UserID: "u1", CreatedAt: now, LastActiveAt: now})
	require.NoError(t, err)
	assert.False(t, created)

	p, err := f.profiles.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p.Nickname)
	assert.Equal(t, "Sam", *p.Nickname)
	assert.True(t, p.MemoryEnabled)

	_, err = f.profiles.GetByUserID(ctx, "nobody")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestProfile_UpsertPersistsFalseFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := &models.UserProfile{UserID: "u1", MemoryEnabled: true, CreatedAt: now, LastActiveAt: now, Topics: []string{"chess"}}
	require.NoError(t, f.profiles.Upsert(ctx, p))

	p.MemoryEnabled = false
	p.RetentionDays = 7
	p.Topics = []string{"chess", "go"}
	require.NoError(t, f.profiles.Upsert(ctx, p))

	got, err := f.profiles.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.MemoryEnabled)
	assert.Equal(t, 7, got.RetentionDays)
	assert.Equal(t, []string{"chess", "go"}, []string(got.Topics))

	withRetention, err := f.profiles.ListWithRetention(ctx)
	require.NoError(t, err)
	require.Len(t, withRetention, 1)
}

func TestMessage_AppendBumpsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedUser(t, "u1")

	base := time.Now().UTC().Add(-time.Hour)
	f.appendMsg(t, s, "first", base)
	last := f.appendMsg(t, s, "second", base.Add(time.Minute))

	got, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.WithinDuration(t, last.Timestamp, got.LastActivity, time.Millisecond)

	rows, err := f.messages.ListBySession(ctx, "u1", s.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[0].Content)
}

func TestMessage_AppendUnknownSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "u1")

	err := f.messages.Append(ctx, &models.Message{
		ID: uuid.NewString(), SessionID: "missing", UserID: "u1", Role: models.RoleUser, Content: "hi",
	})
	assert.ErrorIs(t, err, utils.ErrNotFound)

	rows, err := f.messages.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMessage_AppendOtherUsersSession(t *testing.T) {
	f := newFixture(t)
	s := f.seedUser(t, "u1")
	f.seedUser(t, "u2")

	err := f.messages.Append(context.Background(), &models.Message{
		ID: uuid.NewString(), SessionID: s.ID, UserID: "u2", Role: models.RoleUser, Content: "hi",
	})
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestEmbedding_SaveListAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedUser(t, "u1")
	now := time.Now().UTC()
	m1 := f.appendMsg(t, s, "one", now)
	m2 := f.appendMsg(t, s, "two", now.Add(time.Second))

	require.NoError(t, f.embeds.Save(ctx, &models.Embedding{
		MessageID: m1.ID, Vector: pgvector.NewVector([]float32{0.6, 0.8}), Model: "m", Dimensions: 2, CreatedAt: now,
	}))
	// saving twice replaces
	require.NoError(t, f.embeds.Save(ctx, &models.Embedding{
		MessageID: m1.ID, Vector: pgvector.NewVector([]float32{1, 0}), Model: "m", Dimensions: 2, CreatedAt: now,
	}))

	got, err := f.embeds.GetByMessageID(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Vector.Slice())

	list, err := f.embeds.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Message)
	assert.Equal(t, "one", list[0].Message.Content)

	require.NoError(t, f.consents.ReplaceActive(ctx, grant("u1", now, nil), nil))
	missing, err := f.messages.ListMissingEmbedding(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, m2.ID, missing[0].ID)
}

func TestMessage_DeleteOlderThan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedUser(t, "u1")
	now := time.Now().UTC()

	old := f.appendMsg(t, s, "old", now.Add(-48*time.Hour))
	fresh := f.appendMsg(t, s, "fresh", now)
	require.NoError(t, f.embeds.Save(ctx, &models.Embedding{
		MessageID: old.ID, Vector: pgvector.NewVector([]float32{1}), Model: "m", Dimensions: 1, CreatedAt: now,
	}))

	ids, err := f.messages.DeleteOlderThan(ctx, "u1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, ids)

	rows, err := f.messages.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)

	_, err = f.embeds.GetByMessageID(ctx, old.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestSession_EndAndIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedUser(t, "u1")

	active, err := f.sessions.ActiveForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, active.ID)

	idle, err := f.sessions.ListIdleActive(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, idle, 1)

	require.NoError(t, f.sessions.End(ctx, s.ID, time.Now().UTC()))
	// ending twice is not an error
	require.NoError(t, f.sessions.End(ctx, s.ID, time.Now().UTC()))
	assert.ErrorIs(t, f.sessions.End(ctx, "missing", time.Now().UTC()), utils.ErrNotFound)

	_, err = f.sessions.ActiveForUser(ctx, "u1")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func grant(userID string, at time.Time, expires *time.Time) *models.ConsentRecord {
	return &models.ConsentRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		ConsentType:   models.ConsentMemoryStorage,
		Status:        models.ConsentGranted,
		GrantedAt:     &at,
		ExpiresAt:     expires,
		PolicyVersion: "v1",
		CreatedAt:     at,
	}
}

func TestConsent_ReplaceActiveLeavesOneGranted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.consents.ReplaceActive(ctx, grant("u1", now, nil), nil))
	second := grant("u1", now.Add(time.Second), nil)
	require.NoError(t, f.consents.ReplaceActive(ctx, second, &models.AuditLog{
		ID: uuid.NewString(), Action: models.AuditConsentGranted, Timestamp: now,
	}))

	all, err := f.consents.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	granted := 0
	for _, c := range all {
		if c.Status == models.ConsentGranted {
			granted++
			assert.Equal(t, second.ID, c.ID)
		} else {
			assert.Equal(t, models.ConsentRevoked, c.Status)
			assert.NotNil(t, c.RevokedAt)
		}
	}
	assert.Equal(t, 1, granted)

	active, err := f.consents.ActiveFor(ctx, "u1", models.ConsentMemoryStorage)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestConsent_RevokeAndExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	require.NoError(t, f.consents.ReplaceActive(ctx, grant("u1", now.Add(-time.Hour), &past), nil))
	require.NoError(t, f.consents.ReplaceActive(ctx, grant("u2", now, nil), nil))

	expired, err := f.consents.RevokeExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "u1", expired[0].UserID)

	n, err := f.consents.RevokeActive(ctx, "u2", models.ConsentMemoryStorage, now, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.consents.ActiveFor(ctx, "u2", models.ConsentMemoryStorage)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestDataRights_DeleteUserKeepsAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s := f.seedUser(t, "u1")
	m := f.appendMsg(t, s, "hello", now)
	require.NoError(t, f.embeds.Save(ctx, &models.Embedding{
		MessageID: m.ID, Vector: pgvector.NewVector([]float32{1}), Model: "m", Dimensions: 1, CreatedAt: now,
	}))
	require.NoError(t, f.consents.ReplaceActive(ctx, grant("u1", now, nil), nil))
	uid := "u1"
	require.NoError(t, f.audit.Insert(ctx, &models.AuditLog{ID: uuid.NewString(), UserID: &uid, Action: models.AuditConsentGranted, Timestamp: now}))

	other := f.seedUser(t, "u2")
	f.appendMsg(t, other, "keep me", now)

	counts, err := f.rights.DeleteUser(ctx, "u1", &models.AuditLog{ID: uuid.NewString(), UserID: &uid, Action: models.AuditDataDeleted, Timestamp: now})
	require.NoError(t, err)
	assert.Equal(t, models.DeletionCounts{Embeddings: 1, Messages: 1, Sessions: 1, ConsentRecords: 1, Profiles: 1}, counts)

	_, err = f.profiles.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	n, err := f.audit.CountByUser(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	rest, err := f.messages.ListByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestDataRights_Anonymize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s := f.seedUser(t, "u1")
	m := f.appendMsg(t, s, "my address is 1 Main St", now)
	require.NoError(t, f.embeds.Save(ctx, &models.Embedding{
		MessageID: m.ID, Vector: pgvector.NewVector([]float32{1}), Model: "m", Dimensions: 1, CreatedAt: now,
	}))

	counts, err := f.rights.AnonymizeUser(ctx, "u1", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Messages)
	assert.EqualValues(t, 1, counts.Embeddings)

	got, err := f.messages.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RedactedContent, got.Content)

	p, err := f.profiles.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p.Nickname)
	assert.Empty(t, p.Topics)
}

func TestMessage_ListMissingEmbeddingOnlyMemoryOnUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	quiet := f.seedUser(t, "no-consent")
	for i := 0; i < 5; i++ {
		f.appendMsg(t, quiet, "not allowed", now.Add(-time.Duration(10-i)*time.Minute))
	}

	expired := f.seedUser(t, "expired")
	require.NoError(t, f.consents.ReplaceActive(ctx, grant("expired", now.Add(-2*time.Hour), &past), nil))
	f.appendMsg(t, expired, "grant ran out", now.Add(-4*time.Minute))

	off := f.seedUser(t, "memory-off")
	require.NoError(t, f.consents.ReplaceActive(ctx, grant("memory-off", now, nil), nil))
	require.NoError(t, f.profiles.Upsert(ctx, &models.UserProfile{UserID: "memory-off", MemoryEnabled: false, CreatedAt: now, LastActiveAt: now}))
	f.appendMsg(t, off, "switched off", now.Add(-3*time.Minute))

	on := f.seedUser(t, "u1")
	require.NoError(t, f.consents.ReplaceActive(ctx, grant("u1", now, nil), nil))
	f.appendMsg(t, on, models.RedactedContent, now.Add(-2*time.Minute))
	want := f.appendMsg(t, on, "remember this", now.Add(-time.Minute))

	missing, err := f.messages.ListMissingEmbedding(ctx, now, 3)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, want.ID, missing[0].ID)
}

func TestMigrate_SessionsReferenceProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sessionsDDL, profilesDDL string
	require.NoError(t, f.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'sessions'").Scan(&sessionsDDL).Error)
	require.NoError(t, f.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'user_profiles'").Scan(&profilesDDL).Error)
	assert.Contains(t, sessionsDDL, "REFERENCES `user_profiles`")
	assert.NotContains(t, profilesDDL, "REFERENCES")

	now := time.Now().UTC()
	created, err := f.profiles.CreateIfAbsent(ctx, &models.UserProfile{UserID: "u1", MemoryEnabled: true, CreatedAt: now, LastActiveAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	err = f.sessions.Create(ctx, &models.Session{ID: uuid.NewString(), UserID: "ghost"})
	assert.Error(t, err)
}
