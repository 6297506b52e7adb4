package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/storage"
	"github.com/yoockh/yoomemory/internal/utils"
)

const (
	ExportAuditLimit = 500
	exportURLTTL     = 24 * time.Hour
)

type DataRightsService interface {
	ExportUserData(ctx context.Context, userID string) (*models.UserExport, error)
	// DeleteUserData removes everything but the audit trail in one
	// transaction and drops the user's vector index.
	DeleteUserData(ctx context.Context, userID string) (models.DeletionCounts, error)
	AnonymizeUserData(ctx context.Context, userID string) (models.AnonymizeCounts, error)
}

type DataRightsRepos struct {
	Profiles sqldb.ProfileRepository
	Sessions sqldb.SessionRepository
	Messages sqldb.MessageRepository
	Consents sqldb.ConsentRepository
	Rights   sqldb.DataRightsRepository
}

type dataRightsService struct {
	repos     DataRightsRepos
	audit     AuditService
	retrieval RetrievalService
	archive   storage.Archive
	log       *logrus.Logger
}

// NewDataRightsService accepts a nil archive; exports are then returned
// inline only.
func NewDataRightsService(repos DataRightsRepos, audit AuditService, retrieval RetrievalService, archive storage.Archive, log *logrus.Logger) DataRightsService {
	if log == nil {
		log = logger.Discard()
	}
	return &dataRightsService{repos: repos, audit: audit, retrieval: retrieval, archive: archive, log: log}
}

func (s *dataRightsService) ExportUserData(ctx context.Context, userID string) (*models.UserExport, error) {
	const op = "DataRightsService.ExportUserData"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if err := s.audit.Record(ctx, userID, models.AuditExportRequested, "user", userID, nil); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to audit export request", err)
	}

	now := time.Now().UTC()
	out := &models.UserExport{UserID: userID, ExportedAt: now.Format(time.RFC3339)}

	p, err := s.repos.Profiles.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		out.Profile = p
	case !errors.Is(err, utils.ErrNotFound):
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	if out.Sessions, err = s.repos.Sessions.ListByUser(ctx, userID); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load sessions", err)
	}
	if out.Messages, err = s.repos.Messages.ListByUser(ctx, userID); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load messages", err)
	}
	if out.Consents, err = s.repos.Consents.ListByUser(ctx, userID); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load consent records", err)
	}
	if out.Audit, err = s.audit.List(ctx, userID, ExportAuditLimit); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load audit entries", err)
	}

	fields := logrus.Fields{"component": "data_rights", "user_id": userID}
	if s.archive != nil {
		url, err := s.upload(ctx, out, now)
		if err != nil {
			s.log.WithFields(fields).WithError(err).Warn("export archive upload failed, returning inline export")
		} else {
			out.ArchiveURL = url
		}
	}

	details := map[string]any{
		"sessions": len(out.Sessions),
		"messages": len(out.Messages),
		"consents": len(out.Consents),
		"archived": out.ArchiveURL != "",
	}
	if err := s.audit.Record(ctx, userID, models.AuditExportCompleted, "user", userID, details); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to audit export completion", err)
	}
	s.log.WithFields(fields).WithFields(details).Info("user data exported")
	return out, nil
}

func (s *dataRightsService) upload(ctx context.Context, export *models.UserExport, at time.Time) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(export); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	name := storage.ExportObjectName(export.UserID, at)
	location, err := s.archive.Put(ctx, name, "application/json", &buf)
	if err != nil {
		return "", err
	}
	if linker, ok := s.archive.(storage.Linker); ok {
		return linker.Link(ctx, name, exportURLTTL)
	}
	return location, nil
}

func (s *dataRightsService) DeleteUserData(ctx context.Context, userID string) (models.DeletionCounts, error) {
	const op = "DataRightsService.DeleteUserData"

	if userID == "" {
		return models.DeletionCounts{}, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	entry := s.audit.Build(userID, models.AuditDataDeleted, "user", userID, nil)
	counts, err := s.repos.Rights.DeleteUser(ctx, userID, entry)
	if err != nil {
		return models.DeletionCounts{}, utils.E(utils.CodeInternal, op, "failed to delete user data", err)
	}
	s.audit.Committed(ctx, entry)

	fields := logrus.Fields{"component": "data_rights", "user_id": userID, "rows": counts.Total()}
	if err := s.retrieval.Forget(ctx, userID); err != nil {
		s.log.WithFields(fields).WithError(err).Warn("failed to drop vector index after deletion")
	}
	s.log.WithFields(fields).Info("user data deleted")
	return counts, nil
}

func (s *dataRightsService) AnonymizeUserData(ctx context.Context, userID string) (models.AnonymizeCounts, error) {
	const op = "DataRightsService.AnonymizeUserData"

	if userID == "" {
		return models.AnonymizeCounts{}, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	entry := s.audit.Build(userID, models.AuditDataAnonymized, "user", userID, nil)
	counts, err := s.repos.Rights.AnonymizeUser(ctx, userID, entry)
	if err != nil {
		return models.AnonymizeCounts{}, utils.E(utils.CodeInternal, op, "failed to anonymize user data", err)
	}
	s.audit.Committed(ctx, entry)

	fields := logrus.Fields{"component": "data_rights", "user_id": userID, "messages": counts.Messages}
	if err := s.retrieval.Forget(ctx, userID); err != nil {
		s.log.WithFields(fields).WithError(err).Warn("failed to drop vector index after anonymization")
	}
	s.log.WithFields(fields).Info("user data anonymized")
	return counts, nil
}
