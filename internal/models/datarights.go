package models

// DeletionCounts reports rows removed by a user deletion, per table.
type DeletionCounts struct {
	Embeddings     int64 `json:"embeddings"`
	Messages       int64 `json:"messages"`
	Sessions       int64 `json:"sessions"`
	ConsentRecords int64 `json:"consent_records"`
	Profiles       int64 `json:"user_profiles"`
}

func (c DeletionCounts) Total() int64 {
	return c.Embeddings + c.Messages + c.Sessions + c.ConsentRecords + c.Profiles
}

// AnonymizeCounts reports rows touched by anonymization.
type AnonymizeCounts struct {
	Messages   int64 `json:"messages"`
	Embeddings int64 `json:"embeddings"`
	Profiles   int64 `json:"user_profiles"`
}

// UserExport is the portable bundle handed back on a data export request.
type UserExport struct {
	UserID     string          `json:"user_id"`
	ExportedAt string          `json:"exported_at"`
	Profile    *UserProfile    `json:"profile,omitempty"`
	Sessions   []Session       `json:"sessions"`
	Messages   []Message       `json:"messages"`
	Consents   []ConsentRecord `json:"consent_records"`
	Audit      []AuditLog      `json:"audit_logs"`
	ArchiveURL string          `json:"archive_url,omitempty"`
}
