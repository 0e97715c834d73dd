package domain

import (
	"context"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoFilename       = errors.New("file has no name")
	ErrUnsafeFilename   = errors.New("filename contains path separators")
	ErrBlockedExtension = errors.New("file type is blocked")
	ErrUnknownExtension = errors.New("file type is not supported")
	ErrFileTooLarge     = errors.New("file exceeds the maximum upload size")
	ErrQuotaExceeded    = errors.New("not enough storage quota remaining")
	ErrObjectExists     = errors.New("a file with this name already exists")
	ErrObjectNotFound   = errors.New("file not found")
)

type UploadRequest struct {
	UserID      snowflake.ID
	Username    string
	Filename    string
	ContentType string
	SizeBytes   int64
	Body        io.Reader
}

// ListResponse mirrors what the dashboard file browser renders.
type ListResponse struct {
	Username    string           `json:"username"`
	TotalFiles  int              `json:"total_files"`
	TotalSizeKB float64          `json:"total_size_kb"`
	TotalSizeMB float64          `json:"total_size_mb"`
	Files       []*StorageObject `json:"files"`
}

// Download carries the object stream plus the metadata needed for the
// Content-Disposition header. Callers must close Body.
type Download struct {
	Filename    string
	SizeBytes   int64
	ContentType string
	Body        io.ReadCloser
}

// StorageSummary reports quota consumption for one user.
type StorageSummary struct {
	UsedBytes      int64   `json:"used_bytes"`
	UsedReadable   string  `json:"used_readable"`
	QuotaBytes     int64   `json:"quota_bytes"`
	QuotaReadable  string  `json:"quota_readable"`
	PercentUsed    float64 `json:"percent_used"`
	RemainingBytes int64   `json:"remaining_bytes"`
}

type Service interface {
	// Upload validates the file, writes it to the object store, catalogs it,
	// and refreshes today's storage snapshot.
	Upload(ctx context.Context, req UploadRequest) (*StorageObject, error)
	List(ctx context.Context, userID snowflake.ID, username string) (*ListResponse, error)
	Download(ctx context.Context, userID snowflake.ID, username, filename string) (*Download, error)
	Delete(ctx context.Context, userID snowflake.ID, username, filename string) error
	// Summary compares the live bucket total against the quota.
	Summary(ctx context.Context, username string) (StorageSummary, error)
}
