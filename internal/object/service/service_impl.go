package service

import (
	"context"
	"math"
	"mime"
	"path/filepath"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/config"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	"github.com/billflow/billflow/internal/objectstore"
	obsmetrics "github.com/billflow/billflow/internal/observability/metrics"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	"github.com/billflow/billflow/pkg/db"
	"github.com/billflow/billflow/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Store objectstore.Store
	Usage usagedomain.Service
	Quota config.QuotaConfig
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	store objectstore.Store
	usage usagedomain.Service
	quota config.QuotaConfig

	objects repository.Repository[objectdomain.StorageObject]
}

func NewService(p ServiceParam) objectdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("object.service"),
		genID: p.GenID,
		clock: p.Clock,
		store: p.Store,
		usage: p.Usage,
		quota: p.Quota,

		objects: repository.ProvideStore[objectdomain.StorageObject](p.DB),
	}
}

func (s *Service) Upload(ctx context.Context, req objectdomain.UploadRequest) (*objectdomain.StorageObject, error) {
	if err := validateFilename(req.Filename); err != nil {
		return nil, err
	}
	if req.SizeBytes == 0 {
		return nil, objectdomain.ErrEmptyFile
	}
	if req.SizeBytes > s.quota.MaxFileSizeBytes {
		return nil, objectdomain.ErrFileTooLarge
	}

	used, err := s.store.TotalBytes(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if req.SizeBytes > s.quota.StorageQuotaBytes-used {
		return nil, objectdomain.ErrQuotaExceeded
	}

	filename := sanitizeFilename(req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	existing, err := s.objects.FindOne(ctx, &objectdomain.StorageObject{UserID: req.UserID, Filename: filename})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, objectdomain.ErrObjectExists
	}

	if err := s.store.Put(ctx, req.Username, filename, req.Body, req.SizeBytes, contentType); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	object := &objectdomain.StorageObject{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Filename:  filename,
		ObjectKey: objectstore.BucketName(req.Username) + "/" + filename,
		SizeBytes: req.SizeBytes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.objects.Create(ctx, object); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, objectdomain.ErrObjectExists
		}
		return nil, err
	}

	if err := s.meterAPICall(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := s.snapshot(ctx, req.UserID, req.Username); err != nil {
		return nil, err
	}
	s.log.Info("object uploaded",
		zap.String("username", req.Username),
		zap.String("filename", filename),
		zap.Int64("size_bytes", req.SizeBytes),
	)
	return object, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, username string) (*objectdomain.ListResponse, error) {
	if err := s.meterAPICall(ctx, userID); err != nil {
		return nil, err
	}

	files, err := s.objects.Find(ctx, &objectdomain.StorageObject{UserID: userID},
		repository.WithOrder("filename asc"),
	)
	if err != nil {
		return nil, err
	}

	var totalBytes int64
	for _, file := range files {
		totalBytes += file.SizeBytes
	}

	return &objectdomain.ListResponse{
		Username:    username,
		TotalFiles:  len(files),
		TotalSizeKB: math.Round(float64(totalBytes)/1024*100) / 100,
		TotalSizeMB: math.Round(float64(totalBytes)/(1024*1024)*10000) / 10000,
		Files:       files,
	}, nil
}

func (s *Service) Download(ctx context.Context, userID snowflake.ID, username, filename string) (*objectdomain.Download, error) {
	object, err := s.objects.FindOne(ctx, &objectdomain.StorageObject{UserID: userID, Filename: filename})
	if err != nil {
		return nil, err
	}
	if object == nil {
		return nil, objectdomain.ErrObjectNotFound
	}

	if err := s.meterAPICall(ctx, userID); err != nil {
		return nil, err
	}

	body, err := s.store.Get(ctx, username, filename)
	if err != nil {
		if objectstore.IsNoSuchKey(err) {
			return nil, objectdomain.ErrObjectNotFound
		}
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &objectdomain.Download{
		Filename:    object.Filename,
		SizeBytes:   object.SizeBytes,
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (s *Service) Delete(ctx context.Context, userID snowflake.ID, username, filename string) error {
	object, err := s.objects.FindOne(ctx, &objectdomain.StorageObject{UserID: userID, Filename: filename})
	if err != nil {
		return err
	}
	if object == nil {
		return objectdomain.ErrObjectNotFound
	}

	if err := s.store.Delete(ctx, username, filename); err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, int64(object.ID)); err != nil {
		return err
	}

	if err := s.meterAPICall(ctx, userID); err != nil {
		return err
	}
	if err := s.snapshot(ctx, userID, username); err != nil {
		return err
	}
	s.log.Info("object deleted",
		zap.String("username", username),
		zap.String("filename", filename),
	)
	return nil
}

func (s *Service) Summary(ctx context.Context, username string) (objectdomain.StorageSummary, error) {
	used, err := s.store.TotalBytes(ctx, username)
	if err != nil {
		return objectdomain.StorageSummary{}, err
	}

	quota := s.quota.StorageQuotaBytes
	percent := 0.0
	if quota > 0 {
		percent = math.Round(float64(used)/float64(quota)*10000) / 100
	}
	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}
	return objectdomain.StorageSummary{
		UsedBytes:      used,
		UsedReadable:   formatBytes(used),
		QuotaBytes:     quota,
		QuotaReadable:  formatBytes(quota),
		PercentUsed:    percent,
		RemainingBytes: remaining,
	}, nil
}

// meterAPICall charges one billable call to today's ledger row. Object
// operations are the only billable surface; auth middleware never meters.
func (s *Service) meterAPICall(ctx context.Context, userID snowflake.ID) error {
	if err := s.usage.RecordAPICall(ctx, userID); err != nil {
		return err
	}
	obsmetrics.App().IncUsageEvent(obsmetrics.UsageEventAPICall)
	return nil
}

// snapshot refreshes today's storage row from the live bucket total. A
// mutation that cannot be metered is treated as failed.
func (s *Service) snapshot(ctx context.Context, userID snowflake.ID, username string) error {
	total, err := s.store.TotalBytes(ctx, username)
	if err != nil {
		return err
	}
	if err := s.usage.RecordStorageSnapshot(ctx, userID, total); err != nil {
		return err
	}
	obsmetrics.App().IncUsageEvent(obsmetrics.UsageEventStorageSnapshot)
	return nil
}
