package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/unishare/unishare-api/internal/dto"
	"github.com/unishare/unishare-api/internal/models"
	appErrors "github.com/unishare/unishare-api/pkg/errors"
)

const (
	cacheKeyList   = "resources:list"
	cacheKeyLatest = "resources:latest"
	latestLimit    = 3
)

type resourceStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, res *models.Resource) error
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	List(ctx context.Context) ([]models.ResourceView, error)
	Latest(ctx context.Context, limit int) ([]models.ResourceView, error)
	UpdateTitleDescription(ctx context.Context, id string, title, description *string) error
	SoftDelete(ctx context.Context, id string) error
}

type chainResolver interface {
	ResolveChainTx(ctx context.Context, tx *sqlx.Tx, in ResolveInput) (*models.ResolvedChain, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type resourceFileStorage interface {
	SaveStream(path string, r io.Reader) (string, error)
	Open(path string) (*os.File, error)
	Delete(path string) error
}

type resourceSignedURLSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, expiresAt time.Time, err error)
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// FileUpload carries upload metadata and the stream reader.
type FileUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// ResourceDownload bundles a stored file handle with response metadata.
type ResourceDownload struct {
	File      *os.File
	Filename  string
	SizeBytes int64
	ExpiresAt time.Time
}

// ResourceServiceConfig holds validation parameters and URL construction.
type ResourceServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// ResourceService implements the resource write pipeline, the query paths
// and the owner-or-admin mutation gate.
type ResourceService struct {
	repo      resourceStore
	catalog   chainResolver
	tx        txRunner
	storage   resourceFileStorage
	signer    resourceSignedURLSigner
	cache     listCache
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ResourceServiceConfig
	mimeSet   map[string]struct{}
}

// NewResourceService constructs the service with defaults.
func NewResourceService(repo resourceStore, catalog chainResolver, tx txRunner, storage resourceFileStorage, signer resourceSignedURLSigner, cache listCache, validate *validator.Validate, logger *zap.Logger, cfg ResourceServiceConfig) *ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &ResourceService{
		repo:      repo,
		catalog:   catalog,
		tx:        tx,
		storage:   storage,
		signer:    signer,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		mimeSet:   mimeSet,
	}
}

// List returns all non-deleted resources, newest first.
func (s *ResourceService) List(ctx context.Context) ([]models.ResourceView, error) {
	var cached []models.ResourceView
	if s.cacheGet(ctx, cacheKeyList, &cached) {
		return cached, nil
	}
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	s.cacheSet(ctx, cacheKeyList, rows)
	return rows, nil
}

// Latest returns the newest resources capped at three rows.
func (s *ResourceService) Latest(ctx context.Context) ([]models.ResourceView, error) {
	var cached []models.ResourceView
	if s.cacheGet(ctx, cacheKeyLatest, &cached) {
		return cached, nil
	}
	rows, err := s.repo.Latest(ctx, latestLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list latest resources")
	}
	s.cacheSet(ctx, cacheKeyLatest, rows)
	return rows, nil
}

// CreateLink creates an external-link resource. Validation runs before the
// transaction opens, so a missing field never reaches entity resolution.
func (s *ResourceService) CreateLink(ctx context.Context, req dto.CreateLinkResourceRequest, actor *models.JWTClaims) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	var created *models.Resource
	err := s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		chain, err := s.catalog.ResolveChainTx(ctx, tx, ResolveInput{
			SubjectCode: req.SubjectCode,
			StartYear:   req.StartYear,
			EndYear:     req.EndYear,
			UnitNumber:  req.UnitNumber,
		})
		if err != nil {
			return err
		}

		url := req.ExternalURL
		res := &models.Resource{
			Title:         req.Title,
			Description:   req.Description,
			Kind:          models.KindExternalLink,
			ResourceType:  normalizeType(req.ResourceType),
			SubjectID:     chain.SubjectID,
			OfferingID:    &chain.OfferingID,
			UnitID:        chain.UnitID,
			ExternalURL:   &url,
			ContributorID: actor.UserID,
		}
		if err := s.repo.CreateTx(ctx, tx, res); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
		}
		created = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	return created, nil
}

// CreateFile creates a file resource. The MIME type and size are rejected
// before any entity resolution is attempted; the upload and the row insert
// share one transaction, and a completed upload is deleted again when a
// later step fails.
func (s *ResourceService) CreateFile(ctx context.Context, req dto.CreateFileResourceRequest, upload FileUpload, actor *models.JWTClaims) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	if _, allowed := s.mimeSet[strings.ToLower(strings.TrimSpace(upload.MimeType))]; !allowed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only PDF uploads are accepted")
	}

	var created *models.Resource
	var storedPath string
	err := s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		chain, err := s.catalog.ResolveChainTx(ctx, tx, ResolveInput{
			SubjectCode: req.SubjectCode,
			StartYear:   req.StartYear,
			EndYear:     req.EndYear,
			UnitNumber:  req.UnitNumber,
		})
		if err != nil {
			return err
		}

		path := buildStoragePath(chain, upload.Filename, time.Now())
		if _, err := s.storage.SaveStream(path, upload.Content); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
		}
		storedPath = path

		res := &models.Resource{
			Title:         req.Title,
			Description:   req.Description,
			Kind:          models.KindFile,
			ResourceType:  normalizeType(req.ResourceType),
			SubjectID:     chain.SubjectID,
			OfferingID:    &chain.OfferingID,
			UnitID:        chain.UnitID,
			StoragePath:   &path,
			ContributorID: actor.UserID,
		}
		if err := s.repo.CreateTx(ctx, tx, res); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
		}
		created = res
		return nil
	})
	if err != nil {
		// The tx never committed, so no row references the object; a commit
		// failure lands here too, not just errors from inside the closure.
		if storedPath != "" {
			if delErr := s.storage.Delete(storedPath); delErr != nil {
				s.logger.Warn("failed to remove orphaned upload", zap.String("path", storedPath), zap.Error(delErr))
			}
		}
		return nil, err
	}
	s.invalidateListings(ctx)
	return created, nil
}

// SignedURL issues a time-limited download URL for a file resource.
func (s *ResourceService) SignedURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	res, err := s.getResource(ctx, id)
	if err != nil {
		return "", err
	}
	if res.Kind != models.KindFile {
		return "", appErrors.Clone(appErrors.ErrValidation, "resource is not a file")
	}
	if res.IsDeleted {
		return "", appErrors.Clone(appErrors.ErrGone, "resource has been deleted")
	}
	if res.StoragePath == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "file resource has no storage path")
	}
	token, _, err := s.signer.Generate(res.ID, *res.StoragePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/resources/%s/download?token=%s", base, res.ID, token), nil
}

// Download validates the signed token and opens the stored file.
func (s *ResourceService) Download(ctx context.Context, id, token string) (*ResourceDownload, error) {
	resourceID, relPath, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	res, err := s.getResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrGone, "resource has been deleted")
	}
	if resourceID != res.ID || res.StoragePath == nil || relPath != *res.StoragePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read stored file metadata")
	}
	return &ResourceDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

// Update patches title/description when the actor passes the mutation gate.
func (s *ResourceService) Update(ctx context.Context, id string, req dto.UpdateResourceRequest, actor *models.JWTClaims) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Title == nil && req.Description == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	res, err := s.getResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.IsDeleted {
		return nil, appErrors.ErrNotFound
	}
	if !CanMutate(res, actor) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.repo.UpdateTitleDescription(ctx, id, req.Title, req.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update resource")
	}
	updated, err := s.getResource(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	return updated, nil
}

// Delete soft-deletes the resource when the actor passes the mutation gate.
// The stored file stays in place.
func (s *ResourceService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	res, err := s.getResource(ctx, id)
	if err != nil {
		return err
	}
	if res.IsDeleted {
		return appErrors.ErrNotFound
	}
	if !CanMutate(res, actor) {
		return appErrors.ErrForbidden
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resource")
	}
	s.invalidateListings(ctx)
	return nil
}

// CanMutate reports whether the acting identity may update or delete the
// resource: admins always, everyone else only for rows they contributed.
func CanMutate(res *models.Resource, actor *models.JWTClaims) bool {
	if res == nil || actor == nil {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	return res.ContributorID == actor.UserID
}

func (s *ResourceService) getResource(ctx context.Context, id string) (*models.Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	return res, nil
}

func (s *ResourceService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("resource cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *ResourceService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("resource cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *ResourceService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "resources:*"); err != nil {
		s.logger.Warn("resource cache invalidation failed", zap.Error(err))
	}
}

// buildStoragePath lays uploads out as
// {subjectID}/{offeringID}[/{unitID}]/{unixTimestamp}-{sanitizedFilename}.
func buildStoragePath(chain *models.ResolvedChain, filename string, now time.Time) string {
	parts := []string{
		fmt.Sprintf("%d", chain.SubjectID),
		fmt.Sprintf("%d", chain.OfferingID),
	}
	if chain.UnitID != nil {
		parts = append(parts, fmt.Sprintf("%d", *chain.UnitID))
	}
	parts = append(parts, fmt.Sprintf("%d-%s", now.Unix(), sanitizeFilename(filename)))
	return strings.Join(parts, "/")
}

// sanitizeFilename replaces every character outside [A-Za-z0-9._-] with an
// underscore, one for one.
func sanitizeFilename(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func normalizeType(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return models.TypeOther
	}
	return t
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Field() + " is required"
	}
	return "invalid payload"
}
