package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	appErrors "github.com/smiict/course-api/pkg/errors"
	"github.com/smiict/course-api/pkg/storage"
)

const catalogCacheKey = "catalog:courses:%s"

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
}

// CreateCourseRequest is the admin payload for adding a course.
type CreateCourseRequest struct {
	Title       string  `json:"title" validate:"required,min=3"`
	Description string  `json:"description" validate:"required"`
	Duration    string  `json:"duration" validate:"required"`
	Price       float64 `json:"price" validate:"gte=0"`
}

// UpdateCourseRequest is the admin payload for editing a course.
type UpdateCourseRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3"`
	Description *string  `json:"description"`
	Duration    *string  `json:"duration"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
}

type cachedCatalog struct {
	Courses []models.Course `json:"courses"`
	Total   int             `json:"total"`
}

// CourseService manages the course catalog. Public catalog reads go
// through a short-lived redis cache; any write invalidates it.
type CourseService struct {
	repo     courseRepository
	cache    *redis.Client
	files    *storage.LocalStorage
	validate *validator.Validate
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewCourseService creates a CourseService. cache may be nil, in which
// case every read hits the database.
func NewCourseService(repo courseRepository, cache *redis.Client, files *storage.LocalStorage, cacheTTL time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		repo:     repo,
		cache:    cache,
		files:    files,
		validate: validator.New(),
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses for the public catalog, served from cache when
// the filter allows it.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	key := s.cacheKey(filter)
	if key != "" {
		if cached := s.readCache(ctx, key); cached != nil {
			return cached.Courses, cached.Total, nil
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if key != "" {
		s.writeCache(ctx, key, cachedCatalog{Courses: courses, Total: total})
	}
	return courses, total, nil
}

// Create adds a course and invalidates the catalog cache.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Duration:    req.Duration,
		Price:       req.Price,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCache(ctx)
	s.logger.Sugar().Infow("course created", "course_id", course.ID, "title", course.Title)
	return course, nil
}

// Update edits a course and invalidates the catalog cache. Price edits
// never affect applications already snapshotted at payment time.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Duration != nil {
		course.Duration = *req.Duration
	}
	if req.Price != nil {
		course.Price = *req.Price
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCache(ctx)
	return course, nil
}

// Delete removes a course, its stored image, and invalidates the cache.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	course, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	if course.ImageURL != nil && s.files != nil {
		if err := s.files.Remove(filepath.Base(*course.ImageURL)); err != nil {
			s.logger.Sugar().Warnw("failed to remove course image", "course_id", id, "error", err)
		}
	}

	s.invalidateCache(ctx)
	return nil
}

// AttachImage stores an uploaded image for a course and records its URL.
func (s *CourseService) AttachImage(ctx context.Context, id, filename string, r io.Reader) (*models.Course, error) {
	if s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "file storage is not configured")
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported image type")
	}

	stored, err := s.files.SaveStream(filename, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}

	if course.ImageURL != nil {
		if err := s.files.Remove(filepath.Base(*course.ImageURL)); err != nil {
			s.logger.Sugar().Warnw("failed to remove previous image", "course_id", id, "error", err)
		}
	}

	url := "/uploads/" + stored
	course.ImageURL = &url
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCache(ctx)
	return course, nil
}

// cacheKey returns a key for cacheable catalog reads, or "" when the
// filter makes caching pointless.
func (s *CourseService) cacheKey(filter models.CourseFilter) string {
	if s.cache == nil || s.cacheTTL <= 0 {
		return ""
	}
	if filter.Search != "" || filter.MinPrice != nil || filter.MaxPrice != nil {
		return ""
	}
	return fmt.Sprintf(catalogCacheKey, fmt.Sprintf("p%d_s%d_%s_%s", filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder))
}

func (s *CourseService) readCache(ctx context.Context, key string) *cachedCatalog {
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Sugar().Debugw("catalog cache read failed", "error", err)
		}
		return nil
	}
	var cached cachedCatalog
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	return &cached
}

func (s *CourseService) writeCache(ctx context.Context, key string, value cachedCatalog) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Sugar().Debugw("catalog cache write failed", "error", err)
	}
}

func (s *CourseService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, fmt.Sprintf(catalogCacheKey, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Sugar().Debugw("catalog cache invalidation failed", "key", iter.Val(), "error", err)
		}
	}
}
