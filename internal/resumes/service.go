package resumes

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingAuthorizer = errors.New("authorizer is required")
	errMissingID         = errors.New("resume id is required")
	noOpLogger           = zap.NewNop()
)

// Authorizer answers whether the caller bound to ctx may mutate the ledger.
type Authorizer interface {
	IsAdmin(ctx context.Context) bool
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Authorizer Authorizer
	Logger     *zap.Logger
}

// Service owns the resume version ledger: it keeps at most one record current
// and keeps every record's version equal to its rank by date.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	authorizer Authorizer
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", ErrPersistence, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", nil, errMissingIDProvider)
	}
	if cfg.Authorizer == nil {
		return nil, newServiceError(opServiceNew, "missing_authorizer", nil, errMissingAuthorizer)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		authorizer: cfg.Authorizer,
		logger:     logger,
	}, nil
}

// List returns every resume version, most recently created first.
func (s *Service) List(ctx context.Context) ([]Version, error) {
	if s.db == nil {
		s.logError(opList, "missing_database", errMissingDatabase)
		return nil, newServiceError(opList, "missing_database", ErrPersistence, errMissingDatabase)
	}

	var versions []Version
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&versions).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", ErrPersistence, err)
	}
	return versions, nil
}

// Current returns the version flagged current, or the most recently created
// version when none is flagged.
func (s *Service) Current(ctx context.Context) (Version, error) {
	if s.db == nil {
		s.logError(opCurrent, "missing_database", errMissingDatabase)
		return Version{}, newServiceError(opCurrent, "missing_database", ErrPersistence, errMissingDatabase)
	}

	var current Version
	err := s.db.WithContext(ctx).
		Where("is_current = ?", true).
		Order("created_at DESC").
		Take(&current).Error
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opCurrent, "query_failed", err)
		return Version{}, newServiceError(opCurrent, "query_failed", ErrPersistence, err)
	}

	err = s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Version{}, newServiceError(opCurrent, "empty_ledger", ErrNotFound, err)
	}
	if err != nil {
		s.logError(opCurrent, "query_failed", err)
		return Version{}, newServiceError(opCurrent, "query_failed", ErrPersistence, err)
	}
	return current, nil
}

// Create inserts a new version, clearing any other current flag first, and
// re-ranks the whole ledger in the same transaction.
func (s *Service) Create(ctx context.Context, input Input) (Version, error) {
	if !s.isAdmin(ctx) {
		return Version{}, newServiceError(opCreate, "unauthorized", ErrUnauthorized, nil)
	}
	validated, err := input.validate()
	if err != nil {
		return Version{}, newServiceError(opCreate, "invalid_input", ErrValidation, err)
	}
	if s.db == nil {
		s.logError(opCreate, "missing_database", errMissingDatabase)
		return Version{}, newServiceError(opCreate, "missing_database", ErrPersistence, errMissingDatabase)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Version{}, newServiceError(opCreate, "id_generation_failed", ErrPersistence, err)
	}

	now := s.clock().UTC()
	var created Version
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if validated.isCurrent {
			if err := s.clearCurrent(tx, "", now); err != nil {
				s.logError(opCreate, "clear_current_failed", err, zap.String("resume_id", id))
				return newServiceError(opCreate, "clear_current_failed", ErrPersistence, err)
			}
		}

		record := Version{
			ID:        id,
			Label:     labelFor(validated.isCurrent),
			Date:      validated.date,
			Filename:  validated.filename,
			Changelog: validated.changelog,
			IsCurrent: validated.isCurrent,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opCreate, "insert_failed", err, zap.String("resume_id", id))
			return newServiceError(opCreate, "insert_failed", ErrPersistence, err)
		}

		if _, err := recomputeVersions(tx); err != nil {
			s.logError(opCreate, "recompute_failed", err, zap.String("resume_id", id))
			return newServiceError(opCreate, "recompute_failed", ErrPersistence, err)
		}

		if err := tx.Where("id = ?", id).Take(&created).Error; err != nil {
			s.logError(opCreate, "reload_failed", err, zap.String("resume_id", id))
			return newServiceError(opCreate, "reload_failed", ErrPersistence, err)
		}
		return nil
	})
	if txErr != nil {
		return Version{}, s.wrapTransactionError(opCreate, txErr)
	}

	s.loggerOrDefault().Info("resume version created",
		zap.String("resume_id", created.ID),
		zap.String("version", created.Version),
		zap.Bool("is_current", created.IsCurrent))
	return created, nil
}

// Update replaces the fields of an existing version. An empty filename keeps
// the stored file reference.
func (s *Service) Update(ctx context.Context, id string, input Input) (Version, error) {
	if !s.isAdmin(ctx) {
		return Version{}, newServiceError(opUpdate, "unauthorized", ErrUnauthorized, nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Version{}, newServiceError(opUpdate, "missing_id", ErrValidation, errMissingID)
	}
	validated, err := input.validate()
	if err != nil {
		return Version{}, newServiceError(opUpdate, "invalid_input", ErrValidation, err)
	}
	if s.db == nil {
		s.logError(opUpdate, "missing_database", errMissingDatabase)
		return Version{}, newServiceError(opUpdate, "missing_database", ErrPersistence, errMissingDatabase)
	}

	now := s.clock().UTC()
	var updated Version
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Version
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdate, "not_found", ErrNotFound, err)
		}
		if err != nil {
			s.logError(opUpdate, "select_failed", err, zap.String("resume_id", id))
			return newServiceError(opUpdate, "select_failed", ErrPersistence, err)
		}

		if validated.isCurrent {
			if err := s.clearCurrent(tx, id, now); err != nil {
				s.logError(opUpdate, "clear_current_failed", err, zap.String("resume_id", id))
				return newServiceError(opUpdate, "clear_current_failed", ErrPersistence, err)
			}
		}

		filename := validated.filename
		if filename == "" {
			filename = existing.Filename
		}
		if err := tx.Model(&Version{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"date":       validated.date,
				"filename":   filename,
				"changelog":  validated.changelog,
				"is_current": validated.isCurrent,
				"label":      labelFor(validated.isCurrent),
				"updated_at": now,
			}).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String("resume_id", id))
			return newServiceError(opUpdate, "update_failed", ErrPersistence, err)
		}

		if _, err := recomputeVersions(tx); err != nil {
			s.logError(opUpdate, "recompute_failed", err, zap.String("resume_id", id))
			return newServiceError(opUpdate, "recompute_failed", ErrPersistence, err)
		}

		if err := tx.Where("id = ?", id).Take(&updated).Error; err != nil {
			s.logError(opUpdate, "reload_failed", err, zap.String("resume_id", id))
			return newServiceError(opUpdate, "reload_failed", ErrPersistence, err)
		}
		return nil
	})
	if txErr != nil {
		return Version{}, s.wrapTransactionError(opUpdate, txErr)
	}

	s.loggerOrDefault().Info("resume version updated",
		zap.String("resume_id", updated.ID),
		zap.String("version", updated.Version),
		zap.Bool("is_current", updated.IsCurrent))
	return updated, nil
}

// Delete removes a version permanently and re-densifies the remaining ranks.
// Deleting the current version leaves the ledger without a current record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !s.isAdmin(ctx) {
		return newServiceError(opDelete, "unauthorized", ErrUnauthorized, nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return newServiceError(opDelete, "missing_id", ErrValidation, errMissingID)
	}
	if s.db == nil {
		s.logError(opDelete, "missing_database", errMissingDatabase)
		return newServiceError(opDelete, "missing_database", ErrPersistence, errMissingDatabase)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&Version{})
		if result.Error != nil {
			s.logError(opDelete, "delete_failed", result.Error, zap.String("resume_id", id))
			return newServiceError(opDelete, "delete_failed", ErrPersistence, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opDelete, "not_found", ErrNotFound, gorm.ErrRecordNotFound)
		}

		if _, err := recomputeVersions(tx); err != nil {
			s.logError(opDelete, "recompute_failed", err, zap.String("resume_id", id))
			return newServiceError(opDelete, "recompute_failed", ErrPersistence, err)
		}
		return nil
	})
	if txErr != nil {
		return s.wrapTransactionError(opDelete, txErr)
	}

	s.loggerOrDefault().Info("resume version deleted", zap.String("resume_id", id))
	return nil
}

// Recompute re-derives every version string and reports how many rows changed.
func (s *Service) Recompute(ctx context.Context) (int, error) {
	if s.db == nil {
		s.logError(opRecompute, "missing_database", errMissingDatabase)
		return 0, newServiceError(opRecompute, "missing_database", ErrPersistence, errMissingDatabase)
	}

	changed := 0
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := recomputeVersions(tx)
		if err != nil {
			s.logError(opRecompute, "recompute_failed", err)
			return newServiceError(opRecompute, "recompute_failed", ErrPersistence, err)
		}
		changed = count
		return nil
	})
	if txErr != nil {
		return 0, s.wrapTransactionError(opRecompute, txErr)
	}
	return changed, nil
}

// RecomputeVersions runs the recompute pass on an open transaction without a service.
func RecomputeVersions(tx *gorm.DB) (int, error) {
	return recomputeVersions(tx)
}

func recomputeVersions(tx *gorm.DB) (int, error) {
	var records []Version
	if err := tx.Order("date ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return 0, err
	}

	changed := rankVersions(records)
	for _, record := range changed {
		if err := tx.Model(&Version{}).
			Where("id = ?", record.ID).
			UpdateColumn("version", record.Version).Error; err != nil {
			return 0, err
		}
	}
	return len(changed), nil
}

func (s *Service) clearCurrent(tx *gorm.DB, exceptID string, now time.Time) error {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&Version{}).
		Where("is_current = ?", true)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}

	var holders []string
	if err := query.Pluck("id", &holders).Error; err != nil {
		return err
	}
	if len(holders) == 0 {
		return nil
	}

	return tx.Model(&Version{}).
		Where("id IN ?", holders).
		Updates(map[string]interface{}{
			"is_current": false,
			"label":      LabelPrevious,
			"updated_at": now,
		}).Error
}

func (s *Service) wrapTransactionError(operation string, err error) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	s.logError(operation, "transaction_failed", err)
	return newServiceError(operation, "transaction_failed", ErrPersistence, err)
}

func (s *Service) isAdmin(ctx context.Context) bool {
	if s.authorizer == nil {
		return false
	}
	return s.authorizer.IsAdmin(ctx)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("resumes service error", attrs...)
}
