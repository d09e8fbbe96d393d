package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/resumes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationRepairResumeCurrentFlags = "2026-10-01_repair_resume_current_flags"
	migrationRecomputeResumeVersions  = "2026-10-01_recompute_resume_versions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) (int, error)
}

var migrations = []migrationDefinition{
	{name: migrationRepairResumeCurrentFlags, apply: resumes.RepairCurrentFlags},
	{name: migrationRecomputeResumeVersions, apply: resumes.RecomputeVersions},
}

// applyMigrations runs each named migration once, recording it in db_migrations
// in the same transaction as its changes.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		changed := 0
		err = db.Transaction(func(tx *gorm.DB) error {
			count, applyErr := migration.apply(tx)
			if applyErr != nil {
				return applyErr
			}
			changed = count
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied",
				zap.String("migration", migration.name),
				zap.Int("rows_changed", changed))
		}
	}
	return nil
}
