package resumes

import (
	"gorm.io/gorm"
)

// RepairCurrentFlags restores the single-current and label invariants on rows
// written outside the service. When several rows claim to be current, the most
// recently created one keeps the flag. It returns the number of rows changed.
func RepairCurrentFlags(tx *gorm.DB) (int, error) {
	var holders []Version
	if err := tx.Where("is_current = ?", true).
		Order("created_at DESC").
		Order("id DESC").
		Find(&holders).Error; err != nil {
		return 0, err
	}

	changed := 0
	if len(holders) > 1 {
		demoted := make([]string, 0, len(holders)-1)
		for _, holder := range holders[1:] {
			demoted = append(demoted, holder.ID)
		}
		result := tx.Model(&Version{}).
			Where("id IN ?", demoted).
			UpdateColumn("is_current", false)
		if result.Error != nil {
			return 0, result.Error
		}
		changed += int(result.RowsAffected)
	}

	for _, isCurrent := range []bool{true, false} {
		label := labelFor(isCurrent)
		result := tx.Model(&Version{}).
			Where("is_current = ? AND label <> ?", isCurrent, label).
			UpdateColumn("label", label)
		if result.Error != nil {
			return 0, result.Error
		}
		changed += int(result.RowsAffected)
	}
	return changed, nil
}
