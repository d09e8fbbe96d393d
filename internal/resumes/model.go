package resumes

import (
	"fmt"
	"strings"
	"time"
)

const (
	// LabelCurrent marks the resume version advertised to visitors.
	LabelCurrent = "Current"
	// LabelPrevious marks every other resume version.
	LabelPrevious = "Previous"

	dateOnlyLayout = "2006-01-02"
)

// Version models one uploaded resume revision.
type Version struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Version   string    `gorm:"column:version;size:32;not null;default:''"`
	Label     string    `gorm:"column:label;size:32;not null"`
	Date      time.Time `gorm:"column:date;not null;index:idx_resume_versions_rank,priority:1"`
	Filename  string    `gorm:"column:filename;size:1024;not null;default:''"`
	Changelog string    `gorm:"column:changelog;type:text;not null"`
	IsCurrent bool      `gorm:"column:is_current;not null;default:false;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_resume_versions_rank,priority:2"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "resume_versions"
}

// Input describes the admin-supplied fields for create and update.
type Input struct {
	Date      string
	Filename  string
	Changelog string
	IsCurrent bool
}

type validatedInput struct {
	date      time.Time
	filename  string
	changelog string
	isCurrent bool
}

func (in Input) validate() (validatedInput, error) {
	date, err := ParseDate(in.Date)
	if err != nil {
		return validatedInput{}, err
	}
	changelog := strings.TrimSpace(in.Changelog)
	if changelog == "" {
		return validatedInput{}, fmt.Errorf("%w: changelog is required", ErrValidation)
	}
	return validatedInput{
		date:      date,
		filename:  strings.TrimSpace(in.Filename),
		changelog: changelog,
		isCurrent: in.IsCurrent,
	}, nil
}

// ParseDate accepts RFC 3339 timestamps or bare calendar dates and returns UTC.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: date %q is not a valid calendar date", ErrValidation, trimmed)
}

func labelFor(isCurrent bool) string {
	if isCurrent {
		return LabelCurrent
	}
	return LabelPrevious
}
