package users

import (
	"strings"
	"time"
)

// Account is an administrator login for the portfolio back office.
type Account struct {
	Email        string     `gorm:"column:email;primaryKey;size:320;not null"`
	DisplayName  string     `gorm:"column:display_name;size:320"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null"`
	Role         string     `gorm:"column:role;size:32;not null;default:'ADMIN'"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing admin accounts.
func (Account) TableName() string {
	return "admin_accounts"
}

// normalizeEmail lowercases and trims login identifiers.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
