package model

import "time"

// Account holds a user's credit balance. UserID is the stable subject issued
// by the authentication provider.
type Account struct {
	UserID    string    `gorm:"primaryKey;size:128" json:"user_id"`
	Credits   int       `gorm:"not null;default:0;check:chk_accounts_credits_non_negative,credits >= 0" json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}
