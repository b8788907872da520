package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isDuplicateKey detects unique violations. Dialects with error translation
// return gorm.ErrDuplicatedKey; the string checks cover drivers without it.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
