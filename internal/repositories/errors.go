package repositories

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
)

// notFound maps gorm's missing-record error onto ErrNotFound
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}

// duplicate maps unique violations onto ErrDuplicateKey. It relies on the
// gorm config having TranslateError enabled.
func duplicate(err error, msg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(ErrDuplicateKey, msg)
	}
	return errors.Wrap(err, msg)
}

func readDB(db, readOnlyDB *gorm.DB) *gorm.DB {
	if readOnlyDB == nil {
		return db
	}
	return readOnlyDB
}
