package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// translate maps gorm errors onto the store error taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

var (
	errDuplicateID   = errors.New("duplicate id")
	errDuplicateUser = errors.New("username already taken")
)
