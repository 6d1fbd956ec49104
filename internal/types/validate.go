package types

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the hard limits the backend enforces on a lead before it
// is submitted. It returns validator.ValidationErrors on failure.
func (l *CandidateLead) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(l)
}
