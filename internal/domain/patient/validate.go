package patient

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ehr/patients/internal/platform/apperr"
)

const (
	NameMinLen = 4
	NameMaxLen = 10
	MinScore   = 100
)

// Validate checks a submitted form and returns the errors per field. An
// empty result means the form may be persisted.
func Validate(f Form) apperr.FieldErrors {
	errs := apperr.FieldErrors{}

	if f.ID != "" {
		if id, err := strconv.ParseInt(f.ID, 10, 64); err != nil || id <= 0 {
			errs.Add("id", "must be a positive number")
		}
	}

	switch n := utf8.RuneCountInString(f.Name); {
	case strings.TrimSpace(f.Name) == "":
		errs.Add("name", "must not be empty")
	case n < NameMinLen || n > NameMaxLen:
		errs.Add("name", fmt.Sprintf("size must be between %d and %d", NameMinLen, NameMaxLen))
	}

	if f.BirthDate != "" {
		if _, err := time.Parse(DateLayout, f.BirthDate); err != nil {
			errs.Add("birthDate", "must be a date in yyyy-MM-dd format")
		}
	}

	score, err := strconv.Atoi(strings.TrimSpace(f.Score))
	switch {
	case err != nil:
		errs.Add("score", "must be a number")
	case score < MinScore:
		errs.Add("score", fmt.Sprintf("must be greater than or equal to %d", MinScore))
	}

	return errs
}
