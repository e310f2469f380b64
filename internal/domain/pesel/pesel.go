// Package pesel validates Polish national identification numbers and
// extracts the birth date and gender encoded in them.
//
// Layout: RRMMDDPPPPK. RRMMDD is the birth date with the century folded
// into the month, PPPP is a serial whose last digit encodes gender and K is
// the check digit.
package pesel

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a validation failure.
type Kind string

const (
	KindRequired            Kind = "required"
	KindLength              Kind = "length"
	KindDigits              Kind = "digits"
	KindChecksum            Kind = "checksum"
	KindBirthDateUnreadable Kind = "birth_date_unreadable"
	KindBirthDateMismatch   Kind = "birth_date_mismatch"
)

// ValidationError is returned by every validator in this package.
type ValidationError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Message }

// Is matches on Kind so callers can use errors.Is with the sentinels below.
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrRequired            = &ValidationError{Kind: KindRequired, Message: "PESEL is required"}
	ErrLength              = &ValidationError{Kind: KindLength, Message: "PESEL must consist of 11 digits"}
	ErrDigits              = &ValidationError{Kind: KindDigits, Message: "PESEL may contain digits only"}
	ErrChecksum            = &ValidationError{Kind: KindChecksum, Message: "PESEL is invalid: check digit does not match"}
	ErrBirthDateUnreadable = &ValidationError{Kind: KindBirthDateUnreadable, Message: "cannot extract a birth date from PESEL"}
	ErrBirthDateMismatch   = &ValidationError{Kind: KindBirthDateMismatch, Message: "birth date does not match PESEL"}
)

// Length is the number of digits in a PESEL.
const Length = 11

var weights = [10]int{1, 3, 7, 9, 1, 3, 7, 9, 1, 3}

// Gender as encoded by the tenth digit.
type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

// centuryBands maps the month field ranges to the century they encode.
var centuryBands = []struct {
	lo, hi  int
	century int
	offset  int
}{
	{1, 12, 1900, 0},
	{21, 32, 2000, 20},
	{41, 52, 2100, 40},
	{61, 72, 2200, 60},
	{81, 92, 1800, 80},
}

func normalize(id string) string { return strings.TrimSpace(id) }

// ValidateFormat checks that id, after trimming surrounding whitespace, is
// exactly eleven decimal digits.
func ValidateFormat(id string) error {
	id = normalize(id)
	if id == "" {
		return ErrRequired
	}
	if len(id) != Length {
		return ErrLength
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return ErrDigits
		}
	}
	return nil
}

// CheckDigit computes the expected eleventh digit for the first ten digits
// of a well-formed id.
func CheckDigit(id string) int {
	sum := 0
	for i, w := range weights {
		sum += int(id[i]-'0') * w
	}
	return (10 - sum%10) % 10
}

// ValidateChecksum validates the format and then the check digit.
func ValidateChecksum(id string) error {
	if err := ValidateFormat(id); err != nil {
		return err
	}
	id = normalize(id)
	if CheckDigit(id) != int(id[10]-'0') {
		return ErrChecksum
	}
	return nil
}

// IsValid reports whether id passes ValidateChecksum.
func IsValid(id string) bool {
	return ValidateChecksum(id) == nil
}

// BirthDate decodes the birth date. It returns false when the id is
// malformed, the month falls outside every century band or the day and
// month do not form a calendar date.
func BirthDate(id string) (time.Time, bool) {
	if ValidateFormat(id) != nil {
		return time.Time{}, false
	}
	id = normalize(id)

	year := twoDigits(id[0:2])
	month := twoDigits(id[2:4])
	day := twoDigits(id[4:6])

	decoded := false
	for _, b := range centuryBands {
		if month >= b.lo && month <= b.hi {
			year += b.century
			month -= b.offset
			decoded = true
			break
		}
	}
	if !decoded || day < 1 {
		return time.Time{}, false
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// GenderOf decodes the gender digit; odd is male, even is female.
func GenderOf(id string) (Gender, bool) {
	if ValidateFormat(id) != nil {
		return "", false
	}
	id = normalize(id)
	if (id[9]-'0')%2 == 0 {
		return Female, true
	}
	return Male, true
}

// ValidateConsistency checks that the birth date encoded in id equals
// claimed. Only the calendar date of claimed is compared.
func ValidateConsistency(id string, claimed time.Time) error {
	extracted, ok := BirthDate(id)
	if !ok {
		return ErrBirthDateUnreadable
	}
	cy, cm, cd := claimed.Date()
	if extracted.Year() != cy || extracted.Month() != cm || extracted.Day() != cd {
		return &ValidationError{
			Kind:    KindBirthDateMismatch,
			Message: fmt.Sprintf("birth date does not match PESEL, PESEL indicates %s", extracted.Format("02.01.2006")),
		}
	}
	return nil
}

// Validate is the registration check: checksum first, then consistency
// with the declared birth date.
func Validate(id string, claimed time.Time) error {
	if err := ValidateChecksum(id); err != nil {
		return err
	}
	return ValidateConsistency(id, claimed)
}

func twoDigits(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}
