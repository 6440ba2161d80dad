// Package validation checks a candidate user record against the field rules
// before anything is written to storage.
//
// Rules are declared as validate:"..." tags on types.UserInput and run by
// go-playground/validator. Every field is checked independently, so a
// request with several problems gets every message back at once, in field
// order:
//
//	email presence → email format → first name → last name →
//	age presence → age range → created-at format
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/chirva-sf/example-php-js/internal/types"
	"github.com/go-playground/validator/v10"
)

// emailPattern is intentionally narrower than validator's built-in "email"
// tag: a local part, an "@", and a domain with at least one dot followed by
// a 2+ letter TLD.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves every request.
var validate = newValidator()

// Error is returned by Validate when one or more rules fail.
// Messages keeps the order in which the rules were evaluated.
type Error struct {
	Messages []string
}

// Error joins all messages into the single string the API sends back.
func (e *Error) Error() string {
	return strings.Join(e.Messages, ", ")
}

// Validate checks in and returns nil if it passes, or an *Error listing
// every violated rule.
func Validate(in types.UserInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: only possible if a non-struct is passed.
		return fmt.Errorf("validation.Validate: %w", err)
	}

	verr := &Error{Messages: make([]string, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Messages = append(verr.Messages, message(fe))
	}

	return verr
}

// message converts one validator.FieldError into the fixed human-readable
// sentence for that rule. fe.Field() returns the label:"..." tag value.
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Required field %q is missing", fe.Field())
	case "useremail":
		return fmt.Sprintf("Invalid email format in field %q", fe.Field())
	case "min", "max":
		return fmt.Sprintf("Field %q must be between 5 and 120 years", fe.Field())
	case "displaytime":
		return fmt.Sprintf("Invalid date and time format in field %q", fe.Field())
	default:
		return fmt.Sprintf("Field %q is invalid", fe.Field())
	}
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if label := field.Tag.Get("label"); label != "" {
			return label
		}
		return field.Name
	})

	mustRegister(v, "useremail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})

	mustRegister(v, "displaytime", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := types.ParseDisplay(s, nil)
		return err == nil
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}
