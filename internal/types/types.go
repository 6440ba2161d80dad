// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, validation and the page renderer can all import
// types without depending on each other.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout is the textual form of a creation timestamp, both when it
// is shown on the page and when a client overrides it on update
// ("dd.mm.yyyy HH:MM").
const DisplayLayout = "02.01.2006 15:04"

// AgeInvalid marks an age that was submitted but is not a whole number.
// It is non-zero, so the presence check passes and the range check reports it.
const AgeInvalid Age = -1

// User represents a persisted user record.
//
// CreatedAt is the raw timestamp from the database and never leaves the
// server; Created is its display form, which is what the JSON API and the
// page show.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"-"`
	Created   string    `json:"created"`
}

// UserInput is the candidate record submitted by a client on create or update.
//
// Struct tags:
//
//  1. json:"..."     — wire names used by the page scripting.
//  2. label:"..."    — the field name used in validation messages.
//  3. validate:"..." — rules checked by go-playground/validator, in field
//     order; within a field the first failing rule wins, so a missing
//     email never also reports a bad format.
//
// Created is a pointer so "not sent" (nil) can be told apart from
// "sent empty" (override with the current time).
type UserInput struct {
	Email     string  `json:"email"             label:"Email"      validate:"required,useremail"`
	FirstName string  `json:"first_name"        label:"First name" validate:"required"`
	LastName  string  `json:"last_name"         label:"Last name"  validate:"required"`
	Age       Age     `json:"age"               label:"Age"        validate:"required,min=5,max=120"`
	Created   *string `json:"created,omitempty" label:"Created"    validate:"omitempty,displaytime"`
}

// UnmarshalJSON implements json.Unmarshaler.
//
// Any well-formed JSON decodes without error; what was sent is judged by
// validation, not here. A body that is not an object decodes to the zero
// value. Numbers and booleans in the text fields keep their literal text;
// arrays, objects and null count as not sent. Created keeps the literal
// text of anything but null, so a wrong type fails the format rule.
func (in *UserInput) UnmarshalJSON(data []byte) error {
	*in = UserInput{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}

	in.Email, _ = scalarText(fields["email"])
	in.FirstName, _ = scalarText(fields["first_name"])
	in.LastName, _ = scalarText(fields["last_name"])

	if raw, ok := fields["age"]; ok {
		if err := in.Age.UnmarshalJSON(raw); err != nil {
			in.Age = AgeInvalid
		}
	}

	if raw, ok := fields["created"]; ok && !isNull(raw) {
		text, scalar := scalarText(raw)
		if !scalar {
			text = string(bytes.TrimSpace(raw))
		}
		in.Created = &text
	}

	return nil
}

// scalarText returns the text of a JSON string, number or boolean.
// ok is false for null, arrays, objects and a missing value.
func scalarText(raw json.RawMessage) (text string, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n', '[', '{':
		return "", false
	default:
		return string(raw), true
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Age is a user's age in years.
//
// The page posts <select> values, so the API receives the age either as a
// JSON number (30) or as a JSON string ("30"). Both decode to the same Age.
// An empty string or null decodes to 0, which the validator treats as
// missing; anything that is not a whole number decodes to AgeInvalid.
type Age int

// UnmarshalJSON implements json.Unmarshaler.
func (a *Age) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)

	if bytes.Equal(raw, []byte("null")) {
		*a = 0
		return nil
	}

	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("age: %w", err)
		}
		text = strings.TrimSpace(s)
		if text == "" {
			*a = 0
			return nil
		}
	}

	n, err := strconv.ParseFloat(text, 64)
	if err != nil || n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
		*a = AgeInvalid
		return nil
	}

	*a = Age(n)
	return nil
}

// FormatDisplay renders t in DisplayLayout using loc.
func FormatDisplay(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DisplayLayout)
}

// ParseDisplay parses a DisplayLayout string as a wall-clock time in loc.
//
// Only the canonical form is accepted: the parsed time, formatted back,
// must reproduce s byte for byte. "1.02.2024 10:00" or "31.02.2024 10:00"
// are therefore rejected even though a lenient parser could make sense
// of them. The check runs on the wall clock alone, so whether s is
// accepted never depends on loc; a time that falls into a DST gap in loc
// is normalized forward the way time.Date does it.
func ParseDisplay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	wall, err := time.Parse(DisplayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse display time %q: %w", s, err)
	}

	if wall.Format(DisplayLayout) != s {
		return time.Time{}, fmt.Errorf("parse display time %q: not in canonical form", s)
	}

	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), 0, 0, loc), nil
}
