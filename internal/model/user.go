// Package model defines the data structures used throughout the application.
package model

import "time"

// DayLayout is the calendar-date format used for birthdates and day filters.
const DayLayout = "2006-01-02"

// User is a person whose meals are tracked.
//
// Users are created out-of-band by an administrator (see `mealtrack user add`)
// and are never modified through the HTTP API. The login credential is the
// pair (last name, birthdate): the last name is compared case-insensitively,
// the birthdate exactly.
//
// WHY Birthdate time.Time (not string)?
// Clients send birthdates in whatever format they like ("12/26/1988",
// "Dec 26 1988", "1988-12-26"). We normalise to midnight UTC of that calendar
// day as soon as it's parsed, so two spellings of the same day compare equal.
type User struct {
	ID        int64     `json:"id"         db:"id"`
	LastName  string    `json:"last_name"  db:"last_name"`
	Birthdate time.Time `json:"-"          db:"birthdate"` // midnight UTC
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BirthdateString renders the birthdate as YYYY-MM-DD.
func (u *User) BirthdateString() string {
	return u.Birthdate.Format(DayLayout)
}
