// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package config

import (
	"errors"
	"strings"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

var (
	// ErrPasswordTooShort is returned when a password is below MinPasswordLength.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	// ErrPasswordEqualsUsername is returned when a password matches the username.
	ErrPasswordEqualsUsername = errors.New("password must not equal the username")

	// ErrPasswordTooCommon is returned for well-known weak passwords.
	ErrPasswordTooCommon = errors.New("password is too common")
)

// commonPasswords is a short denylist of passwords seen in every
// credential-stuffing wordlist. Not exhaustive; length and the bcrypt
// work factor carry most of the defense.
var commonPasswords = map[string]struct{}{
	"password":  {},
	"password1": {},
	"12345678":  {},
	"123456789": {},
	"qwertyuiop": {},
	"letmein123": {},
	"admin1234": {},
}

// ValidatePassword applies the password policy. The username may be
// empty when not applicable.
func ValidatePassword(password, username string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if username != "" && strings.EqualFold(password, username) {
		return ErrPasswordEqualsUsername
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return ErrPasswordTooCommon
	}
	return nil
}
