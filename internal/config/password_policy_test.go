// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package config

import (
	"errors"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		username string
		wantErr  error
	}{
		{
			name:     "valid password",
			password: "correct-horse-battery",
			username: "operator",
			wantErr:  nil,
		},
		{
			name:     "exactly minimum length",
			password: "8chars!!",
			username: "operator",
			wantErr:  nil,
		},
		{
			name:     "too short",
			password: "short1",
			username: "operator",
			wantErr:  ErrPasswordTooShort,
		},
		{
			name:     "empty password",
			password: "",
			username: "operator",
			wantErr:  ErrPasswordTooShort,
		},
		{
			name:     "equals username",
			password: "operator1",
			username: "operator1",
			wantErr:  ErrPasswordEqualsUsername,
		},
		{
			name:     "equals username case-insensitive",
			password: "OPERATOR1",
			username: "operator1",
			wantErr:  ErrPasswordEqualsUsername,
		},
		{
			name:     "common password",
			password: "password1",
			username: "operator",
			wantErr:  ErrPasswordTooCommon,
		},
		{
			name:     "common password uppercased",
			password: "PASSWORD1",
			username: "operator",
			wantErr:  ErrPasswordTooCommon,
		},
		{
			name:     "empty username skips comparison",
			password: "correct-horse-battery",
			username: "",
			wantErr:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, tt.username)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePassword() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
