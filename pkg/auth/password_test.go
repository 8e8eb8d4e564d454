package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/pkg/auth"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := auth.HashPassword("Str0ng-enough!")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng-enough!", hash)

	assert.NoError(t, auth.ComparePassword(hash, "Str0ng-enough!"))
	assert.Error(t, auth.ComparePassword(hash, "wrong-password"))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := auth.HashPassword("")
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng-enough!", false},
		{"too short", "Ab1!", true},
		{"no uppercase", "str0ng-enough!", true},
		{"no lowercase", "STR0NG-ENOUGH!", true},
		{"no digit", "Strong-enough!", true},
		{"no special", "Str0ngEnough1", true},
		{"common", "Password123!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePasswordErrorIsGeneric(t *testing.T) {
	err := auth.ValidatePassword("weak")
	require.Error(t, err)

	// The message must not enumerate which rule failed
	assert.Equal(t, "invalid password", err.Error())
}
