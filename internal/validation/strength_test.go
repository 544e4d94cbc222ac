package validation_test

import (
	"testing"

	"gatekeep/internal/validation"

	"github.com/stretchr/testify/assert"
)

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		score    int
		level    validation.Level
	}{
		{"", 0, validation.LevelWeak},
		{"abc", 15, validation.LevelWeak},
		{"abc12", 30, validation.LevelMedium},
		{"abc123", 50, validation.LevelMedium},
		{"abcd1234", 60, validation.LevelGood},
		{"Abcd1234", 75, validation.LevelGood},
		{"Abcd1234!", 90, validation.LevelStrong},
		{"aB3!longpass", 100, validation.LevelStrong},
		{"!!!!!!", 35, validation.LevelMedium},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			s := validation.PasswordStrength(tt.password)
			assert.Equal(t, tt.score, s.Score)
			assert.Equal(t, tt.level, s.Level)
		})
	}
}

func TestPasswordStrength_Bounds(t *testing.T) {
	for _, pw := range []string{"", "a", "aB3!longpassword-that-is-really-long", "ÄÖÜ"} {
		s := validation.PasswordStrength(pw)
		assert.GreaterOrEqual(t, s.Score, 0)
		assert.LessOrEqual(t, s.Score, 100)
	}
}
