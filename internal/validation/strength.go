package validation

import "unicode/utf8"

// Level is the category derived from a strength score.
type Level string

const (
	LevelWeak   Level = "weak"
	LevelMedium Level = "medium"
	LevelGood   Level = "good"
	LevelStrong Level = "strong"
)

// Strength is advisory feedback; it never gates registration.
type Strength struct {
	Score int   `json:"score"`
	Level Level `json:"level"`
}

// PasswordStrength scores a password in [0,100]. Each criterion adds
// independently of the others.
func PasswordStrength(password string) Strength {
	score := 0

	n := utf8.RuneCountInString(password)
	if n >= 6 {
		score += 20
	}
	if n >= 8 {
		score += 10
	}
	if n >= 12 {
		score += 10
	}

	var lower, upper, digit, other bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, has := range []bool{lower, upper, digit, other} {
		if has {
			score += 15
		}
	}

	return Strength{Score: score, Level: levelFor(score)}
}

func levelFor(score int) Level {
	switch {
	case score < 30:
		return LevelWeak
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelGood
	default:
		return LevelStrong
	}
}
