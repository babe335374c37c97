package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Abcdef1!", ""},
		{"Passw0rd!", ""},
		{"Ab1!", "Password must be at least 8 characters long."},
		{"abcdefg1!", "Password must contain at least one uppercase letter."},
		{"ABCDEFG1!", "Password must contain at least one lowercase letter."},
		{"Abcdefgh!", "Password must contain at least one numeric digit."},
		{"Abcdefg12", "Password must contain at least one special character."},
		{"", "Password must be at least 8 characters long."},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, PasswordStrength(tc.in), tc.in)
	}
}

func TestPasswordStrength_FirstFailingRuleWins(t *testing.T) {
	// fails every rule but length is reported first
	assert.Equal(t, "Password must be at least 8 characters long.", PasswordStrength("a"))
}
