package passcheck

import "testing"

func TestStrength(t *testing.T) {
	tests := []struct {
		password string
		want     string
	}{
		{"", StrengthWeak},
		{"short1!", StrengthWeak},              // under 8 chars
		{"aaaaaaaaaaaa", StrengthWeak},        // single repeated rune
		{"password123", StrengthWeak},         // common pattern
		{"MyQwErTy2024", StrengthWeak},        // common pattern, mixed case
		{"Azerty!2024x", StrengthWeak},        // common pattern (azerty)
		{"lowercaseonly", StrengthWeak},       // one class
		{"lowerUPPER", StrengthMedium},        // two classes, short of 12
		{"abcdef12", StrengthMedium},          // two classes
		{"Abcdef12", StrengthMedium},          // three classes but under 12
		{"Tr4vel-Mug-Blue", StrengthStrong},   // long, diverse
		{"X9#lmqpzARw2", StrengthStrong},
	}

	for _, tc := range tests {
		if got := Strength(tc.password); got != tc.want {
			t.Errorf("Strength(%q) = %s, want %s", tc.password, got, tc.want)
		}
	}
}

func TestStrength_Deterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if got := Strength("Tr4vel-Mug-Blue"); got != StrengthStrong {
			t.Fatalf("classification changed between calls: %s", got)
		}
	}
}
