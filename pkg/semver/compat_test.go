package semver

import "testing"

func TestCompatibility_Check(t *testing.T) {
	tests := []struct {
		name    string
		rng     string
		version string
		wantErr bool
	}{
		{"default range accepts 1.0", "", "1.0", false},
		{"default range accepts empty version", "", "", false},
		{"default range accepts 1.4.2", "", "1.4.2", false},
		{"default range rejects 2.0", "", "2.0", true},
		{"major-only range", "2", "2.3", false},
		{"major-only range rejects other major", "2", "1.9", true},
		{"comparison range", ">=1.0 <3.0", "2.1", false},
		{"garbage version", "", "one", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCompatibility(tt.rng)
			if err != nil {
				t.Fatalf("semver:compat_test - NewCompatibility(%q) failed: %v", tt.rng, err)
			}
			err = c.Check(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("semver:compat_test - Check(%q) err = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
		})
	}
}

func TestNewCompatibility_Invalid(t *testing.T) {
	if _, err := NewCompatibility(">>>"); err == nil {
		t.Error("semver:compat_test - expected error for invalid range")
	}
}

func TestIsMajorOnly(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "12": true, "1.0": false, "^1": false, "": false} {
		if got := IsMajorOnly(in); got != want {
			t.Errorf("semver:compat_test - IsMajorOnly(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSatisfiesRange(t *testing.T) {
	if !SatisfiesRange("1.2.0", "^1.0") {
		t.Error("semver:compat_test - 1.2.0 should satisfy ^1.0")
	}
	if SatisfiesRange("1.2.0", "bad range !") {
		t.Error("semver:compat_test - invalid range should not be satisfied")
	}
}
