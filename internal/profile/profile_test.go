package profile

import (
	"errors"
	"testing"
)

func TestResolve_KnownLevels(t *testing.T) {
	tests := []struct {
		level           Level
		expectedDPI     int
		expectedQuality int
		expectedSetting string
	}{
		{level: Maximum, expectedDPI: 72, expectedQuality: 30, expectedSetting: "/screen"},
		{level: High, expectedDPI: 150, expectedQuality: 50, expectedSetting: "/ebook"},
		{level: Medium, expectedDPI: 200, expectedQuality: 70, expectedSetting: "/printer"},
		{level: Low, expectedDPI: 300, expectedQuality: 85, expectedSetting: "/prepress"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			p, err := Resolve(tt.level)
			if err != nil {
				t.Fatalf("Resolve(%q) returned error: %v", tt.level, err)
			}
			if p.ImageDPI != tt.expectedDPI {
				t.Errorf("Expected DPI %d, got %d", tt.expectedDPI, p.ImageDPI)
			}
			if p.ImageQuality != tt.expectedQuality {
				t.Errorf("Expected quality %d, got %d", tt.expectedQuality, p.ImageQuality)
			}
			if p.GhostscriptSetting != tt.expectedSetting {
				t.Errorf("Expected setting %s, got %s", tt.expectedSetting, p.GhostscriptSetting)
			}
		})
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	p, err := Resolve(Level("MEDIUM"))
	if err != nil {
		t.Fatalf("Resolve(MEDIUM) returned error: %v", err)
	}
	if p.Level != Medium {
		t.Errorf("Expected level %q, got %q", Medium, p.Level)
	}
}

func TestResolve_UnknownLevel(t *testing.T) {
	_, err := Resolve(Level("extreme"))
	if err == nil {
		t.Fatal("Expected error for unknown level")
	}
	if !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("Expected ErrUnknownLevel, got %v", err)
	}
}

func TestMonotonicOrdering(t *testing.T) {
	// Stronger compression must mean lower DPI and lower encoding quality.
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		stronger, _ := Resolve(levels[i-1])
		weaker, _ := Resolve(levels[i])
		if stronger.ImageDPI >= weaker.ImageDPI {
			t.Errorf("%s DPI %d should be below %s DPI %d", stronger.Level, stronger.ImageDPI, weaker.Level, weaker.ImageDPI)
		}
		if stronger.ImageQuality >= weaker.ImageQuality {
			t.Errorf("%s quality %d should be below %s quality %d", stronger.Level, stronger.ImageQuality, weaker.Level, weaker.ImageQuality)
		}
	}
}

func TestMaxImageDimension(t *testing.T) {
	p, _ := Resolve(Maximum)
	if p.MaxImageDimension() != 720 {
		t.Errorf("Expected 720, got %d", p.MaxImageDimension())
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		size     int64
		expected Level
	}{
		{size: 1 * 1024 * 1024, expected: Medium},
		{size: 10 * 1024 * 1024, expected: High},
		{size: 50 * 1024 * 1024, expected: Maximum},
	}
	for _, tt := range tests {
		if got := Recommend(tt.size); got != tt.expected {
			t.Errorf("Recommend(%d) = %q, want %q", tt.size, got, tt.expected)
		}
	}
}
