package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		known  bool
		major  int
	}{
		{"chrome stable", "Google Chrome 120.0.6099.18", "120.0.6099.18", true, 120},
		{"chrome for testing", "Google Chrome for Testing 121.0.6167.85", "121.0.6167.85", true, 121},
		{"chromium snap", "Chromium 119.0.6045.105 snap", "119.0.6045.105", true, 119},
		{"driver banner", "ChromeDriver 120.0.6099.109 (3419140ab665)", "120.0.6099.109", true, 120},
		{"trailing newline", "Google Chrome 122.0.6261.94\n", "122.0.6261.94", true, 122},
		{"garbled", "segmentation fault", "unknown", false, 0},
		{"empty", "", "unknown", false, 0},
		{"partial version", "Chrome 120.0", "unknown", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVersion(tt.input)
			assert.Equal(t, tt.known, v.Known)
			assert.Equal(t, tt.want, v.String())
			if tt.known {
				assert.Equal(t, tt.major, v.Major)
			}
		})
	}
}

func TestSameMajor(t *testing.T) {
	a := ParseVersion("120.0.6099.18")
	b := ParseVersion("120.0.6099.109")
	c := ParseVersion("119.0.6045.105")
	unknown := ParseVersion("garbage")

	assert.True(t, a.SameMajor(b))
	assert.False(t, a.SameMajor(c))
	assert.False(t, a.SameMajor(unknown), "unknown versions never match")
	assert.False(t, unknown.SameMajor(unknown))
}
