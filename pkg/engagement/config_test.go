package engagement

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Config)
		wantErr error
	}{
		"defaults are valid": {
			mutate: func(*Config) {},
		},
		"zero window": {
			mutate:  func(c *Config) { c.WindowDays = 0 },
			wantErr: ErrInvalidWindow,
		},
		"active ratio above power ratio": {
			mutate:  func(c *Config) { c.ActiveRatio = 0.8 },
			wantErr: errInvalidRatios,
		},
		"power ratio above one": {
			mutate:  func(c *Config) { c.PowerRatio = 1.5 },
			wantErr: errInvalidRatios,
		},
		"zero active ratio": {
			mutate:  func(c *Config) { c.ActiveRatio = 0 },
			wantErr: errInvalidRatios,
		},
		"zero retention days": {
			mutate:  func(c *Config) { c.RetainedMinActiveDays = 0 },
			wantErr: errInvalidRetainDays,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Equal(t, tt.wantErr, cfg.Validate())
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "engagement-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "engagement.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("windowDays: 14\npowerRatio: 0.8\n"), 0644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.WindowDays)
	assert.Equal(t, 0.8, cfg.PowerRatio)
	assert.Equal(t, DefaultActiveRatio, cfg.ActiveRatio)
	assert.Equal(t, DefaultRetainedMinActiveDays, cfg.RetainedMinActiveDays)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, ioutil.WriteFile(bad, []byte("windowDays: 0\n"), 0644))
	_, err = LoadConfigFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid engagement config")

	_, err = LoadConfigFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	w := NewWindow(time.Date(2025, time.March, 30, 15, 4, 0, 0, time.UTC), 30)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.True(t, w.Contains(time.Date(2025, time.March, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.Start.AddDate(0, 0, -1)))
	assert.False(t, w.Contains(w.End.AddDate(0, 0, 1)))
	assert.Equal(t, "2025-03-01..2025-03-30 (30 days)", w.String())
}
