package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-dswp/internal/config"
)

func TestInitAnswers(t *testing.T) {
	base := config.DefaultConfig()

	t.Run("defaults round trip", func(t *testing.T) {
		cfg, err := defaultAnswers(base).toConfig(base)
		require.NoError(t, err)
		assert.Equal(t, base, cfg)
	})

	tests := []struct {
		name    string
		edit    func(a *initAnswers)
		check   func(t *testing.T, cfg *config.Config)
		wantErr bool
	}{
		{
			name: "custom values",
			edit: func(a *initAnswers) {
				a.Threads, a.Tolerance, a.EnableMerging = "4", "1.5", false
				a.LogLevel, a.Output, a.DeriveMemory = "debug", "json", true
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 4, cfg.Threads)
				assert.Equal(t, 1.5, cfg.CostTolerance)
				assert.False(t, cfg.EnableMerging)
				assert.True(t, cfg.DeriveMemory)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, config.OutputJSON, cfg.Output)
			},
		},
		{name: "threads not a number", edit: func(a *initAnswers) { a.Threads = "two" }, wantErr: true},
		{name: "zero threads", edit: func(a *initAnswers) { a.Threads = "0" }, wantErr: true},
		{name: "tolerance below one", edit: func(a *initAnswers) { a.Tolerance = "0.5" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := defaultAnswers(base)
			tt.edit(&a)
			cfg, err := a.toConfig(base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}

	assert.NoError(t, validateInt("3"))
	assert.Error(t, validateInt("-1"))
	assert.NoError(t, validateTolerance("1"))
	assert.Error(t, validateTolerance("x"))
}
