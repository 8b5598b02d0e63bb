package database

import (
	"corpus_qa_backend/internal/config"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldMigrate(t *testing.T) {
	t.Run("debug mode migrates by default", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Mode: "debug"}}
		assert.True(t, shouldMigrate(cfg))
	})

	t.Run("release mode skips migration", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Mode: "release"}}
		assert.False(t, shouldMigrate(cfg))
	})

	t.Run("force flag overrides release mode", func(t *testing.T) {
		cfg := &config.Config{
			Server:       config.ServerConfig{Mode: "release"},
			ForceMigrate: true,
		}
		assert.True(t, shouldMigrate(cfg))
	})
}
