package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaultsMatchEvidencePolicy(t *testing.T) {
	cfg := fromViper(newTestViper())

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Media.MaxImages)
	assert.Equal(t, 1, cfg.Media.MaxVideos)
	assert.Equal(t, int64(30*1024*1024), cfg.Media.MaxVideoBytes)
	assert.Equal(t, 10, cfg.Review.GritBitPoints)
	assert.Equal(t, 15*time.Minute, cfg.Catalog.CacheTTL)
}

func TestOverridesAndFallbacks(t *testing.T) {
	v := newTestViper()
	v.Set("STORAGE_DRIVER", " Memory ")
	v.Set("GRIT_BIT_POINTS", 0)
	v.Set("CATALOG_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("MEDIA_PUBLIC_BASE_URL", "https://cdn.example/media/")

	cfg := fromViper(v)

	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.Review.GritBitPoints)
	assert.Equal(t, 15*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "https://cdn.example/media", cfg.Media.PublicBaseURL)
}

func TestUnknownDriverFallsBackToPostgres(t *testing.T) {
	v := newTestViper()
	v.Set("STORAGE_DRIVER", "sqlite")
	assert.Equal(t, StorageDriverPostgres, fromViper(v).Storage.Driver)
}
