package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Auth.LockAfter)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, StorageLocal, cfg.Storage.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Storage.PresignTTL)
	assert.Equal(t, "EN", cfg.Bot.Language)

	loc, err := cfg.Server.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Singapore", loc.String())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adminhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mongo:
  url: mongodb://mongo:27017/bot
  database: bot
auth:
  lock_after: 3
storage:
  driver: s3
  bucket: uploads
`), 0o600))

	t.Setenv("ADMINHUB_AUTH_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("ADMINHUB_MONGO_DATABASE", "override")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://mongo:27017/bot", cfg.Mongo.URL)
	assert.Equal(t, "override", cfg.Mongo.Database)
	assert.Equal(t, 3, cfg.Auth.LockAfter)
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecret)
	assert.Equal(t, StorageS3, cfg.Storage.Driver)
	assert.NoError(t, cfg.ValidateServer())
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Storage.Driver = "ftp"
	assert.True(t, errors.Is(bad.Validate(), errors.NotValid))

	bad = *cfg
	bad.Storage.Driver = StorageS3
	assert.True(t, errors.Is(bad.Validate(), errors.NotValid))

	bad = *cfg
	bad.Server.Timezone = "Mars/Olympus"
	assert.True(t, errors.Is(bad.Validate(), errors.NotValid))

	assert.True(t, errors.Is(cfg.ValidateServer(), errors.NotValid))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "mongo.url", envKey("ADMINHUB_MONGO_URL"))
	assert.Equal(t, "auth.jwt_secret", envKey("ADMINHUB_AUTH_JWT_SECRET"))
	assert.Equal(t, "storage.max_file_mb", envKey("ADMINHUB_STORAGE_MAX_FILE_MB"))
}
