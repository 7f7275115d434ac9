package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHOWROOM_AUTH_JWT_SECRET", secret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 12, cfg.Site.PageSize)
	assert.Equal(t, 180*24*time.Hour, cfg.Housekeeping.ActivityRetention)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Empty(t, cfg.Auth.AdminDomains)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := `
server:
  address: 127.0.0.1:9000
  write_timeout: 45s
database:
  driver: postgres
  dsn: postgres://localhost/showroom
auth:
  jwt_secret: ` + secret + `
  admin_domains: [example.com]
site:
  pretty_html: true
log:
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "showroom.yaml"), []byte(content), 0o644))
	t.Setenv("SHOWROOM_SERVER_ADDRESS", ":7000")
	t.Setenv("SHOWROOM_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"example.com"}, cfg.Auth.AdminDomains)
	assert.True(t, cfg.Site.PrettyHTML)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadAdminDomainsFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHOWROOM_AUTH_JWT_SECRET", secret)
	t.Setenv("SHOWROOM_AUTH_ADMIN_DOMAINS", "example.com, dealer.test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "dealer.test"}, cfg.Auth.AdminDomains)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHOWROOM_DATABASE_DRIVER", "mysql")
	t.Setenv("SHOWROOM_LOG_FORMAT", "xml")
	t.Setenv("SHOWROOM_SITE_PAGE_SIZE", "100")

	_, err := Load("")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "database.driver")
	assert.Contains(t, msg, "auth.jwt_secret")
	assert.Contains(t, msg, "log.format")
	assert.Contains(t, msg, "site.page_size")
}
