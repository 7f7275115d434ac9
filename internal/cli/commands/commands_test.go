package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv points the configuration at a fresh SQLite database
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SHOWROOM_DATABASE_DRIVER", "sqlite")
	t.Setenv("SHOWROOM_DATABASE_DSN", filepath.Join(dir, "showroom.db"))
	t.Setenv("SHOWROOM_STORAGE_DIR", filepath.Join(dir, "media"))
	t.Setenv("SHOWROOM_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SHOWROOM_AUTH_ADMIN_DOMAINS", "dealer.test")
	t.Setenv("SHOWROOM_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "showroom", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "serve", "migrate", "user", "seed", "cars", "housekeeping"} {
		assert.Contains(t, names, expected)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	Version, GitCommit = "1.2.3", "abc123"
	t.Cleanup(func() { Version, GitCommit = "dev", "unknown" })

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Showroom version")
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestMigrateUpAndStatus(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	out, err = run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Database is at version")

	out, err = run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "0 pending")
}

func TestInvalidConfigurationIsReported(t *testing.T) {
	setupEnv(t)
	t.Setenv("SHOWROOM_AUTH_JWT_SECRET", "short")

	_, err := run(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	var he *hintError
	require.ErrorAs(t, err, &he)
	assert.NotEmpty(t, he.hint)
}

func TestUserCreateAndList(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "migrate", "up")
	require.NoError(t, err)

	out, err := run(t, "user", "create", "--email", "Manager@Dealer.test", "--name", "Manager", "--password", "long-enough-password")
	require.NoError(t, err)
	assert.Contains(t, out, "Created manager@dealer.test")
	assert.NotContains(t, out, "cannot open the back office")

	out, err = run(t, "user", "create", "--email", "buyer@example.com", "--name", "Buyer", "--password", "long-enough-password")
	require.NoError(t, err)
	assert.Contains(t, out, "cannot open the back office")

	_, err = run(t, "user", "create", "--email", "manager@dealer.test", "--name", "Again", "--password", "long-enough-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	_, err = run(t, "user", "create", "--email", "short@dealer.test", "--name", "Short", "--password", "tiny")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")

	out, err = run(t, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "manager@dealer.test")
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "buyer@example.com")
	assert.Contains(t, out, "never")
}

const seedYAML = `settings:
  dealership_name: Nordic Cars
  currency: eur
cars:
  - make: Volvo
    model: XC60
    year: 2021
    price: 38900
    mileage: 41000
    body_type: suv
    featured: true
  - make: Saab
    model: "9-3"
    year: 2009
    price: 4500
    status: sold
  - make: Trabant
    model: "601"
    year: 1850
`

func TestSeedAndCarsList(t *testing.T) {
	dir := setupEnv(t)
	_, err := run(t, "migrate", "up")
	require.NoError(t, err)

	file := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(file, []byte(seedYAML), 0o644))

	out, err := run(t, "seed", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved dealership settings")
	assert.Contains(t, out, "Added 2021 Volvo XC60")
	assert.Contains(t, out, "car #3 (Trabant 601) skipped")
	assert.Contains(t, out, "2 cars added, 1 skipped")

	out, err = run(t, "cars", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2021 Volvo XC60 ★")
	assert.Contains(t, out, "2009 Saab 9-3")

	out, err = run(t, "cars", "list", "--status", "sold")
	require.NoError(t, err)
	assert.Contains(t, out, "Saab")
	assert.NotContains(t, out, "Volvo")
}

func TestSeedInvalidatesSharedCache(t *testing.T) {
	dir := setupEnv(t)
	mr := miniredis.RunT(t)
	t.Setenv("SHOWROOM_REDIS_ADDR", mr.Addr())

	_, err := run(t, "migrate", "up")
	require.NoError(t, err)

	// a running server would have cached pages under generation 0
	_, err = run(t, "cars", "list")
	require.NoError(t, err)
	assert.False(t, mr.Exists("showroom:cache:cars:gen"))

	file := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(file, []byte(seedYAML), 0o644))
	_, err = run(t, "seed", "--file", file)
	require.NoError(t, err)

	gen, err := mr.Get("showroom:cache:cars:gen")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)

	gen, err = mr.Get("showroom:cache:settings:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
}

func TestReadSeedFile(t *testing.T) {
	dir := t.TempDir()

	_, err := readSeedFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("cars: []\n"), 0o644))
	_, err = readSeedFile(empty)
	assert.ErrorContains(t, err, "has no settings or cars")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("cars: [\n"), 0o644))
	_, err = readSeedFile(broken)
	assert.ErrorContains(t, err, "parsing")
}

func TestHousekeepingRun(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "migrate", "up")
	require.NoError(t, err)

	out, err := run(t, "housekeeping", "run")
	require.NoError(t, err)
	for _, task := range []string{"prune-activities", "sweep-orphans", "broadcast-stats"} {
		assert.Contains(t, out, task)
	}
	assert.NotContains(t, out, "skipped")

	out, err = run(t, "housekeeping", "run", "sweep-orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")

	_, err = run(t, "housekeeping", "run", "defragment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}
