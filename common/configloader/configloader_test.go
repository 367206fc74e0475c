package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
	Debug   bool          `mapstructure:"debug"`
	Nested  struct {
		Hosts []string `mapstructure:"hosts"`
	} `mapstructure:"nested"`
}

func (c *sampleConfig) Validate() error { return nil }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
name: from-file
timeout: 3s
nested:
  hosts: [a, b]
`)
	t.Setenv("CLTEST_NAME", "from-env")
	t.Setenv("CLTEST_DEBUG", "true")
	ResetDefaults()
	t.Cleanup(ResetDefaults)
	RegisterDefaults("debug", false)

	var cfg sampleConfig
	require.NoError(t, Load(path, "CLTEST", &cfg))

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"a", "b"}, cfg.Nested.Hosts)
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sampleConfig
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "CLTEST", &cfg)
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "CLTEST_DOTENV_VALUE=hello\n")
	t.Cleanup(func() { _ = os.Unsetenv("CLTEST_DOTENV_VALUE") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "hello", os.Getenv("CLTEST_DOTENV_VALUE"))
}

func TestLoad_EnvSlicesAndNumbers(t *testing.T) {
	ResetDefaults()
	t.Cleanup(ResetDefaults)
	RegisterDefaults("nested.hosts", []string{})
	RegisterDefaults("Retries", 1)

	t.Setenv("CLTEST_NESTED_HOSTS", "k1:9092, k2:9092,")
	t.Setenv("CLTEST_RETRIES", "5")

	var cfg struct {
		Nested struct {
			Hosts []string `mapstructure:"hosts"`
		} `mapstructure:"nested"`
		Retries int `mapstructure:"retries"`
	}
	require.NoError(t, Load("", "CLTEST", &cfg))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Nested.Hosts)
	assert.Equal(t, 5, cfg.Retries)
}

func TestLoad_EnvWithoutDefault(t *testing.T) {
	ResetDefaults()
	t.Cleanup(ResetDefaults)
	t.Setenv("CLTEST_SERVER_ADDR", ":9999")
	t.Setenv("CLTEST_SERVER_WAIT", "250ms")

	type server struct {
		Addr string        `mapstructure:"addr"`
		Wait time.Duration `mapstructure:"wait"`
	}
	var cfg struct {
		HTTP struct {
			Enabled bool   `mapstructure:"enabled"`
			Server  server `mapstructure:",squash"`
		} `mapstructure:"server"`
		Skip string `mapstructure:"-"`
	}
	require.NoError(t, Load("", "CLTEST", &cfg))
	assert.Equal(t, ":9999", cfg.HTTP.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.HTTP.Server.Wait)
	assert.False(t, cfg.HTTP.Enabled)
}

func TestStructKeys(t *testing.T) {
	type inner struct {
		Hosts []string `mapstructure:"hosts"`
	}
	var cfg struct {
		Name   string         `mapstructure:"name"`
		Inner  inner          `mapstructure:"inner"`
		Flat   inner          `mapstructure:",squash"`
		Labels map[string]int `mapstructure:"labels"`
		Plain  int
		hidden int
	}
	_ = cfg.hidden
	assert.ElementsMatch(t,
		[]string{"name", "inner.hosts", "hosts", "labels", "plain"},
		structKeys(&cfg))
}
