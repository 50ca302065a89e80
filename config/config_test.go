package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
name: game
contract_names: [project, app]
parent_contract_names: [root]
validate: true
log_level: debug
selection_policy: last_registered
require_all_args: true
`))
	require.NoError(t, err)

	assert.Equal(t, "game", cfg.Name)
	assert.Equal(t, []string{"project", "app"}, cfg.ContractNames)
	assert.Equal(t, []string{"root"}, cfg.ParentContractNames)
	assert.True(t, cfg.Validating)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "last_registered", cfg.SelectionPolicy)
	assert.True(t, cfg.RequireAllArgs)
}

func TestParse_KeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("name: scene\n"))
	require.NoError(t, err)

	assert.Equal(t, "scene", cfg.Name)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "prefer_conditional", cfg.SelectionPolicy)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("parents: [root]\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ContextConfig)
		wantErr bool
	}{
		{"defaults", func(*ContextConfig) {}, false},
		{"bad log level", func(c *ContextConfig) { c.LogLevel = "verbose" }, true},
		{"bad policy", func(c *ContextConfig) { c.SelectionPolicy = "random" }, true},
		{"empty contract name", func(c *ContextConfig) { c.ContractNames = []string{""} }, true},
		{"empty parent name", func(c *ContextConfig) { c.ParentContractNames = []string{"root", ""} }, true},
		{"empty policy", func(c *ContextConfig) { c.SelectionPolicy = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("NASC_NAME", "from-env")
	t.Setenv("NASC_CONTRACT_NAMES", "a, b,,c")
	t.Setenv("NASC_VALIDATE", "true")
	t.Setenv("NASC_SELECTION_POLICY", "last_registered")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.ContractNames)
	assert.True(t, cfg.Validating)
	assert.Equal(t, "last_registered", cfg.SelectionPolicy)
	assert.False(t, cfg.RequireAllArgs)
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	t.Setenv("NASC_REQUIRE_ALL_ARGS", "sometimes")

	err := Default().ApplyEnv()
	assert.ErrorContains(t, err, "NASC_REQUIRE_ALL_ARGS")
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "context.yaml", "name: yaml\nlog_level: warn\n")
	envFile := writeFile(t, "test.env", "NASC_PARENT_CONTRACT_NAMES=root\n")
	t.Setenv("NASC_NAME", "env")
	// godotenv never overrides variables that are already set
	t.Setenv("NASC_PARENT_CONTRACT_NAMES", "")
	require.NoError(t, os.Unsetenv("NASC_PARENT_CONTRACT_NAMES"))

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "env", cfg.Name)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"root"}, cfg.ParentContractNames)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "context.yaml", "selection_policy: newest\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid context config")
}

func TestZapLevel(t *testing.T) {
	cfg := Default()
	level, err := cfg.ZapLevel()
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	cfg.LogLevel = "debug"
	level, err = cfg.ZapLevel()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	cfg.LogLevel = ""
	level, err = cfg.ZapLevel()
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}
