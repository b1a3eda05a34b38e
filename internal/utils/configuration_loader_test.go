package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/charmrev/internal/utils"
)

const (
	testEnvironmentPrefixConstant  = "TESTCHARMREV"
	testConfigurationNameConstant  = "config"
	testConfigurationTypeConstant  = "yaml"
	testLogLevelKeyConstant        = "common.log_level"
	testConfigContentConstant      = "common:\n  log_level: warn\n"
	testLogLevelEnvironmentNameEnv = "TESTCHARMREV_COMMON_LOG_LEVEL"
)

type configurationFixture struct {
	Common configurationCommonFixture `mapstructure:"common"`
}

type configurationCommonFixture struct {
	LogLevel string `mapstructure:"log_level"`
}

func newTestLoader(searchPaths []string) *utils.ConfigurationLoader {
	return utils.NewConfigurationLoader(
		testConfigurationNameConstant,
		testConfigurationTypeConstant,
		testEnvironmentPrefixConstant,
		searchPaths,
	)
}

func TestLoadConfigurationAppliesDefaultsWithoutFile(t *testing.T) {
	loader := newTestLoader([]string{t.TempDir()})

	var loadedFixture configurationFixture
	loadedMetadata, loadError := loader.LoadConfiguration("", map[string]any{testLogLevelKeyConstant: "info"}, &loadedFixture)
	require.NoError(t, loadError)
	require.Equal(t, "info", loadedFixture.Common.LogLevel)
	require.Empty(t, loadedMetadata.ConfigFileUsed)
}

func TestLoadConfigurationFileOverridesDefaults(t *testing.T) {
	searchDirectory := t.TempDir()
	configurationFilePath := filepath.Join(searchDirectory, "config.yaml")
	require.NoError(t, os.WriteFile(configurationFilePath, []byte(testConfigContentConstant), 0o644))

	loader := newTestLoader([]string{searchDirectory})

	var loadedFixture configurationFixture
	loadedMetadata, loadError := loader.LoadConfiguration("", map[string]any{testLogLevelKeyConstant: "info"}, &loadedFixture)
	require.NoError(t, loadError)
	require.Equal(t, "warn", loadedFixture.Common.LogLevel)
	require.Equal(t, configurationFilePath, loadedMetadata.ConfigFileUsed)
}

func TestLoadConfigurationEnvironmentOverridesFile(t *testing.T) {
	searchDirectory := t.TempDir()
	configurationFilePath := filepath.Join(searchDirectory, "config.yaml")
	require.NoError(t, os.WriteFile(configurationFilePath, []byte(testConfigContentConstant), 0o644))
	t.Setenv(testLogLevelEnvironmentNameEnv, "error")

	loader := newTestLoader([]string{searchDirectory})

	var loadedFixture configurationFixture
	_, loadError := loader.LoadConfiguration("", map[string]any{testLogLevelKeyConstant: "info"}, &loadedFixture)
	require.NoError(t, loadError)
	require.Equal(t, "error", loadedFixture.Common.LogLevel)
}

func TestLoadConfigurationExplicitFilePath(t *testing.T) {
	configurationFilePath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(configurationFilePath, []byte(testConfigContentConstant), 0o644))

	loader := newTestLoader(nil)

	var loadedFixture configurationFixture
	loadedMetadata, loadError := loader.LoadConfiguration(configurationFilePath, nil, &loadedFixture)
	require.NoError(t, loadError)
	require.Equal(t, "warn", loadedFixture.Common.LogLevel)
	require.Equal(t, configurationFilePath, loadedMetadata.ConfigFileUsed)
}

func TestLoadConfigurationSplitsEnvironmentLists(t *testing.T) {
	t.Setenv("TESTCHARMREV_COMMON_TAGS", "alpha,beta")

	loader := newTestLoader([]string{t.TempDir()})

	var loadedFixture struct {
		Common struct {
			Tags []string `mapstructure:"tags"`
		} `mapstructure:"common"`
	}
	_, loadError := loader.LoadConfiguration("", map[string]any{"common.tags": ""}, &loadedFixture)
	require.NoError(t, loadError)
	require.Equal(t, []string{"alpha", "beta"}, loadedFixture.Common.Tags)
}

func TestLoadConfigurationMissingExplicitFileFails(t *testing.T) {
	loader := newTestLoader(nil)

	var loadedFixture configurationFixture
	_, loadError := loader.LoadConfiguration(filepath.Join(t.TempDir(), "absent.yaml"), nil, &loadedFixture)
	require.Error(t, loadError)
}
