package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type ConfigSuite struct{}

func TestConfig(t *testing.T) {
	suite.RunTests(t, &ConfigSuite{})
}

func writeTestConfig(t *testing.T, content string) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if content != "" {
		err := os.MkdirAll(filepath.Join(dir, configDirName), 0o755)
		expect.Nil(t, err)

		err = os.WriteFile(
			filepath.Join(dir, configDirName, configFileName),
			[]byte(content),
			0o644)
		expect.Nil(t, err)
	}
}

func (ConfigSuite) TestMissingFileUsesDefaults(t *testing.T) {
	writeTestConfig(t, "")

	cfg, err := LoadConfig()
	expect.Nil(t, err)
	expect.Equal(t, "(jitdbg) ", cfg.Prompt)
	expect.Equal(t, 0, len(cfg.JitWatchPatterns))
	expect.False(t, cfg.Log)
}

func (ConfigSuite) TestLoadFullConfig(t *testing.T) {
	writeTestConfig(
		t,
		"prompt: \"dbg> \"\n"+
			"jit-watch-patterns:\n"+
			"  - foo\n"+
			"  - bar\n"+
			"log: true\n"+
			"log-components: jit,debugger\n")

	cfg, err := LoadConfig()
	expect.Nil(t, err)
	expect.Equal(t, "dbg> ", cfg.Prompt)
	expect.Equal(t, []string{"foo", "bar"}, cfg.JitWatchPatterns)
	expect.True(t, cfg.Log)
	expect.Equal(t, "jit,debugger", cfg.LogComponents)
}

func (ConfigSuite) TestMalformedFileReturnsDefaults(t *testing.T) {
	writeTestConfig(t, "prompt: [unclosed\n")

	cfg, err := LoadConfig()
	expect.Error(t, err, "failed to parse config file")
	expect.NotNil(t, cfg)
	expect.Equal(t, "(jitdbg) ", cfg.Prompt)
}

func (ConfigSuite) TestSaveRoundTrip(t *testing.T) {
	writeTestConfig(t, "")

	err := SaveConfig(
		&Config{
			Prompt:           "x> ",
			JitWatchPatterns: []string{"foo"},
		})
	expect.Nil(t, err)

	cfg, err := LoadConfig()
	expect.Nil(t, err)
	expect.Equal(t, "x> ", cfg.Prompt)
	expect.Equal(t, []string{"foo"}, cfg.JitWatchPatterns)
}
