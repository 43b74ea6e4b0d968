package options

import (
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testOptions struct {
	Port       string          `json:"port"`
	RetryDelay metav1.Duration `json:"retryDelay"`
	BaseOptions
}

func (o *testOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Port, "port", o.Port, "")
	fs.DurationVar(&o.RetryDelay.Duration, "retry-delay", o.RetryDelay.Duration, "")
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseAndApplyConfigFile(t *testing.T) {
	o := &testOptions{BaseOptions: NewDefaultBaseOptions()}
	o.ConfigFile = writeConfig(t, "port: \"8080\"\nretryDelay: 5s\nlogging:\n  format: text\n  verbosity: 4\n")

	require.NoError(t, ParseAndApplyConfigFile(o, nil))
	assert.Equal(t, "8080", o.Port)
	assert.Equal(t, 5*time.Second, o.RetryDelay.Duration)
	assert.EqualValues(t, 4, o.Logging.Verbosity)
	assert.Equal(t, "text", o.Logging.Format)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	o := &testOptions{BaseOptions: NewDefaultBaseOptions()}
	o.ConfigFile = writeConfig(t, "port: \"8080\"\n")

	require.NoError(t, ParseAndApplyConfigFile(o, []string{"--port", "9090", "--version"}))
	assert.Equal(t, "9090", o.Port)
}

func TestConfigFileErrors(t *testing.T) {
	o := &testOptions{BaseOptions: NewDefaultBaseOptions()}
	o.ConfigFile = filepath.Join(t.TempDir(), "missing.json")
	assert.Error(t, ParseAndApplyConfigFile(o, nil))

	o.ConfigFile = writeConfig(t, "prot: \"8080\"\n")
	assert.Error(t, ParseAndApplyConfigFile(o, nil))
}

func TestNoConfigFile(t *testing.T) {
	o := &testOptions{Port: "1"}
	require.NoError(t, ParseAndApplyConfigFile(o, []string{"--port", "2"}))
	assert.Equal(t, "1", o.Port)
}
