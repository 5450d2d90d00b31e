package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowanalyzer/pkg/plugin"
)

func TestRegisterBuiltins(t *testing.T) {
	RegisterBuiltins()
	RegisterBuiltins()

	assert.Equal(t, []string{"console", "kafka", "sqlite"}, plugin.ListReporters())
	assert.Equal(t, []string{"pcap", "tshark"}, plugin.ListSources())

	f, err := plugin.GetReporterFactory("console")
	require.NoError(t, err)
	assert.Equal(t, "console", f().Name())

	s, err := plugin.GetSourceFactory("tshark")
	require.NoError(t, err)
	assert.Equal(t, "tshark", s().Name())
}
