package controller

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsMissingFileGivesDefaults(t *testing.T) {
	opts, err := LoadOptions(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestLoadOptionsOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evencrop.yml")
	body := `
listen: ":9999"
simulate: true
mqtt_broker: tcp://127.0.0.1:1883
flushes:
  - unit: 3
    rule: FREQ=DAILY;BYHOUR=6
    ms: 4000
`
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", opts.Listen)
	assert.True(t, opts.Simulate)
	assert.Equal(t, "tcp://127.0.0.1:1883", opts.MQTTBroker)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultOptions().Database, opts.Database)
	assert.Equal(t, DefaultOptions().BridgeURL, opts.BridgeURL)
	require.Len(t, opts.Flushes, 1)
	assert.Equal(t, FlushSchedule{Unit: 3, Rule: "FREQ=DAILY;BYHOUR=6", Ms: 4000}, opts.Flushes[0])
}

func TestLoadOptionsRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evencrop.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte("listen: [unterminated"), 0644))
	_, err := LoadOptions(path)
	assert.Error(t, err)
}
