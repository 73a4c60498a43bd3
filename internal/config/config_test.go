package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `
keys:
  app_key: "000102030405060708090a0b0c0d0e0f"
  hmac_key: "0f0e0d0c0b0a09080706050403020100"
device:
  dev_eui: "0000000000000001"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	appKey, err := cfg.AppKey()
	require.NoError(t, err)
	assert.Equal(t, byte(0x0f), appKey[15])

	// Defaults survive a partial file.
	assert.Equal(t, 3, cfg.Device.JoinRetries)
	assert.Equal(t, 5*time.Millisecond, cfg.Radio.PreTransmit)
	assert.Equal(t, 500*time.Millisecond, cfg.Radio.QuietPeriod)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsMissingKeys(t *testing.T) {
	path := writeConfig(t, `
device:
  dev_eui: "0000000000000001"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadKey(t *testing.T) {
	path := writeConfig(t, `
keys:
  app_key: "tooshort"
  hmac_key: "0f0e0d0c0b0a09080706050403020100"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsAPIWithoutSecret(t *testing.T) {
	path := writeConfig(t, `
keys:
  app_key: "000102030405060708090a0b0c0d0e0f"
  hmac_key: "0f0e0d0c0b0a09080706050403020100"
api:
  enabled: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNetIDParsing(t *testing.T) {
	path := writeConfig(t, `
keys:
  app_key: "000102030405060708090a0b0c0d0e0f"
  hmac_key: "0f0e0d0c0b0a09080706050403020100"
gateway:
  net_id: "012345"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	netID, err := cfg.NetID()
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0x01, 0x23, 0x45}, netID)
}
