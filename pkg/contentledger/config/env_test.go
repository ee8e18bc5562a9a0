package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONTENT_LEDGER_PORT", "9999")
	t.Setenv("CONTENT_LEDGER_ENVIRONMENT", "testing")
	t.Setenv("CONTENT_LEDGER_DATABASE_URL", "sqlite:///tmp/ledger.db")
	t.Setenv("CONTENT_LEDGER_MODULE_ID", "ledger/y")
	t.Setenv("CONTENT_LEDGER_BEACON_SEED", "000102")
	t.Setenv("CONTENT_LEDGER_JWT_SECRET", "s3cret")
	t.Setenv("CONTENT_LEDGER_AUTO_MIGRATE", "false")

	cfg, err := Load(WithEnv())
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "testing", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "/tmp/ledger.db", cfg.DatabaseURL)
	assert.Equal(t, "ledger/y", cfg.ModuleID)
	assert.Equal(t, []byte{0, 1, 2}, cfg.BeaconSeed)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.False(t, cfg.AutoMigrate)
}

func TestEnvLeavesUnsetValues(t *testing.T) {
	cfg, err := Load(WithPort("7000"), WithEnv())
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseType)
}

func TestEnvEventSink(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantSink string
	}{
		{
			name:     "bucket selects s3",
			env:      map[string]string{"CONTENT_LEDGER_EVENT_S3_BUCKET": "events"},
			wantSink: "s3",
		},
		{
			name:     "webhook url selects webhook",
			env:      map[string]string{"CONTENT_LEDGER_EVENT_WEBHOOK_URL": "http://hooks.local/ledger"},
			wantSink: "webhook",
		},
		{
			name: "explicit sink wins",
			env: map[string]string{
				"CONTENT_LEDGER_EVENT_WEBHOOK_URL": "http://hooks.local/ledger",
				"CONTENT_LEDGER_EVENT_SINK":        "noop",
			},
			wantSink: "noop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(WithEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.wantSink, cfg.EventSink)
		})
	}
}

func TestEnvS3Endpoint(t *testing.T) {
	t.Setenv("CONTENT_LEDGER_EVENT_S3_BUCKET", "events")
	t.Setenv("CONTENT_LEDGER_EVENT_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("CONTENT_LEDGER_EVENT_S3_PREFIX", "archive")

	cfg, err := Load(WithEnv())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UsePathStyle)
	assert.Equal(t, "archive", cfg.S3.Prefix)
}

func TestEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad database url", "CONTENT_LEDGER_DATABASE_URL", "mysql://localhost/db"},
		{"bad beacon seed", "CONTENT_LEDGER_BEACON_SEED", "zz"},
		{"bad auto migrate", "CONTENT_LEDGER_AUTO_MIGRATE", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(WithEnv())
			assert.Error(t, err)
		})
	}
}

func TestEnvUsage(t *testing.T) {
	usage := EnvUsage()
	assert.Contains(t, usage, "CONTENT_LEDGER_DATABASE_URL")
	assert.Contains(t, usage, "CONTENT_LEDGER_EVENT_SINK")
}
