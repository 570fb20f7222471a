package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func baseConfig() *Config {
	return &Config{
		Port:                 "8480",
		Env:                  "test",
		DBPassword:           "secure-password",
		VerifyCodeTTLMinutes: 10,
		VerifyMaxAttempts:    3,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Defaults are valid", func(c *Config) {}, false},
		{"Missing port", func(c *Config) { c.Port = "" }, true},
		{"Zero code TTL", func(c *Config) { c.VerifyCodeTTLMinutes = 0 }, true},
		{"Zero attempt budget", func(c *Config) { c.VerifyMaxAttempts = 0 }, true},
		{"Production without mailgun", func(c *Config) {
			c.Env = "production"
		}, true},
		{"Production with mailgun", func(c *Config) {
			c.Env = "production"
			c.MailgunDomain = "mg.example.com"
			c.MailgunAPIKey = "key-123"
		}, false},
		{"Production with weak DB password", func(c *Config) {
			c.Env = "production"
			c.MailgunDomain = "mg.example.com"
			c.MailgunAPIKey = "key-123"
			c.DBPassword = "password"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	os.Setenv("APP_ENV", "test")
	t.Cleanup(func() {
		os.Unsetenv("APP_ENV")
		viper.Reset()
	})

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.NotEmpty(t, cfg.Port)
	assert.Positive(t, cfg.VerifyCodeTTLMinutes)
	assert.Positive(t, cfg.VerifyMaxAttempts)
}
