package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAutoMigrateAllowed_AllowsDevLikeEnvs(t *testing.T) {
	for _, env := range []string{"", "dev", "development", "local", "test", "testing", "DEV", "  Local  "} {
		t.Run(env, func(t *testing.T) {
			assert.NoError(t, ValidateAutoMigrateAllowed(env))
		})
	}
}

func TestValidateAutoMigrateAllowed_RejectsProdAndOtherEnvs(t *testing.T) {
	for _, env := range []string{"prod", "production", "staging", "preprod", " Production ", "qa"} {
		t.Run(env, func(t *testing.T) {
			assert.Error(t, ValidateAutoMigrateAllowed(env))
		})
	}
}

func TestIsProduction(t *testing.T) {
	assert.True(t, IsProduction("prod"))
	assert.True(t, IsProduction(" Production "))
	assert.False(t, IsProduction(""))
	assert.False(t, IsProduction("staging"))
}

func TestSanitizeEnv(t *testing.T) {
	cases := []struct{ in, want string }{
		{`  plain  `, "plain"},
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{`"mismatched'`, `"mismatched'`},
		{`" https://hook.example "`, "https://hook.example"},
		{`"`, `"`},
		{``, ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeEnv(tc.in), "input %q", tc.in)
	}
}

func TestParseCSV(t *testing.T) {
	assert.Nil(t, parseCSV(""))
	assert.Nil(t, parseCSV(" , ,"))
	assert.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		parseCSV(`"https://a.example, https://b.example,,https://a.example"`))
}

func TestParseTrustedProxies(t *testing.T) {
	t.Run("empty trusts nobody", func(t *testing.T) {
		assert.Empty(t, parseTrustedProxies(""))
	})

	t.Run("wildcard trusts every address", func(t *testing.T) {
		assert.Equal(t, []string{"0.0.0.0/0", "::/0"}, parseTrustedProxies("10.0.0.1, *"))
	})

	t.Run("explicit list is kept", func(t *testing.T) {
		assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, parseTrustedProxies("10.0.0.0/8,192.168.1.5"))
	})
}
