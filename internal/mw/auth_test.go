package mw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := GenerateAdminToken("secret", "ops", time.Hour)
	require.NoError(t, err)

	assert.NoError(t, ValidateAdminToken("secret", token))
	assert.Error(t, ValidateAdminToken("other-secret", token))
	assert.Error(t, ValidateAdminToken("secret", "garbage"))
}

func TestAdminTokenExpiry(t *testing.T) {
	token, err := GenerateAdminToken("secret", "ops", -time.Minute)
	require.NoError(t, err)

	assert.Error(t, ValidateAdminToken("secret", token))
}
