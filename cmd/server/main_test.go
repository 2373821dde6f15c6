package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coursesync/internal/server/jwt"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr strings.Builder
	code := run([]string{"-version"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "Version:    dev")
}

func TestRun_RequiresSecret(t *testing.T) {
	t.Setenv(secretEnv, "")
	var stdout, stderr strings.Builder

	code := run([]string{"-jwt-secret", "", "-issue-token"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "-jwt-secret")
}

func TestRun_IssueToken(t *testing.T) {
	var stdout, stderr strings.Builder
	code := run([]string{"-jwt-secret", "s3cret", "-issue-token", "-user", "user-1", "-device", "laptop"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	claims, err := jwt.NewService(jwt.Config{Secret: []byte("s3cret")}).Validate(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "laptop", claims.DeviceID)
	assert.Contains(t, stderr.String(), "Token expires at")
}

func TestRun_IssueTokenRequiresSubject(t *testing.T) {
	var stdout, stderr strings.Builder
	code := run([]string{"-jwt-secret", "s3cret", "-issue-token", "-user", "user-1"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr strings.Builder
	assert.Equal(t, 2, run([]string{"-no-such-flag"}, &stdout, &stderr))
}
