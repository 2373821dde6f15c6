package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(now time.Time) *Service {
	s := NewService(Config{Secret: []byte("test-secret"), TTL: time.Hour})
	s.now = func() time.Time { return now }
	return s
}

func TestIssueAndValidate(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(now)

	token, expiresAt, err := s.Issue("user-1", "device-a")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "device-a", claims.DeviceID)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
}

func TestIssue_MissingSubject(t *testing.T) {
	s := newTestService(time.Now())

	_, _, err := s.Issue("", "device-a")
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, _, err = s.Issue("user-1", "")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(Config{Secret: []byte("x")})
	assert.Equal(t, DefaultTTL, s.ttl)
	assert.Equal(t, DefaultIssuer, s.issuer)
}

func TestValidate_Errors(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestService(now)
	valid, _, err := issuer.Issue("user-1", "device-a")
	require.NoError(t, err)

	noneToken, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		UserID:   "user-1",
		DeviceID: "device-a",
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noDevice, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		UserID: "user-1",
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	otherIssuer := NewService(Config{Secret: []byte("test-secret"), Issuer: "someone-else"})
	otherIssuer.now = func() time.Time { return now }
	foreign, _, err := otherIssuer.Issue("user-1", "device-a")
	require.NoError(t, err)

	tests := []struct {
		validator *Service
		name      string
		token     string
	}{
		{name: "garbage", validator: issuer, token: "not.a.token"},
		{name: "wrong secret", validator: NewService(Config{Secret: []byte("other")}), token: valid},
		{name: "expired", validator: newTestService(now.Add(2 * time.Hour)), token: valid},
		{name: "alg none", validator: issuer, token: noneToken},
		{name: "missing device", validator: issuer, token: noDevice},
		{name: "foreign issuer", validator: issuer, token: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.validator.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestValidate_Leeway(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := newTestService(now).Issue("user-1", "device-a")
	require.NoError(t, err)

	// через 10 секунд после истечения токен еще принимается
	_, err = newTestService(now.Add(time.Hour + 10*time.Second)).Validate(token)
	assert.NoError(t, err)
}
