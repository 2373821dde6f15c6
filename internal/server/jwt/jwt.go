// Package jwt выпускает и проверяет access токены устройств relay сервера.
package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTTL время жизни токена по умолчанию
	DefaultTTL = 30 * 24 * time.Hour
	// DefaultIssuer значение iss по умолчанию
	DefaultIssuer = "coursesync"

	leeway = 30 * time.Second
)

var (
	// ErrInvalidToken токен не прошел проверку подписи, срока или claims
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject в токене или при выпуске не указан пользователь или устройство
	ErrMissingSubject = errors.New("token subject is required")
)

// Claims содержимое access токена: пользователь и устройство
type Claims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	gojwt.RegisteredClaims
}

// Config параметры выпуска токенов
type Config struct {
	Issuer string
	Secret []byte
	TTL    time.Duration
}

// Service provides JWT token generation and validation
type Service struct {
	now    func() time.Time
	issuer string
	secret []byte
	ttl    time.Duration
}

// NewService creates a new JWT service.
// Secret should be a cryptographically secure random string.
func NewService(cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	return &Service{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Issue выпускает подписанный HS256 токен для устройства пользователя
func (s *Service) Issue(userID, deviceID string) (string, time.Time, error) {
	if userID == "" || deviceID == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(expiresAt),
		},
	}

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate проверяет подпись, алгоритм, срок действия и издателя токена
func (s *Service) Validate(token string) (*Claims, error) {
	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims, func(t *gojwt.Token) (any, error) {
		if t.Method != gojwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		gojwt.WithLeeway(leeway),
		gojwt.WithIssuer(s.issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.UserID == "" || claims.DeviceID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingSubject)
	}
	return &claims, nil
}
