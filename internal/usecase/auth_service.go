package usecase

import (
	"context"
	"time"

	"dispatch-backend/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type AuthService struct {
	Drivers   *DriverService
	JWTSecret string
	TTL       time.Duration
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) Enabled() bool {
	return s != nil && s.JWTSecret != ""
}

// LoginDriver issues a driver token for the driver registered under phone.
func (s *AuthService) LoginDriver(ctx context.Context, phone string) (string, *domain.Driver, error) {
	d, err := s.Drivers.ByPhone(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	if !d.IsActive {
		return "", nil, ErrForbidden("driver is deactivated")
	}
	tok, err := s.Issue(domain.Actor{ID: d.ID, Type: domain.ActorDriver})
	if err != nil {
		return "", nil, err
	}
	return tok, d, nil
}

func (s *AuthService) Issue(actor domain.Actor) (string, error) {
	if !s.Enabled() {
		return "", ErrBadRequest("authentication is disabled")
	}
	if actor.ID == "" || !actor.Type.Valid() {
		return "", ErrBadRequest("invalid actor")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	now := time.Now()
	claims := Claims{
		Role: string(actor.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.JWTSecret))
}

func (s *AuthService) Verify(token string) (domain.Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return domain.Actor{}, ErrUnauthorized("invalid token")
	}
	actor := domain.Actor{ID: claims.Subject, Type: domain.ActorType(claims.Role)}
	if actor.ID == "" || !actor.Type.Valid() {
		return domain.Actor{}, ErrUnauthorized("invalid token claims")
	}
	return actor, nil
}
