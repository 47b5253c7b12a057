package token

import (
	"errors"
	"time"

	"fulfillment-service/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// HSProvider verifies HS256 access tokens issued by the auth service and maps them to a Principal.
type HSProvider struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewHSProvider(secret, issuer, audience string) *HSProvider {
	return &HSProvider{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

type customClaims struct {
	Role      string `json:"role"`
	StoreID   string `json:"store_id,omitempty"`
	IsManager bool   `json:"is_manager,omitempty"`
	jwt.RegisteredClaims
}

// Sign issues a token for p. The service only verifies tokens; Sign exists for
// tooling and tests.
func (p *HSProvider) Sign(pr service.Principal, ttl time.Duration) (string, time.Time, error) {
	now := p.now()
	exp := now.Add(ttl)

	claims := customClaims{
		Role:      string(pr.Role),
		IsManager: pr.IsManager,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   pr.UserID.String(),
			Audience:  []string{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if pr.StoreID != uuid.Nil {
		claims.StoreID = pr.StoreID.String()
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(p.secret)
	return signed, exp, err
}

func (p *HSProvider) Parse(token string) (service.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &customClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithAudience(p.audience), jwt.WithIssuer(p.issuer), jwt.WithTimeFunc(p.now))
	if err != nil {
		return service.Principal{}, errors.Join(ErrInvalidToken, err)
	}
	cc, ok := parsed.Claims.(*customClaims)
	if !ok || !parsed.Valid {
		return service.Principal{}, ErrInvalidToken
	}

	uid, err := uuid.Parse(cc.Subject)
	if err != nil {
		return service.Principal{}, errors.Join(ErrInvalidToken, err)
	}
	pr := service.Principal{UserID: uid, Role: service.Role(cc.Role)}
	if !pr.Role.Valid() {
		return service.Principal{}, ErrInvalidToken
	}
	if pr.Role == service.RoleStaff {
		sid, err := uuid.Parse(cc.StoreID)
		if err != nil {
			return service.Principal{}, errors.Join(ErrInvalidToken, err)
		}
		pr.StoreID = sid
		pr.IsManager = cc.IsManager
	}
	return pr, nil
}
