package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Secret   string        `envconfig:"JWT_SECRET" json:"-"`
	Issuer   string        `envconfig:"JWT_ISSUER" default:"library-management-system"`
	Audience string        `envconfig:"JWT_AUDIENCE" default:"library-users"`
	TTL      time.Duration `envconfig:"JWT_TTL" default:"168h"`
}

type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	cfg Config
	now func() time.Time
}

func NewTokenManager(cfg Config) *TokenManager {
	return &TokenManager{cfg: cfg, now: time.Now}
}

// Issue signs an HS256 token for p.
func (m *TokenManager) Issue(p Principal) (string, time.Time, error) {
	issuedAt := m.now().UTC()
	exp := issuedAt.Add(m.cfg.TTL)
	claims := Claims{
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Parse verifies signature, issuer, audience and expiry.
func (m *TokenManager) Parse(raw string) (Principal, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(m.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
