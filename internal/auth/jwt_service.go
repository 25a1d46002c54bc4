package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for family device tokens.
const DefaultAccessTokenTTL = 30 * 24 * time.Hour

// Roles carried in issued tokens.
const (
	RoleParent = "parent"
	RoleChild  = "child"
	RoleDevice = "device"
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	Household string `json:"hid"`
	MemberID  string `json:"mid,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenInput holds the parameters used when generating a new token.
type TokenInput struct {
	Household string
	MemberID  string
	Role      string
	TTL       time.Duration
}

// JWTService is responsible for issuing and validating household bearer tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// GenerateToken issues a signed JWT for a household device or member.
func (s *JWTService) GenerateToken(input TokenInput) (string, error) {
	if input.Household == "" {
		return "", errors.New("jwt: household is required")
	}

	role := input.Role
	if role == "" {
		role = RoleDevice
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	subject := input.MemberID
	if subject == "" {
		subject = input.Household
	}

	claims := &Claims{
		Household: input.Household,
		MemberID:  input.MemberID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a signed JWT, returning the household claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}

	if claims.Household == "" {
		return nil, errors.New("jwt: missing household claim")
	}

	return &claims, nil
}
