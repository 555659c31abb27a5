package auth

import (
	"fmt"
	"time"

	"mdip/config"
	"mdip/core/store"
	"mdip/core/utils"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "mdip"

type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string    `json:"token"`
	ID        string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer signs short-lived HS256 bearer tokens. A token only identifies the account;
// the role in it is informational and callers reload the user before authorizing.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(cfg *config.AppConfig, logger *utils.Logger) (*TokenIssuer, error) {
	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		random, err := utils.RandString(64)
		if err != nil {
			return nil, fmt.Errorf("token secret: %w", err)
		}
		secret = []byte(random)
		logger.Warnf("token_secret not set; using an ephemeral secret, tokens will not survive a restart")
	}
	return &TokenIssuer{secret: secret, ttl: cfg.EffectiveTokenTTL(), now: utils.NowUTC}, nil
}

func (t *TokenIssuer) Issue(user *store.User) (*Token, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	jti := uuid.Must(uuid.NewV4()).String()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     Role(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    tokenIssuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, err
	}
	return &Token{Value: signed, ID: jti, ExpiresAt: exp}, nil
}

func (t *TokenIssuer) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
