package api

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenAudience = "piatto-api"

// tokenSource signs short-lived JWTs from an "id:secret" API key.
type tokenSource struct {
	id     string
	secret []byte
	now    func() time.Time
}

func newTokenSource(apiKey string) (*tokenSource, error) {
	keyParts := strings.Split(apiKey, ":")
	if len(keyParts) != 2 {
		return nil, fmt.Errorf("invalid api key format: expected id:secret")
	}

	secret, err := hex.DecodeString(keyParts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret hex: %w", err)
	}

	return &tokenSource{id: keyParts[0], secret: secret, now: time.Now}, nil
}

// Token generates a token valid for five minutes.
func (ts *tokenSource) Token() (string, error) {
	now := ts.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": tokenAudience,
	})
	token.Header["kid"] = ts.id

	return token.SignedString(ts.secret)
}
