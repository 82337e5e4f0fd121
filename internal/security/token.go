package security

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueSessionToken signs a JWT carrying the session ID. The token is only a
// pointer into the session table; expiry and device binding are enforced
// against the stored session record, not the token.
func IssueSessionToken(secret string, expiry time.Duration, sessionID string, userID uint64) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("security: missing jwt secret")
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sid": sessionID,
		"sub": strconv.FormatUint(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

// ParseSessionToken verifies a JWT and returns the embedded session ID.
func ParseSessionToken(secret, raw string) (string, error) {
	token, errParse := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if errParse != nil {
		return "", fmt.Errorf("security: parse token: %w", errParse)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("security: unexpected claims type")
	}
	sessionID, _ := claims["sid"].(string)
	if sessionID == "" {
		return "", fmt.Errorf("security: token missing session id")
	}
	return sessionID, nil
}
