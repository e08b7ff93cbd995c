package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ApprovalVerifier decodes signed approval requests. Tokens are HS256 only
// and carry no expiry unless the issuer added one.
type ApprovalVerifier struct {
	secret []byte
}

func NewApprovalVerifier(secret string) *ApprovalVerifier {
	return &ApprovalVerifier{secret: []byte(secret)}
}

// Sign encodes payload as a signed approval request.
func (v *ApprovalVerifier) Sign(payload map[string]any) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(payload))
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign approval request: %w", err)
	}
	return signed, nil
}

// Verify checks the signature of token and returns its payload.
func (v *ApprovalVerifier) Verify(token string) (map[string]any, error) {
	if token == "" {
		return nil, errors.New("empty approval request")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify approval request: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid approval request claims")
	}
	return claims, nil
}
