package masterconn

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// incarnationClaims identifies one registration epoch for a node at a
// cell; the master rejects requests whose incarnation does not match
// its current record, which the connector treats as a reset signal
// (spec §4.7 "a 'mismatched incarnation' response").
type incarnationClaims struct {
	jwt.RegisteredClaims
	NodeID      string `json:"nodeId"`
	Incarnation uint64 `json:"incarnation"`
}

// IncarnationSigner issues and verifies incarnation tokens with an
// HMAC key shared with the master.
type IncarnationSigner struct {
	key []byte
}

// NewIncarnationSigner constructs a signer over key.
func NewIncarnationSigner(key []byte) *IncarnationSigner {
	return &IncarnationSigner{key: key}
}

// Issue produces a signed incarnation token for nodeID/incarnation.
func (s *IncarnationSigner) Issue(nodeID string, incarnation uint64, ttl time.Duration) (string, error) {
	claims := incarnationClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
		NodeID:           nodeID,
		Incarnation:      incarnation,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify parses and validates a token, returning its claims.
func (s *IncarnationSigner) Verify(tokenString string) (nodeID string, incarnation uint64, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &incarnationClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		return "", 0, err
	}
	claims, ok := token.Claims.(*incarnationClaims)
	if !ok || !token.Valid {
		return "", 0, fmt.Errorf("masterconn: invalid incarnation token")
	}
	return claims.NodeID, claims.Incarnation, nil
}
