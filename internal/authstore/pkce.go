package authstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/google/uuid"
)

// pkceVerifierLength is within RFC 7636's 43-128 character range.
const pkceVerifierLength = 64

// pkceUnreservedChars is RFC 7636's unreserved character set.
const pkceUnreservedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// newPKCEVerifier generates a cryptographically random code verifier.
func newPKCEVerifier() (string, error) {
	buf := make([]byte, pkceVerifierLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, pkceVerifierLength)
	for i, b := range buf {
		out[i] = pkceUnreservedChars[int(b)%len(pkceUnreservedChars)]
	}
	return string(out), nil
}

// pkceChallengeS256 derives the S256 code challenge from a verifier.
func pkceChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// newState generates a random value for the OAuth "state" parameter.
func newState() string {
	return uuid.NewString()
}
