package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Manager mints and verifies opaque API tokens.
//
// A token's plaintext is "<id>.<secret>" where id is a UUID used for the
// database lookup and secret is 32 bytes of randomness. The plaintext is
// handed to the client exactly once; only an HMAC of it is stored.
type Manager struct {
	secret []byte
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret)}
}

// Mint returns a fresh token id and the plaintext to hand to the client.
func (m *Manager) Mint() (id string, plain string, err error) {
	id = uuid.NewString()

	buf := make([]byte, 32)
	_, err = rand.Read(buf)

	if err != nil {
		return "", "", err
	}

	plain = id + "." + base64.RawURLEncoding.EncodeToString(buf)

	return id, plain, nil
}

// Deterministic HMAC hash (server-side pepper = token secret bytes).
// Store this in DB (never store the raw token).
func (m *Manager) Hash(plain string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(plain))
	return hex.EncodeToString(h.Sum(nil))
}

// Matches compares a stored hash against a presented plaintext in
// constant time.
func (m *Manager) Matches(storedHash, plain string) bool {
	computed := m.Hash(plain)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}

// SplitTokenID extracts the lookup id from a presented plaintext token.
func SplitTokenID(plain string) (string, bool) {
	id, rest, found := strings.Cut(plain, ".")

	if !found || rest == "" {
		return "", false
	}

	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}

	return id, true
}
