// Package secure implements the authenticated-encryption envelope used
// on the intake transport leg: a three-part signed token whose payload
// carries AES-256-GCM ciphertext with a bounded validity window.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoSecret       = errors.New("no encryption secret configured")
	ErrMalformedToken = errors.New("token is not a three-part envelope")
	ErrBadSignature   = errors.New("envelope signature mismatch")
	ErrExpired        = errors.New("envelope has expired")
	ErrDecryptFailed  = errors.New("envelope decryption failed")
)

const gcmNonceSize = 12

// header declares the signing algorithm and, for encrypted envelopes,
// the cipher. A token whose header lacks the Enc marker is a legacy
// plaintext envelope: signed and expiring, but not encrypted.
type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Enc string `json:"enc,omitempty"`
}

type claims struct {
	Data     string `json:"data"`
	IV       string `json:"iv,omitempty"`
	Tag      string `json:"tag,omitempty"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// Envelope seals and opens tokens. Keys are derived from opaque
// config-supplied secrets; the first secret signs and encrypts new
// tokens, the rest are accepted during verification so secrets can be
// rotated without breaking in-flight tokens.
type Envelope struct {
	keys     [][32]byte
	validity time.Duration
}

func NewEnvelope(secrets []string, validity time.Duration) (*Envelope, error) {
	if len(secrets) == 0 {
		return nil, ErrNoSecret
	}
	keys := make([][32]byte, 0, len(secrets))
	for _, s := range secrets {
		if strings.TrimSpace(s) == "" {
			return nil, ErrNoSecret
		}
		keys = append(keys, sha256.Sum256([]byte(s)))
	}
	return &Envelope{keys: keys, validity: validity}, nil
}

// Seal encrypts the plaintext under the primary key and returns the
// signed three-part token.
func (e *Envelope) Seal(plaintext []byte, now time.Time) (string, error) {
	block, err := aes.NewCipher(e.keys[0][:])
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	headerPart, err := encodePart(header{Alg: "HS256", Typ: "JWT", Enc: "A256GCM"})
	if err != nil {
		return "", err
	}
	payloadPart, err := encodePart(claims{
		Data:     base64.RawURLEncoding.EncodeToString(sealed[:tagStart]),
		IV:       base64.RawURLEncoding.EncodeToString(iv),
		Tag:      base64.RawURLEncoding.EncodeToString(sealed[tagStart:]),
		IssuedAt: now.Unix(),
		Expiry:   now.Add(e.validity).Unix(),
	})
	if err != nil {
		return "", err
	}

	signature := e.sign(e.keys[0], headerPart, payloadPart)
	return headerPart + "." + payloadPart + "." + signature, nil
}

// Open verifies and decrypts a token. The signature is checked before
// any part of the payload is interpreted; a mismatch aborts without
// attempting decryption, so the endpoint cannot be used as a
// decryption oracle.
func (e *Envelope) Open(token string, now time.Time) ([]byte, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	keyIdx := -1
	for i, key := range e.keys {
		if hmac.Equal([]byte(e.sign(key, parts[0], parts[1])), []byte(parts[2])) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, ErrBadSignature
	}

	var hdr header
	if err := decodePart(parts[0], &hdr); err != nil {
		return nil, fmt.Errorf("%w: bad header", ErrMalformedToken)
	}
	var body claims
	if err := decodePart(parts[1], &body); err != nil {
		return nil, fmt.Errorf("%w: bad payload", ErrMalformedToken)
	}

	if now.Unix() > body.Expiry {
		return nil, ErrExpired
	}

	// Legacy plaintext envelope: signed but not encrypted.
	if hdr.Enc == "" {
		return []byte(body.Data), nil
	}

	ciphertext, err1 := base64.RawURLEncoding.DecodeString(body.Data)
	iv, err2 := base64.RawURLEncoding.DecodeString(body.IV)
	tag, err3 := base64.RawURLEncoding.DecodeString(body.Tag)
	if err1 != nil || err2 != nil || err3 != nil || len(iv) != gcmNonceSize {
		return nil, fmt.Errorf("%w: bad cipher fields", ErrMalformedToken)
	}

	block, err := aes.NewCipher(e.keys[keyIdx][:])
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func (e *Envelope) sign(key [32]byte, headerPart, payloadPart string) string {
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(headerPart + "." + payloadPart))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func encodePart(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodePart(part string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(part)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
