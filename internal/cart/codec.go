package cart

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keyInfo   = "storefront cart cookie v1"
)

var (
	ErrMalformed = errors.New("cart cookie malformed")
	ErrExpired   = errors.New("cart cookie expired")
)

type sealed struct {
	IssuedAt int64    `json:"iat"`
	Cart     Snapshot `json:"cart"`
}

// Codec seals snapshots into opaque cookie values.
type Codec struct {
	key [32]byte
	ttl time.Duration
	now func() time.Time
}

func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("cart secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	c := &Codec{ttl: ttl, now: time.Now}
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), c.key[:]); err != nil {
		return nil, fmt.Errorf("derive cart key: %w", err)
	}
	return c, nil
}

func (c *Codec) TTL() time.Duration { return c.ttl }

func (c *Codec) Seal(s Snapshot) (string, error) {
	payload, err := json.Marshal(sealed{IssuedAt: c.now().Unix(), Cart: s})
	if err != nil {
		return "", fmt.Errorf("marshal cart: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("cart nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], payload, &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Tampered, foreign and stale values are errors.
func (c *Codec) Open(value string) (Snapshot, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return Snapshot{}, ErrMalformed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	payload, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return Snapshot{}, ErrMalformed
	}

	var body sealed
	if err := json.Unmarshal(payload, &body); err != nil {
		return Snapshot{}, ErrMalformed
	}
	if c.now().Sub(time.Unix(body.IssuedAt, 0)) > c.ttl {
		return Snapshot{}, ErrExpired
	}
	if body.Cart.Lines == nil {
		body.Cart.Lines = []Line{}
	}
	return body.Cart, nil
}
