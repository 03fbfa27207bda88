package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
)

const nonceLength = 20

// NonceManager issues short-lived action tokens. A nonce is valid for the
// tick it was issued in and the one after; a tick is half the lifetime.
type NonceManager struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewNonceManager keys nonces with secret. An empty secret gets a random
// per-process key, so nonces do not survive a restart.
func NewNonceManager(secret string, lifetime time.Duration) (*NonceManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	if lifetime <= 0 {
		lifetime = constants.NonceLifetime
	}
	return &NonceManager{secret: key, lifetime: lifetime, now: time.Now}, nil
}

func (n *NonceManager) tick(at time.Time) int64 {
	half := int64(n.lifetime / 2 / time.Second)
	if half <= 0 {
		half = 1
	}
	return at.Unix()/half + 1
}

func (n *NonceManager) sign(action string, tick int64) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	return hex.EncodeToString(mac.Sum(nil))[:nonceLength]
}

// Create returns a nonce for action.
func (n *NonceManager) Create(action string) string {
	return n.sign(action, n.tick(n.now()))
}

// Verify reports whether nonce was issued for action within the lifetime.
func (n *NonceManager) Verify(nonce, action string) bool {
	if n == nil || len(nonce) != nonceLength {
		return false
	}
	current := n.tick(n.now())
	for _, tick := range []int64{current, current - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(action, tick))) {
			return true
		}
	}
	return false
}
