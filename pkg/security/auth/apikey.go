package auth

import (
	"crypto/subtle"
	"sync"
)

// KeyValidator validates API keys against a configured set of keys.
// The set can be replaced while requests are being served.
type KeyValidator struct {
	mu   sync.RWMutex
	keys []*KeyInfo
}

// NewKeyValidator creates a validator for keys.
func NewKeyValidator(keys []*KeyInfo) *KeyValidator {
	v := &KeyValidator{}
	v.Replace(keys)
	return v
}

// Validate checks key and returns its info. Every configured key is
// compared in constant time.
func (v *KeyValidator) Validate(key string) (*KeyInfo, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var match *KeyInfo
	for _, info := range v.keys {
		if subtle.ConstantTimeCompare([]byte(info.Key), []byte(key)) == 1 {
			match = info
		}
	}

	if match == nil {
		return nil, ErrInvalidKey
	}
	if !match.Enabled {
		return nil, ErrKeyDisabled
	}

	copied := *match
	return &copied, nil
}

// Replace swaps the configured keys. Entries with an empty key are skipped.
func (v *KeyValidator) Replace(keys []*KeyInfo) {
	next := make([]*KeyInfo, 0, len(keys))
	for _, info := range keys {
		if info == nil || info.Key == "" {
			continue
		}
		copied := *info
		next = append(next, &copied)
	}

	v.mu.Lock()
	v.keys = next
	v.mu.Unlock()
}

// Len returns the number of configured keys.
func (v *KeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
