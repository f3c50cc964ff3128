// Package fieldcrypt implements the reversible field codec used for personally
// identifiable columns: AES-256-CBC with a fresh IV per value, authenticated
// with HMAC-SHA256 and tagged with the identifier of the key that sealed it.
package fieldcrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length in bytes of every configured field key.
const KeySize = 32

const subkeyInfo = "civicrecords field codec v1"

// sealKey holds the subkeys derived from one configured key.
type sealKey struct {
	enc []byte
	mac []byte
}

// Keyring holds the process-wide key material. It is immutable after
// construction and safe for concurrent use.
type Keyring struct {
	primary string
	keys    map[string]sealKey
	legacy  []byte // raw AES key for tokens written without a key tag; may be nil
}

// NewKeyring builds a keyring from raw 32-byte keys indexed by key ID. primary
// names the key used for new tokens. legacy, when non-nil, is the raw key that
// decrypts untagged "iv:ciphertext" tokens.
func NewKeyring(primary string, keys map[string][]byte, legacy []byte) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keyring: at least one key is required")
	}
	if _, ok := keys[primary]; !ok {
		return nil, fmt.Errorf("keyring: primary key %q is not configured", primary)
	}
	if legacy != nil && len(legacy) != KeySize {
		return nil, fmt.Errorf("keyring: legacy key must be %d bytes, got %d", KeySize, len(legacy))
	}

	ring := &Keyring{primary: primary, keys: make(map[string]sealKey, len(keys)), legacy: legacy}
	for id, secret := range keys {
		if !validKeyID(id) {
			return nil, fmt.Errorf("keyring: key id %q must be lower-case letters and digits", id)
		}
		if len(secret) != KeySize {
			return nil, fmt.Errorf("keyring: key %q must be %d bytes, got %d", id, KeySize, len(secret))
		}
		sk, err := deriveSealKey(secret)
		if err != nil {
			return nil, fmt.Errorf("keyring: derive key %q: %w", id, err)
		}
		ring.keys[id] = sk
	}

	return ring, nil
}

// Primary returns the ID of the key used for new tokens.
func (k *Keyring) Primary() string {
	return k.primary
}

// IDs returns the configured key IDs in sorted order.
func (k *Keyring) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func deriveSealKey(secret []byte) (sealKey, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(subkeyInfo))
	buf := make([]byte, 2*KeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return sealKey{}, err
	}
	return sealKey{enc: buf[:KeySize], mac: buf[KeySize:]}, nil
}

func validKeyID(id string) bool {
	if id == "" {
		return false
	}
	for _, ch := range id {
		if !(ch >= 'a' && ch <= 'z') && !(ch >= '0' && ch <= '9') {
			return false
		}
	}
	return true
}

// ParseKeys parses a comma-separated list of "id:hex" pairs, each hex value
// encoding exactly KeySize bytes.
func ParseKeys(spec string) (map[string][]byte, error) {
	keys := make(map[string][]byte)
	for i, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, hexKey, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("key entry %d: expected id:hex", i+1)
		}
		id = strings.TrimSpace(id)
		secret, err := hex.DecodeString(strings.TrimSpace(hexKey))
		if err != nil {
			return nil, fmt.Errorf("key %q: invalid hex", id)
		}
		if len(secret) != KeySize {
			return nil, fmt.Errorf("key %q: must be %d bytes, got %d", id, KeySize, len(secret))
		}
		if _, dup := keys[id]; dup {
			return nil, fmt.Errorf("key %q configured twice", id)
		}
		keys[id] = secret
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no field keys configured")
	}
	return keys, nil
}

// GenerateKey returns a new random key encoded as hex, suitable for ParseKeys.
func GenerateKey() (string, error) {
	secret := make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(secret), nil
}
