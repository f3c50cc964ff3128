package fieldcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// ErrDecrypt aliases the domain sentinel so callers can match codec failures
// without importing the model package.
var ErrDecrypt = model.ErrDecrypt

const (
	ivSize    = aes.BlockSize
	tagSize   = sha256.Size
	keySep    = "$"
	partSep   = ":"
	decryptOp = "decrypt field"
)

// Codec encrypts and decrypts single text fields.
//
// Tokens it produces have the form
//
//	<key id> "$" hex(iv) ":" hex(ciphertext || hmac)
//
// Untagged "hex(iv):hex(ciphertext)" tokens are accepted on read when the
// keyring carries a legacy key.
type Codec struct {
	ring *Keyring
	rand io.Reader
}

// New creates a Codec over ring.
func New(ring *Keyring) *Codec {
	return &Codec{ring: ring, rand: rand.Reader}
}

// Encrypt seals plaintext under the primary key with a fresh random IV.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	keyID := c.ring.primary
	key := c.ring.keys[keyID]

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}

	block, err := aes.NewCipher(key.enc)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}

	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded), len(padded)+tagSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	sealed := append(ciphertext, authTag(key.mac, keyID, iv, ciphertext)...)

	var sb strings.Builder
	sb.Grow(len(keyID) + 1 + 2*ivSize + 1 + 2*len(sealed))
	sb.WriteString(keyID)
	sb.WriteString(keySep)
	sb.WriteString(hex.EncodeToString(iv))
	sb.WriteString(partSep)
	sb.WriteString(hex.EncodeToString(sealed))
	return sb.String(), nil
}

// Decrypt opens a token produced by Encrypt, or an untagged legacy token.
// Every failure wraps ErrDecrypt; messages never include the token.
func (c *Codec) Decrypt(token string) (string, error) {
	head, body, ok := strings.Cut(token, partSep)
	if !ok || head == "" || body == "" {
		return "", decryptErr("token is not in iv:ciphertext form")
	}

	keyID, ivHex, tagged := strings.Cut(head, keySep)
	if !tagged {
		ivHex, keyID = keyID, ""
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", decryptErr("iv is not hex")
	}
	if len(iv) != ivSize {
		return "", decryptErr(fmt.Sprintf("iv must be %d bytes", ivSize))
	}

	data, err := hex.DecodeString(body)
	if err != nil {
		return "", decryptErr("ciphertext is not hex")
	}

	if !tagged {
		return c.openLegacy(iv, data)
	}

	key, ok := c.ring.keys[keyID]
	if !ok {
		return "", decryptErr(fmt.Sprintf("unknown key id %q", keyID))
	}
	if len(data) < aes.BlockSize+tagSize {
		return "", decryptErr("ciphertext is truncated")
	}

	ciphertext, tag := data[:len(data)-tagSize], data[len(data)-tagSize:]
	if !hmac.Equal(tag, authTag(key.mac, keyID, iv, ciphertext)) {
		return "", decryptErr("authentication failed")
	}

	return openCBC(key.enc, iv, ciphertext)
}

// NeedsRotation reports whether token was not sealed under the primary key.
// Malformed tokens report false; Decrypt surfaces those.
func (c *Codec) NeedsRotation(token string) bool {
	head, _, ok := strings.Cut(token, partSep)
	if !ok {
		return false
	}
	keyID, _, tagged := strings.Cut(head, keySep)
	return !tagged || keyID != c.ring.primary
}

// Reseal re-encrypts token under the primary key when it needs rotation. It
// returns the token unchanged and false otherwise.
func (c *Codec) Reseal(token string) (string, bool, error) {
	if !c.NeedsRotation(token) {
		return token, false, nil
	}
	plaintext, err := c.Decrypt(token)
	if err != nil {
		return "", false, err
	}
	sealed, err := c.Encrypt(plaintext)
	if err != nil {
		return "", false, err
	}
	return sealed, true, nil
}

func (c *Codec) openLegacy(iv, ciphertext []byte) (string, error) {
	if c.ring.legacy == nil {
		return "", decryptErr("untagged token and no legacy key configured")
	}
	return openCBC(c.ring.legacy, iv, ciphertext)
}

func openCBC(key, iv, ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", decryptErr("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, ok := unpad(plain)
	if !ok {
		return "", decryptErr("bad padding")
	}
	return string(plain), nil
}

func authTag(macKey []byte, keyID string, iv, ciphertext []byte) []byte {
	m := hmac.New(sha256.New, macKey)
	m.Write([]byte(keyID))
	m.Write(iv)
	m.Write(ciphertext)
	return m.Sum(nil)
}

// pad applies PKCS#7 padding to a whole number of AES blocks.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}

func decryptErr(msg string) error {
	return &model.Error{Kind: model.ErrDecrypt, Op: decryptOp, Msg: msg}
}
