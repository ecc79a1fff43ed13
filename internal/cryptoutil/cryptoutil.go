// Package cryptoutil holds the hashing, encryption and randomness
// primitives the vote ledger and lottery build on. All functions are
// deterministic for the same inputs except the random generators.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrDecryptionFailed is returned for ciphertext that was not produced by
// Encrypt with the same key, or that was altered afterward.
var ErrDecryptionFailed = errors.New("failed to decrypt vote data")

// BallNumberSpace bounds deterministic ball numbers to six digits.
const BallNumberSpace = 1_000_000

// Service wraps the process-wide encryption key. Construct it once at
// startup; New fails fast if the key is absent rather than deferring the
// error to the first encrypt call.
type Service struct {
	key []byte
}

func New(secret string) (*Service, error) {
	if secret == "" {
		return nil, errors.New("encryption key is not set")
	}
	key := sha256.Sum256([]byte(secret))
	return &Service{key: key[:]}, nil
}

// Encrypt seals plaintext with AES-256-CBC under a fresh IV. The result
// is "ivhex:cipherhex", the same wire format the receipts store expects.
func (s *Service) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

func (s *Service) Decrypt(encrypted string) ([]byte, error) {
	ivHex, cipherHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return nil, ErrDecryptionFailed
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrDecryptionFailed
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return unpadded, nil
}

// CreateHMAC signs data with the service key.
func (s *Service) CreateHMAC(data string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) VerifyHMAC(data, expected string) bool {
	actual := s.CreateHMAC(data)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

// HashData returns the hex SHA-256 digest of data.
func HashData(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// GenerateVerificationCode derives the short shareable code printed on a
// vote receipt: the first 16 hex characters of a salted hash, uppercased.
func GenerateVerificationCode(votingID, userID string, nonce int64) string {
	data := fmt.Sprintf("%s-%s-%d", votingID, userID, nonce)
	return strings.ToUpper(HashData(data)[:16])
}

// GenerateBallNumber derives the stable lottery ball for a user+election
// pair. Same inputs always yield the same ball.
func GenerateBallNumber(userID string, electionID int) int {
	digest := HashData(fmt.Sprintf("%s-%d", userID, electionID))
	value, err := hex.DecodeString(digest[:8])
	if err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint32(value)) % BallNumberSpace
}

// SecureRandomInt returns a uniform integer in [0, max) from the
// cryptographically secure source. The lottery shuffle must use this,
// never math/rand.
func SecureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, errors.New("max must be positive")
	}
	// Rejection sampling keeps the result unbiased.
	bound := uint32(max)
	limit := ^uint32(0) - ^uint32(0)%bound
	buf := make([]byte, 4)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, err
		}
		value := binary.BigEndian.Uint32(buf)
		if value < limit {
			return int(value % bound), nil
		}
	}
}

// GenerateRandomSeed returns 32 random bytes hex-encoded, published with
// each lottery draw for transparency.
func GenerateRandomSeed() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewUUID returns a random UUID string.
func NewUUID() string {
	return uuid.NewString()
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
