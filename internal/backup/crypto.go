package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// magic marks an encrypted snapshot and its format version.
var magic = []byte("TSB1")

var (
	ErrNotEncrypted    = errors.New("file is not an encrypted snapshot")
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted snapshot")
)

func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives an AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// EncryptFile encrypts srcPath to dstPath as
// [magic][16-byte salt][12-byte nonce][AES-256-GCM ciphertext].
// The header is authenticated as additional data.
func EncryptFile(srcPath, dstPath, passphrase string, salt []byte) error {
	if len(salt) != saltSize {
		return fmt.Errorf("salt must be %d bytes", saltSize)
	}
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	header := make([]byte, 0, len(magic)+saltSize+nonceSize)
	header = append(header, magic...)
	header = append(header, salt...)
	header = append(header, nonce...)

	out := gcm.Seal(header, nonce, plaintext, header)
	if err := os.WriteFile(dstPath, out, 0600); err != nil {
		return fmt.Errorf("write encrypted file: %w", err)
	}
	return nil
}

// DecryptFile reverses EncryptFile, reading the salt from the header.
func DecryptFile(srcPath, dstPath, passphrase string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read encrypted file: %w", err)
	}

	headerLen := len(magic) + saltSize + nonceSize
	if len(data) < headerLen || !bytes.Equal(data[:len(magic)], magic) {
		return ErrNotEncrypted
	}
	header := data[:headerLen]
	salt := header[len(magic) : len(magic)+saltSize]
	nonce := header[len(magic)+saltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}
	plaintext, err := gcm.Open(nil, nonce, data[headerLen:], header)
	if err != nil {
		return ErrWrongPassphrase
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("write decrypted file: %w", err)
	}
	return nil
}
