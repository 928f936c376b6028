package securefile

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLength = 32
	fileMagic = "FTENC1"
)

var errMalformed = errors.New("malformed encrypted file")

func newUserKey() ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// fileAEAD derives a per-file AES-256-GCM cipher from the user key.
func fileAEAD(userKey []byte, fileID string) (cipher.AEAD, error) {
	sub := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, userKey, nil, []byte("fintrack export "+fileID)), sub); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// sealFile produces magic || nonce || ciphertext with fileID bound as associated data.
func sealFile(userKey []byte, fileID string, plaintext []byte) ([]byte, error) {
	aead, err := fileAEAD(userKey, fileID)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(fileMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, fileMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(fileID)), nil
}

func openFile(userKey []byte, fileID string, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(fileMagic)) {
		return nil, errMalformed
	}
	data = data[len(fileMagic):]

	aead, err := fileAEAD(userKey, fileID)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, errMalformed
	}

	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, []byte(fileID))
	if err != nil {
		return nil, fmt.Errorf("authenticate ciphertext: %w", ErrIntegrityViolation)
	}
	return plain, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
