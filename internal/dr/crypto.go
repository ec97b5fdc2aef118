package dr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	aesKeySize = 32
	ivSize     = 16
	pbkdf2Iter = 100_000
)

// deriveKey right-pads/truncates secret to 32 bytes, or runs it through
// PBKDF2-SHA256 first when a salt is supplied (stronger, at the cost of
// needing the salt again at decrypt time).
func deriveKey(secret string, salt []byte) []byte {
	if len(salt) > 0 {
		return pbkdf2.Key([]byte(secret), salt, pbkdf2Iter, aesKeySize, sha256.New)
	}
	key := make([]byte, aesKeySize)
	copy(key, secret)
	return key
}

// encryptAESCBC produces IV(16) || ciphertext, PKCS#7-padded.
func encryptAESCBC(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	iv := out[:ivSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out[ivSize:], padded)
	return out, nil
}

func decryptAESCBC(blob []byte, key []byte) ([]byte, error) {
	if len(blob) < ivSize || (len(blob)-ivSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("dr: malformed encrypted backup blob")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := blob[:ivSize]
	ciphertext := blob[ivSize:]
	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(out, ciphertext)

	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("dr: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("dr: invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}
