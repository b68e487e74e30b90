package nips

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// NIP-04 direct message encryption (AES-256-CBC over an ECDH shared
// secret). Deprecated by NIP-44 but still the wire format for kind 4.

// ErrDecryptionFailed is returned for malformed ciphertext or a wrong
// peer key. Callers substitute a placeholder message, never crash.
var ErrDecryptionFailed = errors.New("decryption failed")

// parseXOnlyPubKey lifts a 32-byte x-only key onto the curve. Tries the
// even y-coordinate first (the BIP-340 convention), then odd.
func parseXOnlyPubKey(pubKeyBytes []byte) (*btcec.PublicKey, error) {
	if len(pubKeyBytes) != 32 {
		return nil, errors.New("invalid public key length")
	}
	pubKeyWithPrefix := append([]byte{0x02}, pubKeyBytes...)
	pubKey, err := btcec.ParsePubKey(pubKeyWithPrefix)
	if err != nil {
		pubKeyWithPrefix[0] = 0x03
		pubKey, err = btcec.ParsePubKey(pubKeyWithPrefix)
		if err != nil {
			return nil, errors.New("invalid public key")
		}
	}
	return pubKey, nil
}

// Nip04SharedSecret computes the NIP-04 shared secret between a local
// secret key and a peer's x-only public key. Returns the X coordinate
// of the ECDH point per RFC 5903 Section 9, zero-padded to 32 bytes
// (x.Bytes() may return fewer bytes when leading bytes are zero).
func Nip04SharedSecret(privKeyBytes, pubKeyBytes []byte) ([]byte, error) {
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	if privKey == nil {
		return nil, errors.New("invalid private key")
	}
	pubKey, err := parseXOnlyPubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}

	sharedX := btcec.GenerateSharedSecret(privKey, pubKey)
	if len(sharedX) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(sharedX):], sharedX)
		return padded, nil
	}
	return sharedX, nil
}

// Nip04Encrypt encrypts plaintext for the peer.
// Output format: base64(ciphertext)?iv=base64(iv)
func Nip04Encrypt(plaintext string, sharedSecret []byte) (string, error) {
	if len(sharedSecret) != 32 {
		return "", errors.New("NIP-04 shared secret must be 32 bytes")
	}

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	// PKCS7 padding
	plaintextBytes := []byte(plaintext)
	blockSize := aes.BlockSize
	padding := blockSize - (len(plaintextBytes) % blockSize)
	paddedPlaintext := make([]byte, len(plaintextBytes)+padding)
	copy(paddedPlaintext, plaintextBytes)
	for i := len(plaintextBytes); i < len(paddedPlaintext); i++ {
		paddedPlaintext[i] = byte(padding)
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(paddedPlaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, paddedPlaintext)

	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Nip04Decrypt decrypts a NIP-04 payload. Every malformed-input path
// maps to ErrDecryptionFailed: with CBC and no MAC, a wrong key is
// indistinguishable from corrupt ciphertext until padding checks fail.
func Nip04Decrypt(payload string, sharedSecret []byte) (string, error) {
	parts := strings.Split(payload, "?iv=")
	if len(parts) != 2 {
		return "", ErrDecryptionFailed
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrDecryptionFailed
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(iv) != 16 {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrDecryptionFailed
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	// Strip PKCS7 padding
	padding := int(plaintext[len(plaintext)-1])
	if padding > aes.BlockSize || padding == 0 || padding > len(plaintext) {
		return "", ErrDecryptionFailed
	}
	for i := len(plaintext) - padding; i < len(plaintext); i++ {
		if plaintext[i] != byte(padding) {
			return "", ErrDecryptionFailed
		}
	}

	return string(plaintext[:len(plaintext)-padding]), nil
}
