// Package secrets cifra y descifra credenciales en reposo (contraseñas de webservices de
// operadoras) con XChaCha20-Poly1305.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext el texto cifrado no es válido o la llave no corresponde.
var ErrInvalidCiphertext = errors.New("secrets: texto cifrado inválido")

// Box cifra con una llave simétrica de 32 bytes.
type Box struct {
	key []byte
}

// NewBox construye la caja desde la llave en hex (64 caracteres).
func NewBox(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("secrets: llave no es hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secrets: la llave debe tener %d bytes, tiene %d", chacha20poly1305.KeySize, len(key))
	}
	return &Box{key: key}, nil
}

// Encrypt devuelve base64(nonce || ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generar nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt invierte Encrypt. Una cadena vacía devuelve cadena vacía.
func (b *Box) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// Plaintext no cifra: se usa cuando no hay SECRETS_KEY (desarrollo) y la contraseña se guarda tal cual.
type Plaintext struct{}

// Decrypt devuelve el valor sin cambios.
func (Plaintext) Decrypt(encoded string) (string, error) {
	return encoded, nil
}
