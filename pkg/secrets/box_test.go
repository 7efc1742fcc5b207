package secrets_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/pkg/secrets"
)

const llave = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBox_IdaYVuelta(t *testing.T) {
	box, err := secrets.NewBox(llave)
	require.NoError(t, err)

	enc, err := box.Encrypt("s3nh@-operadora")
	require.NoError(t, err)
	assert.NotContains(t, enc, "s3nh@")

	dec, err := box.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "s3nh@-operadora", dec)

	otro, err := box.Encrypt("s3nh@-operadora")
	require.NoError(t, err)
	assert.NotEqual(t, enc, otro, "cada cifrado usa un nonce nuevo")
}

func TestBox_LlaveIncorrecta(t *testing.T) {
	box, _ := secrets.NewBox(llave)
	enc, _ := box.Encrypt("x")

	otra, err := secrets.NewBox(strings.Repeat("ff", 32))
	require.NoError(t, err)
	_, err = otra.Decrypt(enc)
	assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)
}

func TestNewBox_LlaveCorta(t *testing.T) {
	_, err := secrets.NewBox("abcd")
	assert.Error(t, err)
}

func TestBox_VacioEsVacio(t *testing.T) {
	box, _ := secrets.NewBox(llave)
	dec, err := box.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, dec)
}
