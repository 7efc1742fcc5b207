package tiss_test

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/pkg/tiss"
)

const mensagemEjemplo = `<?xml version="1.0" encoding="ISO-8859-1"?>
<ans:mensagemTISS xmlns:ans="http://www.ans.gov.br/padroes/tiss/schemas">
  <ans:cabecalho>
    <ans:identificacaoTransacao>
      <ans:tipoTransacao>ENVIO_LOTE_GUIAS</ans:tipoTransacao>
      <ans:sequencialTransacao>17</ans:sequencialTransacao>
    </ans:identificacaoTransacao>
  </ans:cabecalho>
  <ans:prestadorParaOperadora>
    <ans:loteGuias><ans:numeroLote>17</ans:numeroLote></ans:loteGuias>
  </ans:prestadorParaOperadora>
  <ans:epilogo><ans:hash>PENDIENTE</ans:hash></ans:epilogo>
</ans:mensagemTISS>`

func TestComputeHashBytes_ConcatenaTextoSinHash(t *testing.T) {
	got, err := tiss.ComputeHashBytes([]byte(mensagemEjemplo))
	require.NoError(t, err)

	sum := md5.Sum([]byte("ENVIO_LOTE_GUIAS" + "17" + "17"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got, "el hash excluye el propio elemento hash")
}

func TestComputeHashBytes_XMLInvalido(t *testing.T) {
	_, err := tiss.ComputeHashBytes([]byte("<ans:mensagemTISS>"))
	assert.Error(t, err)
}

func TestEncodeDocument_Latin1(t *testing.T) {
	in := []byte(`<?xml version="1.0" encoding="UTF-8"?><ans:d xmlns:ans="x">Intervenção</ans:d>`)
	out, err := tiss.EncodeDocument(tiss.CharsetISO88591, in)
	require.NoError(t, err)
	assert.Contains(t, string(out[:45]), `encoding="ISO-8859-1"`)
	assert.NotContains(t, string(out), "Intervenção", "el contenido ya no es UTF-8")

	back, err := tiss.DecodeCharset(tiss.CharsetISO88591, out)
	require.NoError(t, err)
	assert.Contains(t, string(back), "Intervenção")

	h1, err := tiss.ComputeHashBytes(in)
	require.NoError(t, err)
	h2, err := tiss.ComputeHashBytes(out)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "el hash se calcula sobre el texto, no sobre los bytes")
}
