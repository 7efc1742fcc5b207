// Package tiss: interfaz para firma digital XMLDSig de mensajes TISS.

package tiss

import "crypto/tls"

// Signer firma un mensagemTISS y devuelve el XML con ds:Signature inyectado.
type Signer interface {
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
