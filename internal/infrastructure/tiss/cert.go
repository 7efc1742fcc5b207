// Carga del certificado del prestador desde .p12 (PKCS#12) o par PEM.

package tiss

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadCertificate elige el formato según la extensión. Ruta vacía = sin firma (cert vacío, sin error).
func LoadCertificate(certPath, keyPath, password string) (tls.Certificate, error) {
	switch {
	case certPath == "":
		return tls.Certificate{}, nil
	case strings.HasSuffix(strings.ToLower(certPath), ".p12"), strings.HasSuffix(strings.ToLower(certPath), ".pfx"):
		return LoadFromP12(certPath, password)
	case keyPath == "":
		return tls.LoadX509KeyPair(certPath, certPath)
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cargar PEM: %w", err)
	}
	return cert, nil
}
