// certcheck diagnostica el certificado del prestador configurado en TISS_CERT_PATH:
// lo carga, muestra titular y vigencia y firma un mensaje de prueba.
package main

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/pkg/config"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

const probe = `<ans:mensagemTISS xmlns:ans="http://www.ans.gov.br/padroes/tiss/schemas"><ans:cabecalho/></ans:mensagemTISS>`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: "development", Level: "info", App: "certcheck"})

	if cfg.TISS.CertPath == "" {
		log.Error().Msg("TISS_CERT_PATH vacío: no hay certificado que verificar")
		os.Exit(1)
	}
	log.Info().Str("path", cfg.TISS.CertPath).Msg("leyendo certificado")

	cert, err := tiss.LoadCertificate(cfg.TISS.CertPath, cfg.TISS.CertKeyPath, cfg.TISS.CertPassword)
	if err != nil {
		log.Error().Err(err).Msg("el archivo no existe, la contraseña es incorrecta o el formato no es válido")
		os.Exit(1)
	}

	leaf := cert.Leaf
	if leaf == nil && len(cert.Certificate) > 0 {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			log.Error().Err(err).Msg("certificado ilegible")
			os.Exit(1)
		}
	}
	now := time.Now()
	log.Info().
		Str("subject", leaf.Subject.String()).
		Str("issuer", leaf.Issuer.String()).
		Time("not_before", leaf.NotBefore).
		Time("not_after", leaf.NotAfter).
		Bool("vigente", now.After(leaf.NotBefore) && now.Before(leaf.NotAfter)).
		Msg("certificado cargado")

	signed, err := tiss.NewDigitalSignatureService().Sign([]byte(probe), cert)
	if err != nil {
		log.Error().Err(err).Msg("el certificado no sirve para firmar mensajes TISS")
		os.Exit(1)
	}
	log.Info().Int("bytes", len(signed)).Msg("firma de prueba correcta")
}
