package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/claims-engine/pkg/logger"
)

func TestComponent_AgregaCampo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Env: "production", Level: "debug", Output: &buf})

	log.Component("webservice").Info().Str("operator", "op-1").Msg("envío")

	out := buf.String()
	assert.Contains(t, out, `"component":"webservice"`)
	assert.Contains(t, out, `"operator":"op-1"`)
	assert.Contains(t, out, `"message":"envío"`)
}

func TestNivel_FiltraDebug(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Env: "production", Level: "warn", Output: &buf})

	log.Info().Msg("oculto")
	assert.Empty(t, buf.String())

	log.Warn().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_CampoAppYTenant(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Env: "production", App: "claims-engine", Output: &buf})

	log.Component("deadline").Tenant("t-1").Info().Msg("aviso")

	out := buf.String()
	assert.Contains(t, out, `"app":"claims-engine"`)
	assert.Contains(t, out, `"component":"deadline"`)
	assert.Contains(t, out, `"tenant_id":"t-1"`)
}

func TestNivel_VacioODesconocidoEsInfo(t *testing.T) {
	for _, level := range []string{"", "verboso", " INFO "} {
		var buf bytes.Buffer
		log := logger.New(logger.Config{Env: "production", Level: level, Output: &buf})
		log.Debug().Msg("oculto")
		log.Info().Msg("visible")
		assert.NotContains(t, buf.String(), "oculto", "nivel %q", level)
		assert.Contains(t, buf.String(), "visible", "nivel %q", level)
	}
}

func TestNop_NoEscribe(t *testing.T) {
	assert.NotPanics(t, func() {
		logger.Nop().Component("x").Error().Msg("nada")
	})
}
