package tiss_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/tiss"
)

func TestClassifyRejectionCode_Prefijos(t *testing.T) {
	casos := map[string]string{
		"A123":  entity.GlosaAdministrative,
		"a01":   entity.GlosaAdministrative,
		" T07 ": entity.GlosaTechnical,
		"t15":   entity.GlosaTechnical,
		"X9":    entity.GlosaFinancial,
		"1801":  entity.GlosaFinancial,
		"":      entity.GlosaFinancial,
	}
	for code, want := range casos {
		assert.Equal(t, want, tiss.ClassifyRejectionCode(code), "código %q", code)
	}
}

func guiaValida() *entity.Guide {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	g := entity.NewGuide("g-1", "t-1", "op-1", "plan-1", []entity.Procedure{
		{Code: "10101012", Description: "Consulta", Quantity: decimal.NewFromInt(1), UnitValue: decimal.NewFromInt(150), ExecutedAt: now},
		{Code: "40304361", Description: "Hemograma", Quantity: decimal.NewFromInt(2), UnitValue: decimal.RequireFromString("12.35"), ExecutedAt: now},
	}, now)
	g.BeneficiaryCard = "0001234500"
	_ = g.Finalize("GUIA-00000001", now)
	return g
}

func TestValidateGuide_Valida(t *testing.T) {
	require.NoError(t, tiss.ValidateGuide(guiaValida()))
}

func TestValidateGuide_AcumulaErrores(t *testing.T) {
	g := guiaValida()
	g.Procedures[0].Table = "77"
	g.TotalAmount = decimal.NewFromInt(1)

	err := tiss.ValidateGuide(g)
	require.Error(t, err)
	assert.ErrorIs(t, err, tiss.ErrInvalidGuide)
	assert.ErrorIs(t, err, domain.ErrProtocol, "los errores de guía se reportan como error de protocolo")
	assert.Contains(t, err.Error(), "tabla \"77\"")
	assert.Contains(t, err.Error(), "no coincide con la suma")
}

func TestValidateOperator_RegistroANS(t *testing.T) {
	ws := &entity.OperatorWebservice{ANSRegistry: "12345", ProviderCode: "PRE01"}
	err := tiss.ValidateOperator(ws)
	require.Error(t, err)
	assert.ErrorIs(t, err, tiss.ErrInvalidOperator)

	ws.ANSRegistry = "123456"
	assert.NoError(t, tiss.ValidateOperator(ws))
}

func TestAppealDeadline(t *testing.T) {
	d := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), tiss.AppealDeadline(d, 30))
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), tiss.AppealDeadline(d, 0), "0 días usa el valor por defecto")
	assert.Equal(t, time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC), tiss.AppealDeadline(d, 10))
}
