package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

func TestGuideCreate_CalculaTotal(t *testing.T) {
	e := nuevoEntorno(t)

	g, err := e.guides.Create(context.Background(), tenant, solicitudGuia(
		procedimiento("10101012", "150.00"),
		procedimiento("40304361", "24.70"),
	))
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusDraft, g.Status)
	assert.Equal(t, "174.70", g.TotalAmount.StringFixed(2))
	assert.Equal(t, 1, g.Procedures[0].Sequence)
	assert.Equal(t, entity.DefaultProcedureTable, g.Procedures[1].Table)
}

func TestGuideCreate_PlanVencidoOInvalido(t *testing.T) {
	e := nuevoEntorno(t)
	ayer := ahora.Add(-24 * time.Hour)
	e.ops.PutPlan(entity.Plan{ID: "plan-vencido", OperatorID: "op-1", Active: true, ValidUntil: &ayer})
	e.ops.PutPlan(entity.Plan{ID: "plan-otra", OperatorID: "op-2", Active: true})
	e.ops.PutPlan(entity.Plan{ID: "plan-inactivo", OperatorID: "op-1", Active: false})

	for _, plan := range []string{"plan-vencido", "plan-otra", "plan-inactivo", "plan-inexistente"} {
		in := solicitudGuia(procedimiento("10101012", "100.00"))
		in.PlanID = plan
		_, err := e.guides.Create(context.Background(), tenant, in)
		assert.ErrorIs(t, err, domain.ErrValidation, "plan %s", plan)
	}
}

func TestGuideCreate_ValidaEntrada(t *testing.T) {
	e := nuevoEntorno(t)

	in := solicitudGuia(procedimiento("10101012", "100.00"))
	in.BeneficiaryCard = ""
	_, err := e.guides.Create(context.Background(), tenant, in)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "beneficiarycard required")

	in = solicitudGuia(procedimiento("10101012", "100.00"))
	in.OperatorID = "op-desconocida"
	_, err = e.guides.Create(context.Background(), tenant, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGuideFinalize_NumeracionConsecutiva(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()

	g1 := e.guiaFinalizada(t, "100.00")
	g2 := e.guiaFinalizada(t, "200.00")
	assert.Equal(t, "GUIA-00000001", g1.Number)
	assert.Equal(t, "GUIA-00000002", g2.Number)
	assert.Equal(t, entity.GuideStatusFinalized, g1.Status)

	_, err := e.guides.Finalize(ctx, tenant, g1.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "una guía finalizada no se vuelve a numerar")

	vacia, err := e.guides.Create(ctx, tenant, solicitudGuia())
	require.NoError(t, err)
	_, err = e.guides.Finalize(ctx, tenant, vacia.ID)
	assert.ErrorIs(t, err, domain.ErrValidation, "guía sin procedimientos")

	g3 := e.guiaFinalizada(t, "50.00")
	assert.Equal(t, "GUIA-00000003", g3.Number, "los intentos fallidos no consumen el consecutivo")
}

func TestGuideProcedimientos_SoloEnDraft(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()

	g, err := e.guides.Create(ctx, tenant, solicitudGuia(procedimiento("10101012", "100.00")))
	require.NoError(t, err)

	g, err = e.guides.AddProcedure(ctx, tenant, g.ID, procedimiento("40304361", "30.00"))
	require.NoError(t, err)
	assert.Equal(t, "130.00", g.TotalAmount.StringFixed(2))

	g, err = e.guides.RemoveProcedure(ctx, tenant, g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "30.00", g.TotalAmount.StringFixed(2))

	_, err = e.guides.Finalize(ctx, tenant, g.ID)
	require.NoError(t, err)
	_, err = e.guides.AddProcedure(ctx, tenant, g.ID, procedimiento("40304361", "30.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestGuideGet_NoEncontrada(t *testing.T) {
	e := nuevoEntorno(t)
	_, err := e.guides.Get(context.Background(), tenant, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	g := e.guiaFinalizada(t, "100.00")
	_, err = e.guides.Get(context.Background(), "otro-tenant", g.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "la guía no es visible desde otro tenant")
}

func TestGuideCancel_RetiraDelLoteEnDraft(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	g1 := e.guiaFinalizada(t, "100.00")
	g2 := e.guiaFinalizada(t, "200.00")
	b, err := e.batches.Create(ctx, tenant, dto.CreateBatchRequest{OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = e.batches.AddGuide(ctx, tenant, b.ID, g1.ID)
	require.NoError(t, err)
	_, err = e.batches.AddGuide(ctx, tenant, b.ID, g2.ID)
	require.NoError(t, err)

	_, err = e.guides.Cancel(ctx, tenant, g1.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation, "motivo obligatorio")

	g, err := e.guides.Cancel(ctx, tenant, g1.ID, "Atención duplicada")
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusCancelled, g.Status)
	assert.Empty(t, g.BatchID)

	b, err = e.batches.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{g2.ID}, b.GuideIDs)
	assert.Equal(t, "200.00", b.TotalAmount.StringFixed(2))
	assert.Zero(t, e.gw.cancels, "una guía no enviada no se cancela en la operadora")
}

func TestGuideCancel_EnviadaPasaPorLaOperadora(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	_, g1, _ := e.loteEnviado(t)

	e.gw.cancelOK = false
	_, err := e.guides.Cancel(ctx, tenant, g1.ID, "Paciente desistió")
	require.ErrorIs(t, err, domain.ErrOperatorRejected)
	g, err := e.guides.Get(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusSubmitted, g.Status, "el rechazo de la operadora deja la guía intacta")

	e.gw.cancelOK = true
	g, err = e.guides.Cancel(ctx, tenant, g1.ID, "Paciente desistió")
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusCancelled, g.Status)
	assert.Equal(t, 2, e.gw.cancels)
}

func TestGuideCancel_LoteListoBloquea(t *testing.T) {
	e := nuevoEntorno(t)
	g := e.guiaFinalizada(t, "100.00")
	e.loteListo(t, g)

	_, err := e.guides.Cancel(context.Background(), tenant, g.ID, "Error de digitación")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestGuideRefreshStatus(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()

	borrador, err := e.guides.Create(ctx, tenant, solicitudGuia(procedimiento("10101012", "100.00")))
	require.NoError(t, err)
	_, err = e.guides.RefreshStatus(ctx, tenant, borrador.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, g1, _ := e.loteEnviado(t)
	st, err := e.guides.RefreshStatus(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.Number, st.GuideNumber)
}
