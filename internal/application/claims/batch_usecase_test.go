package claims_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/application/claims"
	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

func TestBatch_AgregaSoloGuiasFinalizadas(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, err := e.batches.Create(ctx, tenant, dto.CreateBatchRequest{OperatorID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, "1", b.Number)
	assert.Equal(t, entity.BatchStatusDraft, b.Status)

	borrador, err := e.guides.Create(ctx, tenant, solicitudGuia(procedimiento("10101012", "100.00")))
	require.NoError(t, err)
	_, err = e.batches.AddGuide(ctx, tenant, b.ID, borrador.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "una guía DRAFT no entra al lote")

	g := e.guiaFinalizada(t, "100.00")
	b, err = e.batches.AddGuide(ctx, tenant, b.ID, g.ID)
	require.NoError(t, err)
	_, err = e.batches.AddGuide(ctx, tenant, b.ID, g.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "la guía ya pertenece a un lote")

	b, err = e.batches.RemoveGuide(ctx, tenant, b.ID, g.ID)
	require.NoError(t, err)
	assert.Empty(t, b.GuideIDs)
	assert.True(t, b.TotalAmount.IsZero())
}

func TestBatchGenerateXML_ValidaYPasaAListo(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	g1 := e.guiaFinalizada(t, "100.00")
	g2 := e.guiaFinalizada(t, "150.00", "50.00")

	vacio, err := e.batches.Create(ctx, tenant, dto.CreateBatchRequest{OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = e.batches.GenerateXML(ctx, tenant, vacio.ID)
	assert.ErrorIs(t, err, domain.ErrValidation, "lote sin guías")

	b := e.loteListo(t, g1, g2)
	assert.Equal(t, entity.BatchStatusReadyToSend, b.Status)
	assert.NotEmpty(t, b.Checksum)
	assert.Equal(t, "300.00", b.TotalAmount.StringFixed(2))

	doc, err := e.codec.ParseBatch([]byte(b.XMLPayload))
	require.NoError(t, err)
	assert.Equal(t, b.Number, doc.BatchNumber)
	require.Len(t, doc.Guides, 2)
	assert.Equal(t, g1.Number, doc.Guides[0].Number)
	assert.Len(t, doc.Guides[1].Procedures, 2)

	b, err = e.batches.RevertToDraft(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusDraft, b.Status)
	assert.Empty(t, b.XMLPayload)
}

func TestBatchGenerateXML_OperadoraInvalidaQuedaEnDraft(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	g := e.guiaFinalizada(t, "100.00")
	b, err := e.batches.Create(ctx, tenant, dto.CreateBatchRequest{OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = e.batches.AddGuide(ctx, tenant, b.ID, g.ID)
	require.NoError(t, err)

	op := operadora()
	op.ANSRegistry = "12"
	e.ops.PutWebservice(op)

	_, err = e.batches.GenerateXML(ctx, tenant, b.ID)
	require.ErrorIs(t, err, domain.ErrProtocol)
	b, err = e.batches.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusDraft, b.Status)
}

func TestBatchSubmit_RegistraProtocolo(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, g1, _ := e.loteEnviado(t)

	assert.Equal(t, entity.BatchStatusSubmitted, b.Status)
	assert.Equal(t, "PRT-001", b.ProtocolNumber)
	require.NotNil(t, b.SubmittedAt)

	g, err := e.guides.Get(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusSubmitted, g.Status)
	require.NotNil(t, g.SubmittedAt)

	again, err := e.batches.Submit(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ProtocolNumber, again.ProtocolNumber)
	sends, _ := e.gw.enviados()
	assert.Equal(t, 1, sends, "un lote enviado no se reenvía")

	st, err := e.batches.QueryProtocol(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ProtocolNumber, st.ProtocolNumber)
}

func TestBatchSubmit_FallaDeTransmisionQuedaListo(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	g := e.guiaFinalizada(t, "100.00")
	b := e.loteListo(t, g)

	e.gw.sendErr = &domain.TransmissionFailedError{Operator: "op-1", Operation: "send", Attempts: 3, Cause: fmt.Errorf("connection refused")}
	_, err := e.batches.Submit(ctx, tenant, b.ID)
	require.ErrorIs(t, err, domain.ErrTransmissionFailed)

	b, err = e.batches.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusReadyToSend, b.Status)
	assert.Empty(t, b.ProtocolNumber)
	g, err = e.guides.Get(ctx, tenant, g.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusFinalized, g.Status)

	e.gw.sendErr = nil
	b, err = e.batches.Submit(ctx, tenant, b.ID)
	require.NoError(t, err, "el lote se puede reenviar tras la falla")
	assert.Equal(t, entity.BatchStatusSubmitted, b.Status)
}

func TestBatchSubmit_ConcurrenteEnviaUnaVez(t *testing.T) {
	e := nuevoEntorno(t)
	g := e.guiaFinalizada(t, "100.00")
	b := e.loteListo(t, g)
	e.gw.delay = 20 * time.Millisecond

	const n = 4
	var wg sync.WaitGroup
	protocols := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.batches.Submit(context.Background(), tenant, b.ID)
			errs[i] = err
			if err == nil {
				protocols[i] = out.ProtocolNumber
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "PRT-001", protocols[i])
	}
	sends, _ := e.gw.enviados()
	assert.Equal(t, 1, sends)
}

func TestBatchProcessResponse_GlosaParcial(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, g1, g2 := e.loteConGlosa(t)

	gl := res.Glosas[0]
	assert.Equal(t, entity.GlosaTechnical, gl.Classification)
	assert.Equal(t, "T15", gl.Code)
	assert.Equal(t, entity.GlosaStatusPending, gl.Status)
	assert.Equal(t, "50.00", gl.RejectedAmount.StringFixed(2))
	assert.Equal(t, "200.00", gl.OriginalAmount.StringFixed(2), "valor original tomado del ítem")
	assert.Equal(t, "10101010", gl.ItemCode)
	assert.Equal(t, fechaGlosa.AddDate(0, 0, entity.DefaultAppealWindowDays), gl.AppealDeadline)

	assert.Equal(t, entity.BatchStatusResponseProcessed, res.Batch.Status)
	assert.Equal(t, "250.00", res.Batch.ApprovedAmount.StringFixed(2))
	assert.Equal(t, "50.00", res.Batch.RejectedAmount.StringFixed(2))

	a, err := e.guides.Get(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusApproved, a.Status)
	b, err := e.guides.Get(ctx, tenant, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusPartiallyApproved, b.Status)
	assert.Equal(t, "150.00", b.ApprovedAmount.StringFixed(2))

	avisos := notificaciones(e, entity.NotificationGlosaCreated)
	require.Len(t, avisos, 1)
	assert.Equal(t, gl.ID, avisos[0].EntityID)
}

func TestBatchProcessResponse_GuiaAusenteQuedaAprobada(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, g1, g2 := e.loteEnviado(t)

	res, err := e.batches.ProcessResponse(ctx, tenant, b.ID, e.demonstrativo(t, b, conGlosa(g2, "A01", 1, "200.00")))
	require.NoError(t, err)

	a, err := e.guides.Get(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusApproved, a.Status, "guía ausente de la respuesta se aprueba por el total")
	r, err := e.guides.Get(ctx, tenant, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusRejected, r.Status, "glosa total")
	assert.Equal(t, entity.GlosaAdministrative, res.Glosas[0].Classification)
}

func TestBatchProcessResponse_DescartaLineasInvalidas(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, g1, g2 := e.loteEnviado(t)

	ajena := &entity.Guide{Number: "GUIA-99999999", TotalAmount: g1.TotalAmount}
	excesiva := conGlosa(g1, "F10", 1, "150.00")
	res, err := e.batches.ProcessResponse(ctx, tenant, b.ID, e.demonstrativo(t, b,
		excesiva,
		conGlosa(g2, "T15", 1, "50.00"),
		conGlosa(ajena, "T15", 1, "10.00"),
	))
	require.NoError(t, err)

	require.Len(t, res.Glosas, 1)
	assert.Equal(t, g2.ID, res.Glosas[0].GuideID)
	reasons := map[string]bool{}
	for _, s := range res.Skipped {
		reasons[s.Reason] = true
	}
	assert.True(t, reasons[claims.SkipInvalid], "glosa mayor que el original")
	assert.True(t, reasons[claims.SkipUnknownGuide], "guía fuera del lote")
}

func TestBatchProcessResponse_GuiaCanceladaNoGeneraGlosa(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, g1, g2 := e.loteEnviado(t)
	_, err := e.guides.Cancel(ctx, tenant, g2.ID, "Atendimento não realizado")
	require.NoError(t, err)

	res, err := e.batches.ProcessResponse(ctx, tenant, b.ID, e.demonstrativo(t, b, aprobada(g1), conGlosa(g2, "T15", 1, "50.00")))
	require.NoError(t, err)

	assert.Empty(t, res.Glosas)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, claims.SkipGuideNotSubmitted, res.Skipped[0].Reason)

	glosas, err := e.glosas.ListByGuide(ctx, tenant, g2.ID)
	require.NoError(t, err)
	assert.Empty(t, glosas, "una guía cancelada no acumula glosas")
	c, err := e.guides.Get(ctx, tenant, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusCancelled, c.Status)
	a, err := e.guides.Get(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusApproved, a.Status)
}

func TestBatchReject_EsperaAlEnvioEnCurso(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	g := e.guiaFinalizada(t, "100.00")
	b := e.loteListo(t, g)
	e.gw.delay = 100 * time.Millisecond
	e.gw.enCurso = make(chan struct{}, 1)

	submitErr := make(chan error, 1)
	go func() {
		_, err := e.batches.Submit(ctx, tenant, b.ID)
		submitErr <- err
	}()
	<-e.gw.enCurso

	_, err := e.batches.Reject(ctx, tenant, b.ID, "Lote duplicado")
	assert.ErrorIs(t, err, domain.ErrInvalidState, "Reject espera al envío y encuentra SUBMITTED")
	require.NoError(t, <-submitErr)

	b, err = e.batches.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusSubmitted, b.Status)
	assert.Equal(t, "PRT-001", b.ProtocolNumber, "el protocolo de la operadora no se pierde")
}

func TestBatchProcessResponse_ReprocesoFalla(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, g1, g2 := e.loteConGlosa(t)
	b := res.Batch

	_, err := e.batches.ProcessResponse(ctx, tenant, b.ID, e.demonstrativo(t, b, aprobada(g1), conGlosa(g2, "T15", 1, "50.00")))
	require.ErrorIs(t, err, domain.ErrInvalidState)

	glosas, err := e.glosas.ListByBatch(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Len(t, glosas, 1, "el reproceso no duplica glosas")
}

func TestBatchProcessResponse_ProtocoloDistinto(t *testing.T) {
	e := nuevoEntorno(t)
	b, g1, _ := e.loteEnviado(t)

	otro := *b
	otro.ProtocolNumber = "PRT-999"
	_, err := e.batches.ProcessResponse(context.Background(), tenant, b.ID, e.demonstrativo(t, &otro, aprobada(g1)))
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestBatchProcessResponse_XMLIlegible(t *testing.T) {
	e := nuevoEntorno(t)
	b, _, _ := e.loteEnviado(t)

	_, err := e.batches.ProcessResponse(context.Background(), tenant, b.ID, []byte("<no-tiss>"))
	require.ErrorIs(t, err, domain.ErrProtocol)
	b, err = e.batches.Get(context.Background(), tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusSubmitted, b.Status)
}

func TestBatchMarkPaid(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, g1, _ := e.loteEnviado(t)

	_, err := e.batches.MarkPaid(ctx, tenant, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "solo se paga tras procesar la respuesta")

	_, err = e.batches.ProcessResponse(ctx, tenant, b.ID, e.demonstrativo(t, b, aprobada(g1)))
	require.NoError(t, err)
	b, err = e.batches.MarkPaid(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusPaid, b.Status)
	require.NotNil(t, b.PaidAt)

	g, err := e.guides.Get(ctx, tenant, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusPaid, g.Status)
}

func TestBatchMarkPaid_GuiaRechazadaBloquea(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	b, _, g2 := e.loteEnviado(t)

	_, err := e.batches.ProcessResponse(ctx, tenant, b.ID, e.demonstrativo(t, b, conGlosa(g2, "A01", 1, "200.00")))
	require.NoError(t, err)
	_, err = e.batches.MarkPaid(ctx, tenant, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestBatchReject_LiberaGuias(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	g := e.guiaFinalizada(t, "100.00")
	b := e.loteListo(t, g)

	_, err := e.batches.Reject(ctx, tenant, b.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	b, err = e.batches.Reject(ctx, tenant, b.ID, "Valores de la tabla desactualizados")
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusRejected, b.Status)
	assert.Equal(t, []string{g.ID}, b.GuideIDs, "se conserva el historial de guías")

	g, err = e.guides.Get(ctx, tenant, g.ID)
	require.NoError(t, err)
	assert.Empty(t, g.BatchID)

	otro, err := e.batches.Create(ctx, tenant, dto.CreateBatchRequest{OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = e.batches.AddGuide(ctx, tenant, otro.ID, g.ID)
	assert.NoError(t, err, "la guía liberada entra a otro lote")

	listos, err := e.batches.List(ctx, tenant, entity.BatchStatusRejected)
	require.NoError(t, err)
	assert.Len(t, listos, 1)
}

