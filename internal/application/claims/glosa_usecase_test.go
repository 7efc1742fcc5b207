package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

func TestGlosa_RevisionYAceptacion(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, _, g2 := e.loteConGlosa(t)
	glosaID := res.Glosas[0].ID

	list, err := e.glosas.ListByGuide(ctx, tenant, g2.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, glosaID, list[0].ID)

	gl, err := e.glosas.Review(ctx, tenant, glosaID)
	require.NoError(t, err)
	assert.Equal(t, entity.GlosaStatusUnderReview, gl.Status)
	_, err = e.glosas.Review(ctx, tenant, glosaID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	gl, err = e.glosas.Accept(ctx, tenant, glosaID)
	require.NoError(t, err)
	assert.Equal(t, entity.GlosaStatusAccepted, gl.Status)
	assert.True(t, gl.Terminal())
	_, err = e.glosas.Accept(ctx, tenant, glosaID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "estado terminal")
}

func TestGlosa_RevisadaAdmiteRecurso(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, _, _ := e.loteConGlosa(t)
	glosaID := res.Glosas[0].ID

	_, err := e.glosas.Review(ctx, tenant, glosaID)
	require.NoError(t, err)
	_, err = e.recursos.File(ctx, tenant, glosaID, solicitudRecurso())
	require.NoError(t, err)

	gl, err := e.glosas.Get(ctx, tenant, glosaID)
	require.NoError(t, err)
	assert.Equal(t, entity.GlosaStatusAppealFiled, gl.Status)
}

func TestGlosaAccept_EsperaAlRecursoEnCurso(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, _, _ := e.loteConGlosa(t)
	glosaID := res.Glosas[0].ID
	e.gw.delay = 100 * time.Millisecond
	e.gw.enCurso = make(chan struct{}, 1)

	fileErr := make(chan error, 1)
	go func() {
		_, err := e.recursos.File(ctx, tenant, glosaID, solicitudRecurso())
		fileErr <- err
	}()
	<-e.gw.enCurso // el recurso ya está en la operadora

	_, err := e.glosas.Accept(ctx, tenant, glosaID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "Accept espera al recurso y encuentra APPEAL_FILED")
	require.NoError(t, <-fileErr)

	gl, err := e.glosas.Get(ctx, tenant, glosaID)
	require.NoError(t, err)
	assert.Equal(t, entity.GlosaStatusAppealFiled, gl.Status)
	recursos, err := e.recursos.ListByGlosa(ctx, tenant, glosaID)
	require.NoError(t, err)
	assert.Len(t, recursos, 1, "el recurso recibido por la operadora queda registrado")
}

func TestGlosa_ListadosDeEntidadesInexistentes(t *testing.T) {
	e := nuevoEntorno(t)
	_, err := e.glosas.ListByGuide(context.Background(), tenant, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.glosas.ListByBatch(context.Background(), tenant, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeadlineMonitor_AvisaDentroDeLaVentana(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, _, _ := e.loteConGlosa(t)
	deadline := res.Glosas[0].AppealDeadline

	n, err := e.monitor.Run(ctx, tenant, deadline.Add(-10*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "fuera de la ventana de aviso")

	n, err = e.monitor.Run(ctx, tenant, deadline.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	avisos := notificaciones(e, entity.NotificationAppealDeadlineApproaching)
	require.Len(t, avisos, 1)
	assert.Equal(t, res.Glosas[0].ID, avisos[0].EntityID)

	n, err = e.monitor.Run(ctx, tenant, deadline.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "las glosas vencidas no se avisan")
}

func TestDeadlineMonitor_IgnoraGlosasConRecurso(t *testing.T) {
	e := nuevoEntorno(t)
	ctx := context.Background()
	res, _, _ := e.loteConGlosa(t)
	_, err := e.recursos.File(ctx, tenant, res.Glosas[0].ID, solicitudRecurso())
	require.NoError(t, err)

	n, err := e.monitor.Run(ctx, tenant, res.Glosas[0].AppealDeadline.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
