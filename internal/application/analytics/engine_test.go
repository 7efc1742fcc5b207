package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/application/analytics"
	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/infrastructure/memory"
	"github.com/jhoicas/claims-engine/internal/infrastructure/notification"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

const tenant = "t-1"

var (
	enero  = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	marzo  = time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	ahora  = time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)
	inicio = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	fin    = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

type escenario struct {
	store *memory.Store
	seq   int
}

func (e *escenario) guia(t *testing.T, operator string, enviada time.Time, glosado int64) *entity.Guide {
	t.Helper()
	e.seq++
	g := &entity.Guide{
		ID:             fmt.Sprintf("g-%02d", e.seq),
		TenantID:       tenant,
		OperatorID:     operator,
		Status:         entity.GuideStatusApproved,
		TotalAmount:    decimal.NewFromInt(200),
		RejectedAmount: decimal.NewFromInt(glosado),
		SubmittedAt:    &enviada,
	}
	if glosado > 0 {
		g.Status = entity.GuideStatusPartiallyApproved
	}
	require.NoError(t, e.store.Repositories().Guides.Create(context.Background(), g))
	return g
}

func (e *escenario) glosa(t *testing.T, g *entity.Guide, code, item string, monto int64, fecha time.Time) {
	t.Helper()
	e.seq++
	gl, err := entity.NewGlosa(entity.Glosa{
		ID:             fmt.Sprintf("gl-%02d", e.seq),
		TenantID:       tenant,
		GuideID:        g.ID,
		Code:           code,
		Classification: classify(code),
		ItemCode:       item,
		RejectedAmount: decimal.NewFromInt(monto),
		OriginalAmount: g.TotalAmount,
		RejectionDate:  fecha,
		AppealDeadline: fecha.AddDate(0, 0, entity.DefaultAppealWindowDays),
	}, fecha)
	require.NoError(t, err)
	require.NoError(t, e.store.Repositories().Glosas.Create(context.Background(), gl))
}

func classify(code string) string {
	switch code[0] {
	case 'A':
		return entity.GlosaAdministrative
	case 'T':
		return entity.GlosaTechnical
	}
	return entity.GlosaFinancial
}

// Enero: op-1 4 guías limpias; op-2 4 guías, una glosada.
// Marzo: op-1 2 guías limpias; op-2 2 guías, ambas glosadas.
func nuevoEscenario(t *testing.T) *escenario {
	e := &escenario{store: memory.NewStore()}
	for i := 0; i < 4; i++ {
		e.guia(t, "op-1", enero, 0)
	}
	h := e.guia(t, "op-2", enero, 20)
	e.glosa(t, h, "F02", "", 20, enero)
	for i := 0; i < 3; i++ {
		e.guia(t, "op-2", enero, 0)
	}
	e.guia(t, "op-1", marzo, 0)
	e.guia(t, "op-1", marzo, 0)
	a := e.guia(t, "op-2", marzo, 50)
	e.glosa(t, a, "T15", "10101012", 50, marzo)
	b := e.guia(t, "op-2", marzo, 30)
	e.glosa(t, b, "A01", "", 30, marzo.Add(24*time.Hour))
	return e
}

func motor(e *escenario, opts ...analytics.Option) *analytics.Engine {
	opts = append([]analytics.Option{analytics.WithClock(func() time.Time { return ahora })}, opts...)
	return analytics.NewEngine(memory.NewAnalyticsRepository(e.store), logger.Nop(), opts...)
}

func TestSummary_VentanaDeMarzo(t *testing.T) {
	e := nuevoEscenario(t)

	s, err := motor(e).Summary(context.Background(), tenant, dto.AnalyticsFilter{From: inicio, To: fin})
	require.NoError(t, err)

	assert.Equal(t, 4, s.SubmittedGuides)
	assert.Equal(t, 2, s.GuidesWithGlosa)
	assert.Equal(t, "0.5000", s.RejectionRate.StringFixed(4))
	assert.Equal(t, "80.00", s.TotalRejected.StringFixed(2))
	assert.Equal(t, "0.00", s.TotalRecovered.StringFixed(2))
	require.NotNil(t, s.From)
	assert.Equal(t, inicio, *s.From)

	require.Len(t, s.ByClassification, 2)
	assert.Equal(t, entity.GlosaTechnical, s.ByClassification[0].Key)
	assert.Equal(t, "0.6250", s.ByClassification[0].Share.StringFixed(4))
	assert.Equal(t, entity.GlosaAdministrative, s.ByClassification[1].Key)

	require.Len(t, s.ByProcedure, 2)
	assert.Equal(t, "10101012", s.ByProcedure[0].Key)
	assert.Equal(t, "GUIA_COMPLETA", s.ByProcedure[1].Key, "glosa sin ítem se agrupa en la guía completa")

	require.Len(t, s.Trend, 1)
	assert.Equal(t, "2026-03", s.Trend[0].Month)
	assert.Equal(t, 2, s.Trend[0].Count)
	assert.Nil(t, s.Trend[0].Change)
}

func TestSummary_TendenciaCompletaMesesSinGlosa(t *testing.T) {
	e := nuevoEscenario(t)

	s, err := motor(e).Summary(context.Background(), tenant, dto.AnalyticsFilter{To: fin})
	require.NoError(t, err)

	assert.Nil(t, s.From)
	require.Len(t, s.Trend, 3)
	assert.Equal(t, []string{"2026-01", "2026-02", "2026-03"}, []string{s.Trend[0].Month, s.Trend[1].Month, s.Trend[2].Month})
	require.NotNil(t, s.Trend[1].Change)
	assert.Equal(t, "-1.0000", s.Trend[1].Change.StringFixed(4))
	assert.Nil(t, s.Trend[2].Change, "sin variación cuando el mes anterior es cero")
	assert.Equal(t, "80.00", s.Trend[2].RejectedAmount.StringFixed(2))
}

func TestSummary_SinGuiasTasaCero(t *testing.T) {
	s, err := motor(&escenario{store: memory.NewStore()}).Summary(context.Background(), tenant, dto.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, s.SubmittedGuides)
	assert.True(t, s.RejectionRate.IsZero())
	assert.Empty(t, s.Trend)
	assert.Equal(t, ahora, s.To)
}

func TestAlerts_MarcaOperadoraSobreElUmbral(t *testing.T) {
	e := nuevoEscenario(t)
	sink := notification.NewBoundedStore(10)

	a, err := motor(e, analytics.WithNotifier(sink)).
		Alerts(context.Background(), tenant, dto.AnalyticsFilter{From: inicio, To: fin}, decimal.Zero)
	require.NoError(t, err)

	assert.Equal(t, "2", a.Multiple.String())
	assert.Equal(t, "0.2500", a.HistoricalRate.StringFixed(4), "3 de 12 guías glosadas en todo el histórico")
	require.Len(t, a.Operators, 1)
	assert.Equal(t, "op-2", a.Operators[0].OperatorID)
	assert.Equal(t, "1.0000", a.Operators[0].RejectionRate.StringFixed(4))
	assert.Equal(t, "0.5000", a.Operators[0].Threshold.StringFixed(4))

	require.Len(t, a.Overdue, 1, "solo la glosa de enero venció sin decisión")
	assert.Equal(t, "F02", a.Overdue[0].Code)

	avisos := sink.List(tenant, 10)
	require.Len(t, avisos, 1)
	assert.Equal(t, entity.NotificationHighRejectionRate, avisos[0].Kind)
	assert.Equal(t, "op-2", avisos[0].EntityID)
}

func TestAlerts_MultiploAltoNoMarca(t *testing.T) {
	e := nuevoEscenario(t)

	a, err := motor(e).Alerts(context.Background(), tenant, dto.AnalyticsFilter{From: inicio, To: fin}, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Empty(t, a.Operators)
}
