// Package analytics contiene los reportes de glosas: resumen por ventana y alertas de
// operadoras con tasa de glosa anómala. Solo lectura; nunca modifica el estado del motor.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

const (
	defaultMultiple = 2
	rateScale       = 4
	monthLayout     = "2006-01"
	guideLevelKey   = "GUIA_COMPLETA" // Glosas sin ítem: afectan la guía completa
)

// Notifier sink de notificaciones (mismo contrato que el de los casos de uso de cuentas).
type Notifier interface {
	Notify(ctx context.Context, n entity.Notification) error
}

// Engine calcula indicadores de glosa a partir de AnalyticsRepository.
type Engine struct {
	repo     repository.AnalyticsRepository
	notifier Notifier
	now      func() time.Time
	multiple decimal.Decimal
	log      *logger.Logger
}

// Option configura el Engine.
type Option func(*Engine)

// WithNotifier emite HIGH_REJECTION_RATE por cada operadora marcada en Alerts.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithClock fija la fuente de tiempo.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithDefaultMultiple múltiplo de la tasa histórica usado cuando Alerts recibe cero.
func WithDefaultMultiple(m float64) Option {
	return func(e *Engine) {
		if m > 0 {
			e.multiple = decimal.NewFromFloat(m)
		}
	}
}

// NewEngine construye el motor de analítica.
func NewEngine(repo repository.AnalyticsRepository, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		repo:     repo,
		now:      time.Now,
		multiple: decimal.NewFromInt(defaultMultiple),
		log:      log.Component("analytics"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ── Resumen ───────────────────────────────────────────────────────────────────

// Summary total glosado, tasa de glosa, desgloses y tendencia mensual de la ventana.
//
// Dos consultas en paralelo:
//  1. ListGuideFacts  → guías enviadas en la ventana (tasa)
//  2. ListGlosaFacts  → glosas con fecha de glosa en la ventana (montos, desgloses, tendencia)
func (e *Engine) Summary(ctx context.Context, tenantID string, f dto.AnalyticsFilter) (*dto.GlosaSummaryDTO, error) {
	from, to := e.window(f)

	var (
		guides []repository.GuideFact
		glosas []repository.GlosaFact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		guides, err = e.repo.ListGuideFacts(gctx, tenantID, f.OperatorID, from, to)
		return wrap("guías", err)
	})
	g.Go(func() error {
		var err error
		glosas, err = e.repo.ListGlosaFacts(gctx, tenantID, f.OperatorID, from, to)
		return wrap("glosas", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	submitted, withGlosa := countRejected(guides)
	totalRejected, totalRecovered := decimal.Zero, decimal.Zero
	for _, gl := range glosas {
		totalRejected = totalRejected.Add(gl.RejectedAmount)
		totalRecovered = totalRecovered.Add(gl.RecoveredAmount)
	}

	out := &dto.GlosaSummaryDTO{
		To:              to,
		OperatorID:      f.OperatorID,
		SubmittedGuides: submitted,
		GuidesWithGlosa: withGlosa,
		RejectionRate:   rate(withGlosa, submitted),
		TotalRejected:   totalRejected.Round(2),
		TotalRecovered:  totalRecovered.Round(2),
		ByClassification: breakdown(glosas, totalRejected, func(gl repository.GlosaFact) string {
			return gl.Classification
		}),
		ByProcedure: breakdown(glosas, totalRejected, func(gl repository.GlosaFact) string {
			if gl.ProcedureCode == "" {
				return guideLevelKey
			}
			return gl.ProcedureCode
		}),
		Trend: trend(glosas),
	}
	if !from.IsZero() {
		out.From = &from
	}
	return out, nil
}

// ── Alertas ───────────────────────────────────────────────────────────────────

// Alerts marca las operadoras cuya tasa en la ventana supera multiple × la tasa histórica
// del tenant (todo el histórico hasta el fin de la ventana) y lista las glosas con plazo
// vencido sin decisión. multiple cero usa el valor por defecto.
func (e *Engine) Alerts(ctx context.Context, tenantID string, f dto.AnalyticsFilter, multiple decimal.Decimal) (*dto.AlertsDTO, error) {
	if !multiple.IsPositive() {
		multiple = e.multiple
	}
	from, to := e.window(f)
	now := e.now()

	var (
		window     []repository.GuideFact
		historical []repository.GuideFact
		glosas     []repository.GlosaFact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		window, err = e.repo.ListGuideFacts(gctx, tenantID, f.OperatorID, from, to)
		return wrap("guías de la ventana", err)
	})
	g.Go(func() error {
		var err error
		historical, err = e.repo.ListGuideFacts(gctx, tenantID, "", time.Time{}, to)
		return wrap("histórico", err)
	})
	g.Go(func() error {
		var err error
		glosas, err = e.repo.ListGlosaFacts(gctx, tenantID, f.OperatorID, time.Time{}, to)
		return wrap("glosas", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hSubmitted, hRejected := countRejected(historical)
	historicalRate := rate(hRejected, hSubmitted)
	threshold := historicalRate.Mul(multiple).Round(rateScale)

	byOperator := make(map[string][]repository.GuideFact)
	for _, gf := range window {
		byOperator[gf.OperatorID] = append(byOperator[gf.OperatorID], gf)
	}
	out := &dto.AlertsDTO{
		Multiple:       multiple,
		HistoricalRate: historicalRate,
		Operators:      []dto.OperatorAlertDTO{},
		Overdue:        []dto.OverdueGlosaDTO{},
	}
	for opID, facts := range byOperator {
		submitted, withGlosa := countRejected(facts)
		r := rate(withGlosa, submitted)
		if !r.GreaterThan(threshold) {
			continue
		}
		out.Operators = append(out.Operators, dto.OperatorAlertDTO{
			OperatorID:      opID,
			SubmittedGuides: submitted,
			GuidesWithGlosa: withGlosa,
			RejectionRate:   r,
			HistoricalRate:  historicalRate,
			Threshold:       threshold,
		})
	}
	sort.Slice(out.Operators, func(i, j int) bool { return out.Operators[i].OperatorID < out.Operators[j].OperatorID })

	for _, gl := range glosas {
		if !overdue(gl, now) {
			continue
		}
		out.Overdue = append(out.Overdue, dto.OverdueGlosaDTO{
			GlosaID:        gl.GlosaID,
			GuideID:        gl.GuideID,
			OperatorID:     gl.OperatorID,
			Code:           gl.Code,
			Status:         gl.Status,
			RejectedAmount: gl.RejectedAmount,
			AppealDeadline: gl.AppealDeadline,
		})
	}
	sort.SliceStable(out.Overdue, func(i, j int) bool {
		return out.Overdue[i].AppealDeadline.Before(out.Overdue[j].AppealDeadline)
	})

	e.notifyHighRate(ctx, tenantID, out.Operators, now)
	return out, nil
}

func (e *Engine) notifyHighRate(ctx context.Context, tenantID string, alerts []dto.OperatorAlertDTO, now time.Time) {
	if e.notifier == nil {
		return
	}
	for _, a := range alerts {
		n := entity.Notification{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Kind:      entity.NotificationHighRejectionRate,
			EntityID:  a.OperatorID,
			Message:   fmt.Sprintf("Tasa de glosa de la operadora %s en %s%% (umbral %s%%)", a.OperatorID, percent(a.RejectionRate), percent(a.Threshold)),
			CreatedAt: now,
			Payload: map[string]string{
				"rejection_rate":  a.RejectionRate.String(),
				"historical_rate": a.HistoricalRate.String(),
				"threshold":       a.Threshold.String(),
			},
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.Warn().Err(err).Str("operator_id", a.OperatorID).Msg("alerta de tasa de glosa no entregada")
		}
	}
}

// window resuelve [from, to); To cero = ahora.
func (e *Engine) window(f dto.AnalyticsFilter) (time.Time, time.Time) {
	to := f.To
	if to.IsZero() {
		to = e.now()
	}
	return f.From, to
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func countRejected(facts []repository.GuideFact) (submitted, withGlosa int) {
	for _, f := range facts {
		submitted++
		if f.RejectedAmount.IsPositive() {
			withGlosa++
		}
	}
	return submitted, withGlosa
}

func rate(part, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).DivRound(decimal.NewFromInt(int64(total)), rateScale)
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2)
}

func breakdown(glosas []repository.GlosaFact, total decimal.Decimal, key func(repository.GlosaFact) string) []dto.BreakdownDTO {
	idx := make(map[string]int)
	out := []dto.BreakdownDTO{}
	for _, gl := range glosas {
		k := key(gl)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, dto.BreakdownDTO{Key: k, RejectedAmount: decimal.Zero})
		}
		out[i].Count++
		out[i].RejectedAmount = out[i].RejectedAmount.Add(gl.RejectedAmount)
	}
	for i := range out {
		out[i].RejectedAmount = out[i].RejectedAmount.Round(2)
		if total.IsPositive() {
			out[i].Share = out[i].RejectedAmount.DivRound(total, rateScale)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RejectedAmount.Equal(out[j].RejectedAmount) {
			return out[i].RejectedAmount.GreaterThan(out[j].RejectedAmount)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// trend agrupa por mes (UTC) completando los meses sin glosa entre el primero y el último.
func trend(glosas []repository.GlosaFact) []dto.MonthlyTrendDTO {
	out := []dto.MonthlyTrendDTO{}
	if len(glosas) == 0 {
		return out
	}
	type bucket struct {
		count  int
		amount decimal.Decimal
	}
	buckets := make(map[string]*bucket)
	first, last := monthStart(glosas[0].RejectionDate), monthStart(glosas[0].RejectionDate)
	for _, gl := range glosas {
		m := monthStart(gl.RejectionDate)
		if m.Before(first) {
			first = m
		}
		if m.After(last) {
			last = m
		}
		k := m.Format(monthLayout)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{amount: decimal.Zero}
			buckets[k] = b
		}
		b.count++
		b.amount = b.amount.Add(gl.RejectedAmount)
	}

	prev := decimal.Zero
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		k := m.Format(monthLayout)
		row := dto.MonthlyTrendDTO{Month: k, RejectedAmount: decimal.Zero}
		if b, ok := buckets[k]; ok {
			row.Count = b.count
			row.RejectedAmount = b.amount.Round(2)
		}
		if m.After(first) && prev.IsPositive() {
			change := row.RejectedAmount.Sub(prev).DivRound(prev, rateScale)
			row.Change = &change
		}
		prev = row.RejectedAmount
		out = append(out, row)
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func overdue(gl repository.GlosaFact, now time.Time) bool {
	if gl.AppealDeadline.IsZero() {
		return false
	}
	open := gl.Status == entity.GlosaStatusPending || gl.Status == entity.GlosaStatusUnderReview
	return open && now.After(gl.AppealDeadline)
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("analytics: %s: %w", what, err)
	}
	return nil
}
