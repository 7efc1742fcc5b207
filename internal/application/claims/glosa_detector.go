package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	domaintiss "github.com/jhoicas/claims-engine/internal/domain/tiss"
	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// Motivos de descarte de una línea de glosa (etiqueta de métrica).
const (
	SkipNoGuideNumber     = "no_guide_number"
	SkipUnknownGuide      = "unknown_guide"
	SkipGuideNotSubmitted = "guide_not_submitted" // p. ej. cancelada en la operadora tras el envío
	SkipUnreadable        = "unreadable"
	SkipInvalid           = "invalid_amount"
	SkipExceedsGuide      = "exceeds_guide_total"
)

// GuideOutcome resultado consolidado de una guía del lote.
type GuideOutcome struct {
	GuideID  string
	Approved decimal.Decimal
	Rejected decimal.Decimal
}

// SkippedEntry línea de glosa descartada y su motivo.
type SkippedEntry struct {
	GuideNumber string
	Code        string
	Reason      string
	Detail      string
}

// Extraction glosas nuevas y resultado por guía derivados del demonstrativo.
type Extraction struct {
	Glosas   []*entity.Glosa
	Outcomes []GuideOutcome
	Skipped  []SkippedEntry
}

// GlosaDetector interpreta el DEMONSTRATIVO_ANALISE_CONTA de un lote.
// Es puro: no persiste nada, el caso de uso del lote aplica el resultado.
type GlosaDetector struct {
	codec      ProtocolCodec
	clock      Clock
	metrics    *metrics.Metrics
	log        *logger.Logger
	windowDays int
}

// NewGlosaDetector construye el detector.
func NewGlosaDetector(codec ProtocolCodec, clock Clock, m *metrics.Metrics, log *logger.Logger) *GlosaDetector {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GlosaDetector{
		codec:      codec,
		clock:      clock,
		metrics:    m,
		log:        log.Component("glosa"),
		windowDays: entity.DefaultAppealWindowDays,
	}
}

// WithAppealWindow fija el plazo de recurso para operadoras sin AppealWindowDays propio.
func (d *GlosaDetector) WithAppealWindow(days int) *GlosaDetector {
	if days > 0 {
		d.windowDays = days
	}
	return d
}

// Extract parsea raw y arma las glosas del lote. Se descartan (con log y métrica) las líneas
// sin número de guía, de guías fuera del lote, ilegibles o con valor glosado mayor al original.
// Las guías SUBMITTED ausentes de la respuesta quedan aprobadas por el total.
func (d *GlosaDetector) Extract(ctx context.Context, batch *entity.Batch, guides []*entity.Guide, op *entity.OperatorWebservice, raw []byte) (*Extraction, error) {
	report, err := d.codec.ParseAnalysis(raw)
	if err != nil {
		return nil, err
	}
	if report.ProtocolNumber != "" && batch.ProtocolNumber != "" && report.ProtocolNumber != batch.ProtocolNumber {
		return nil, domain.Protocolf("demonstrativo del protocolo %s, el lote %s tiene %s",
			report.ProtocolNumber, batch.ID, batch.ProtocolNumber)
	}

	now := d.clock.Now()
	windowDays := d.windowDays
	if op != nil && op.AppealWindowDays > 0 {
		windowDays = op.AppealWindowDays
	}
	fallbackDate := now
	if report.IssuedAt != nil {
		fallbackDate = *report.IssuedAt
	}

	byNumber := make(map[string]*entity.Guide, len(guides))
	for _, g := range guides {
		if g.BatchID == batch.ID && batch.HasGuide(g.ID) {
			byNumber[g.Number] = g
		}
	}

	out := &Extraction{}
	rejected := make(map[string]decimal.Decimal, len(guides))
	skip := func(e tiss.GlosaEntry, reason, detail string) {
		out.Skipped = append(out.Skipped, SkippedEntry{GuideNumber: e.GuideNumber, Code: e.Code, Reason: reason, Detail: detail})
		d.metrics.IncGlosaSkipped(reason)
		d.log.Warn().
			Str("batch_id", batch.ID).
			Str("guide_number", e.GuideNumber).
			Str("code", e.Code).
			Str("reason", reason).
			Str("detail", detail).
			Msg("línea de glosa descartada")
	}

	for _, ga := range report.Guides {
		for _, e := range ga.Glosas {
			if e.GuideNumber == "" {
				skip(e, SkipNoGuideNumber, "")
				continue
			}
			g, ok := byNumber[e.GuideNumber]
			if !ok {
				skip(e, SkipUnknownGuide, "guía fuera del lote "+batch.Number)
				continue
			}
			if g.Status != entity.GuideStatusSubmitted {
				skip(e, SkipGuideNotSubmitted, "guía en estado "+g.Status)
				continue
			}
			if e.Problem != "" {
				skip(e, SkipUnreadable, e.Problem)
				continue
			}

			date := fallbackDate
			if e.Date != nil {
				date = *e.Date
			}
			glosa, err := entity.NewGlosa(entity.Glosa{
				ID:             uuid.NewString(),
				TenantID:       batch.TenantID,
				BatchID:        batch.ID,
				GuideID:        g.ID,
				GuideNumber:    g.Number,
				RejectionDate:  date,
				Classification: domaintiss.ClassifyRejectionCode(e.Code),
				Code:           e.Code,
				Description:    e.Description,
				RejectedAmount: e.RejectedAmount,
				OriginalAmount: originalAmount(g, e),
				ItemSequence:   e.ItemSequence,
				ItemCode:       itemCode(g, e),
				AppealDeadline: domaintiss.AppealDeadline(date, windowDays),
			}, now)
			if err != nil {
				skip(e, SkipInvalid, err.Error())
				continue
			}
			sum := rejected[g.ID].Add(glosa.RejectedAmount)
			if sum.GreaterThan(g.TotalAmount) {
				skip(e, SkipExceedsGuide, "glosas superan el total "+g.TotalAmount.StringFixed(2))
				continue
			}
			rejected[g.ID] = sum
			out.Glosas = append(out.Glosas, glosa)
		}
	}

	for _, g := range guides {
		if _, member := byNumber[g.Number]; !member || g.Status != entity.GuideStatusSubmitted {
			continue
		}
		r := rejected[g.ID]
		out.Outcomes = append(out.Outcomes, GuideOutcome{
			GuideID:  g.ID,
			Approved: g.TotalAmount.Sub(r).Round(2),
			Rejected: r.Round(2),
		})
	}

	d.log.Info().
		Str("batch_id", batch.ID).
		Int("glosas", len(out.Glosas)).
		Int("skipped", len(out.Skipped)).
		Msg("demonstrativo interpretado")
	return out, nil
}

// originalAmount valorInformado de la línea; si falta, el total del ítem (por secuencial o
// código) y, en último caso, el total de la guía.
func originalAmount(g *entity.Guide, e tiss.GlosaEntry) decimal.Decimal {
	if e.OriginalAmount != nil {
		return *e.OriginalAmount
	}
	if e.ItemSequence != nil {
		if p, ok := g.Procedure(*e.ItemSequence); ok {
			return p.Total()
		}
	}
	if e.ProcedureCode != "" {
		total := decimal.Zero
		found := false
		for _, p := range g.Procedures {
			if p.Code == e.ProcedureCode {
				total = total.Add(p.Total())
				found = true
			}
		}
		if found {
			return total
		}
	}
	return g.TotalAmount
}

func itemCode(g *entity.Guide, e tiss.GlosaEntry) string {
	if e.ProcedureCode != "" {
		return e.ProcedureCode
	}
	if e.ItemSequence != nil {
		if p, ok := g.Procedure(*e.ItemSequence); ok {
			return p.Code
		}
	}
	return ""
}
