// Package tiss implementa el codec del Padrão TISS: generación de mensagemTISS para lotes y
// recursos de glosa, validación estructural, parseo de respuestas de la operadora y firma XMLDSig.
package tiss

import (
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// BatchBuildContext datos necesarios para generar el ENVIO_LOTE_GUIAS de un lote.
type BatchBuildContext struct {
	Batch    *entity.Batch
	Guides   []*entity.Guide
	Operator *entity.OperatorWebservice
	// Sequence sequencialTransacao; si es 0 se usa el número del lote.
	Sequence int64
	IssuedAt time.Time
}

// AppealBuildContext datos para generar el RECURSO_GLOSA de un recurso.
type AppealBuildContext struct {
	Recurso  *entity.Recurso
	Glosa    *entity.Glosa
	Batch    *entity.Batch
	Operator *entity.OperatorWebservice
	IssuedAt time.Time
}

// ── Documentos parseados ──────────────────────────────────────────────────────

// BatchDocument contenido de un ENVIO_LOTE_GUIAS parseado (usado en validación y pruebas).
type BatchDocument struct {
	TransactionType string
	Sequence        string
	ANSRegistry     string
	ProviderCode    string
	Version         string
	BatchNumber     string
	Guides          []GuideDocument
	Hash            string
}

// GuideDocument guía SP/SADT dentro del lote.
type GuideDocument struct {
	Number          string
	BeneficiaryCard string
	Procedures      []ProcedureDocument
	Total           decimal.Decimal
}

// ProcedureDocument procedimentoExecutado de la guía.
type ProcedureDocument struct {
	Sequence    int
	ExecutedAt  string
	Table       string
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitValue   decimal.Decimal
	Total       decimal.Decimal
}

// AnalysisReport demonstrativoAnaliseConta devuelto por la operadora.
type AnalysisReport struct {
	ANSRegistry    string
	ReportNumber   string
	IssuedAt       *time.Time
	BatchNumber    string
	ProtocolNumber string
	Guides         []GuideAnalysis
}

// GuideAnalysis resultado de la operadora para una guía.
type GuideAnalysis struct {
	GuideNumber string
	Informed    decimal.Decimal
	Released    decimal.Decimal
	Rejected    decimal.Decimal
	Glosas      []GlosaEntry
}

// GlosaEntry una línea de glosa. Los campos opcionales del XML quedan en nil/vacío.
type GlosaEntry struct {
	GuideNumber    string
	ItemSequence   *int
	ProcedureCode  string
	OriginalAmount *decimal.Decimal
	RejectedAmount decimal.Decimal
	Code           string
	Description    string
	Date           *time.Time
	// Problem describe por qué la línea no se pudo interpretar (vacío = válida).
	Problem string
}

// Tipos de recibo devueltos por el WS.
const (
	ReceiptBatch       = "PROTOCOLO_RECEBIMENTO"
	ReceiptAppeal      = "RECIBO_RECURSO_GLOSA"
	ReceiptCancel      = "RECIBO_CANCELA_GUIA"
	ReceiptGuideStatus = "SITUACAO_GUIA"
	ReceiptBatchStatus = "SITUACAO_PROTOCOLO"
	ReceiptError       = "MENSAGEM_ERRO"
	ReceiptAnalysis    = "DEMONSTRATIVO_ANALISE_CONTA"
)

// Receipt respuesta síncrona de la operadora a una transacción.
type Receipt struct {
	Kind           string
	ProtocolNumber string
	ReceivedAt     *time.Time
	Status         string // Situación del protocolo, de la guía o de la cancelación
	GuideNumber    string
	Cancelled      bool
	ErrorCode      string
	ErrorMessage   string
}

// Rejected indica que la operadora devolvió mensagemErro.
func (r *Receipt) Rejected() bool {
	return r.Kind == ReceiptError
}
