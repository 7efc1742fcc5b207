package tiss

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	padrao "github.com/jhoicas/claims-engine/pkg/tiss"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"

	// Tipo de guía usado para todas las cuentas del lote.
	guideElement = "guiaSP-SADT"

	// objetoRecurso: 2 = guía completa, 3 = ítem de la guía.
	appealObjectGuide = "2"
	appealObjectItem  = "3"
)

// XMLBuilderService genera los mensagemTISS (sin firma XMLDSig) con prefijo ans:.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// BuildBatch genera el ENVIO_LOTE_GUIAS del lote y devuelve el XML con el hash del epílogo.
func (s *XMLBuilderService) BuildBatch(ctx *BatchBuildContext) ([]byte, string, error) {
	if ctx == nil || ctx.Batch == nil || ctx.Operator == nil {
		return nil, "", fmt.Errorf("tiss: faltan lote u operadora en el contexto")
	}
	if len(ctx.Guides) == 0 {
		return nil, "", fmt.Errorf("tiss: lote %s sin guías", ctx.Batch.ID)
	}
	seq := ctx.Sequence
	if seq == 0 {
		seq, _ = strconv.ParseInt(ctx.Batch.Number, 10, 64)
	}

	var buf bytes.Buffer
	enc := newEncoder(&buf)
	root := startMessage(enc)

	writeHeader(enc, padrao.TransactionSendBatch, strconv.FormatInt(seq, 10), ctx)

	open(enc, "prestadorParaOperadora")
	open(enc, "loteGuias")
	writeAns(enc, "numeroLote", ctx.Batch.Number)
	open(enc, "guiasTISS")
	for _, g := range ctx.Guides {
		s.writeGuide(enc, g, ctx.Operator)
	}
	closeEl(enc, "guiasTISS")
	closeEl(enc, "loteGuias")
	closeEl(enc, "prestadorParaOperadora")

	return finishMessage(enc, root, &buf)
}

func (s *XMLBuilderService) writeGuide(enc *xml.Encoder, g *entity.Guide, op *entity.OperatorWebservice) {
	open(enc, guideElement)
	open(enc, "cabecalhoGuia")
	writeAns(enc, "registroANS", op.ANSRegistry)
	writeAns(enc, "numeroGuiaPrestador", g.Number)
	closeEl(enc, "cabecalhoGuia")

	open(enc, "dadosBeneficiario")
	writeAns(enc, "numeroCarteira", g.BeneficiaryCard)
	closeEl(enc, "dadosBeneficiario")

	open(enc, "dadosSolicitante")
	open(enc, "contratadoSolicitante")
	writeAns(enc, "codigoPrestadorNaOperadora", op.ProviderCode)
	closeEl(enc, "contratadoSolicitante")
	closeEl(enc, "dadosSolicitante")

	open(enc, "procedimentosExecutados")
	for _, p := range g.Procedures {
		open(enc, "procedimentoExecutado")
		writeAns(enc, "sequencialItem", strconv.Itoa(p.Sequence))
		writeAns(enc, "dataExecucao", p.ExecutedAt.Format(dateLayout))
		open(enc, "procedimento")
		writeAns(enc, "codigoTabela", p.Table)
		writeAns(enc, "codigoProcedimento", p.Code)
		writeAns(enc, "descricaoProcedimento", p.Description)
		closeEl(enc, "procedimento")
		writeAns(enc, "quantidadeExecutada", formatQuantity(p.Quantity))
		writeAns(enc, "valorUnitario", formatDecimal(p.UnitValue))
		writeAns(enc, "valorTotal", formatDecimal(p.Total()))
		closeEl(enc, "procedimentoExecutado")
	}
	closeEl(enc, "procedimentosExecutados")

	open(enc, "valorTotal")
	writeAns(enc, "valorProcedimentos", formatDecimal(g.TotalAmount))
	writeAns(enc, "valorTotalGeral", formatDecimal(g.TotalAmount))
	closeEl(enc, "valorTotal")
	closeEl(enc, guideElement)
}

// BuildAppeal genera el RECURSO_GLOSA para un recurso sobre una glosa.
// Glosas con ItemSequence se recurren por ítem; las demás por guía completa.
func (s *XMLBuilderService) BuildAppeal(ctx *AppealBuildContext) ([]byte, string, error) {
	if ctx == nil || ctx.Recurso == nil || ctx.Glosa == nil || ctx.Batch == nil || ctx.Operator == nil {
		return nil, "", fmt.Errorf("tiss: faltan recurso, glosa, lote u operadora en el contexto")
	}
	g := ctx.Glosa

	var buf bytes.Buffer
	enc := newEncoder(&buf)
	root := startMessage(enc)

	writeHeader(enc, padrao.TransactionAppeal, ctx.Batch.Number, &BatchBuildContext{
		Batch:    ctx.Batch,
		Operator: ctx.Operator,
		IssuedAt: ctx.IssuedAt,
	})

	open(enc, "prestadorParaOperadora")
	open(enc, "recursoGlosa")
	open(enc, "guiaRecursoGlosa")
	writeAns(enc, "registroANS", ctx.Operator.ANSRegistry)
	writeAns(enc, "numeroGuiaRecGlosaPrestador", shortID(ctx.Recurso.ID))
	writeAns(enc, "nomeOperadora", ctx.Operator.Name)
	if g.ItemSequence != nil {
		writeAns(enc, "objetoRecurso", appealObjectItem)
	} else {
		writeAns(enc, "objetoRecurso", appealObjectGuide)
	}
	open(enc, "dadosContratado")
	writeAns(enc, "codigoPrestadorNaOperadora", ctx.Operator.ProviderCode)
	closeEl(enc, "dadosContratado")
	writeAns(enc, "numeroLote", ctx.Batch.Number)
	writeAns(enc, "numeroProtocolo", ctx.Batch.ProtocolNumber)

	open(enc, "opcaoRecurso")
	open(enc, "recursoGuia")
	writeAns(enc, "numeroGuiaOrigem", g.GuideNumber)
	if g.ItemSequence != nil {
		open(enc, "itensGuia")
		writeAns(enc, "sequencialItem", strconv.Itoa(*g.ItemSequence))
		if g.ItemCode != "" {
			writeAns(enc, "codigoProcedimento", g.ItemCode)
		}
		writeAns(enc, "codGlosaItem", g.Code)
		writeAns(enc, "valorRecursado", formatDecimal(g.RejectedAmount))
		writeAns(enc, "justificativaItem", truncate(ctx.Recurso.Justification, padrao.MaxJustification))
		closeEl(enc, "itensGuia")
	} else {
		writeAns(enc, "codGlosaGuia", g.Code)
		writeAns(enc, "justificativaGuia", truncate(ctx.Recurso.Justification, padrao.MaxJustification))
	}
	closeEl(enc, "recursoGuia")
	closeEl(enc, "opcaoRecurso")

	writeAns(enc, "valorTotalRecursado", formatDecimal(g.RejectedAmount))
	writeAns(enc, "dataRecurso", ctx.IssuedAt.Format(dateLayout))
	closeEl(enc, "guiaRecursoGlosa")
	closeEl(enc, "recursoGlosa")
	closeEl(enc, "prestadorParaOperadora")

	return finishMessage(enc, root, &buf)
}

// BuildQuery genera las transacciones cortas del cliente (protocolo, guía, cancelación).
// ref es el número de protocolo o de guía según el tipo; reason solo aplica a CANCELA_GUIA.
func (s *XMLBuilderService) BuildQuery(transaction string, op *entity.OperatorWebservice, ref, reason string, sequence int64, issuedAt time.Time) ([]byte, error) {
	if op == nil {
		return nil, fmt.Errorf("tiss: operadora nula")
	}
	var buf bytes.Buffer
	enc := newEncoder(&buf)
	root := startMessage(enc)
	writeHeader(enc, transaction, strconv.FormatInt(sequence, 10), &BatchBuildContext{Operator: op, IssuedAt: issuedAt})

	open(enc, "prestadorParaOperadora")
	switch transaction {
	case padrao.TransactionBatchStatus:
		open(enc, "solicitacaoStatusProtocolo")
		writeAns(enc, "registroANS", op.ANSRegistry)
		writeAns(enc, "numeroProtocolo", ref)
		closeEl(enc, "solicitacaoStatusProtocolo")
	case padrao.TransactionGuideStatus:
		open(enc, "solicitacaoStatusAutorizacao")
		writeAns(enc, "registroANS", op.ANSRegistry)
		writeAns(enc, "numeroGuiaPrestador", ref)
		closeEl(enc, "solicitacaoStatusAutorizacao")
	case padrao.TransactionCancelGuide:
		open(enc, "cancelaGuia")
		writeAns(enc, "registroANS", op.ANSRegistry)
		writeAns(enc, "numeroGuiaPrestador", ref)
		writeAns(enc, "motivoCancelamento", truncate(reason, padrao.MaxJustification))
		closeEl(enc, "cancelaGuia")
	default:
		return nil, fmt.Errorf("tiss: transacción de consulta desconocida %q", transaction)
	}
	closeEl(enc, "prestadorParaOperadora")

	out, _, err := finishMessage(enc, root, &buf)
	return out, err
}

// ── Cabecera y epílogo ────────────────────────────────────────────────────────

func writeHeader(enc *xml.Encoder, transaction, sequence string, ctx *BatchBuildContext) {
	open(enc, "cabecalho")
	open(enc, "identificacaoTransacao")
	writeAns(enc, "tipoTransacao", transaction)
	writeAns(enc, "sequencialTransacao", sequence)
	writeAns(enc, "dataRegistroTransacao", ctx.IssuedAt.Format(dateLayout))
	writeAns(enc, "horaRegistroTransacao", ctx.IssuedAt.Format(timeLayout))
	closeEl(enc, "identificacaoTransacao")
	open(enc, "origem")
	open(enc, "identificacaoPrestador")
	writeAns(enc, "codigoPrestadorNaOperadora", ctx.Operator.ProviderCode)
	closeEl(enc, "identificacaoPrestador")
	closeEl(enc, "origem")
	open(enc, "destino")
	writeAns(enc, "registroANS", ctx.Operator.ANSRegistry)
	closeEl(enc, "destino")
	writeAns(enc, "Padrao", padrao.Version)
	closeEl(enc, "cabecalho")
}

func newEncoder(buf *bytes.Buffer) *xml.Encoder {
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	enc := xml.NewEncoder(buf)
	enc.Indent("", "  ")
	return enc
}

func startMessage(enc *xml.Encoder) xml.StartElement {
	root := xml.StartElement{
		Name: xml.Name{Local: ansName("mensagemTISS")},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:" + padrao.Prefix}, Value: padrao.Namespace},
		},
	}
	_ = enc.EncodeToken(root)
	return root
}

// finishMessage escribe el epílogo vacío, cierra la raíz y completa ans:hash con el MD5.
func finishMessage(enc *xml.Encoder, root xml.StartElement, buf *bytes.Buffer) ([]byte, string, error) {
	open(enc, padrao.ElementEpilogue)
	writeAns(enc, padrao.ElementHash, "")
	closeEl(enc, padrao.ElementEpilogue)
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, "", fmt.Errorf("tiss: cerrar mensagemTISS: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, "", fmt.Errorf("tiss: escribir XML: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(buf.Bytes()); err != nil {
		return nil, "", fmt.Errorf("tiss: releer XML generado: %w", err)
	}
	hash, err := padrao.ComputeHash(doc)
	if err != nil {
		return nil, "", err
	}
	el := padrao.FindHashElement(doc)
	if el == nil {
		return nil, "", fmt.Errorf("tiss: epílogo sin hash")
	}
	el.SetText(hash)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", fmt.Errorf("tiss: serializar XML: %w", err)
	}
	return out, hash, nil
}

// ── Helpers de escritura ──────────────────────────────────────────────────────

func ansName(local string) string {
	return padrao.Prefix + ":" + local
}

func open(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: ansName(local)}})
}

func closeEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: ansName(local)}})
}

func writeAns(enc *xml.Encoder, local, value string) {
	open(enc, local)
	_ = enc.EncodeToken(xml.CharData(value))
	closeEl(enc, local)
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func formatQuantity(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.Truncate(0).String()
	}
	return d.Round(4).String()
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// shortID recorta el UUID a los 20 caracteres admitidos por st_texto20.
func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > padrao.MaxGuideNumber {
		return id[:padrao.MaxGuideNumber]
	}
	return id
}
