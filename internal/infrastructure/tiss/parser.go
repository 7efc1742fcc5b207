package tiss

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/domain"
	padrao "github.com/jhoicas/claims-engine/pkg/tiss"
)

// ── Estructuras de lectura (tags sin prefijo: encoding/xml compara el nombre local) ──

type messageXML struct {
	XMLName    xml.Name       `xml:"mensagemTISS"`
	Header     headerXML      `xml:"cabecalho"`
	ToOperator *toOperatorXML `xml:"prestadorParaOperadora"`
	ToProvider *toProviderXML `xml:"operadoraParaPrestador"`
	Hash       string         `xml:"epilogo>hash"`
}

type headerXML struct {
	Type           string `xml:"identificacaoTransacao>tipoTransacao"`
	Sequence       string `xml:"identificacaoTransacao>sequencialTransacao"`
	Date           string `xml:"identificacaoTransacao>dataRegistroTransacao"`
	Time           string `xml:"identificacaoTransacao>horaRegistroTransacao"`
	OriginProvider string `xml:"origem>identificacaoPrestador>codigoPrestadorNaOperadora"`
	OriginANS      string `xml:"origem>registroANS"`
	DestinationANS string `xml:"destino>registroANS"`
	Version        string `xml:"Padrao"`
}

type toOperatorXML struct {
	Batch *batchXML `xml:"loteGuias"`
}

type batchXML struct {
	Number string     `xml:"numeroLote"`
	Guides []guideXML `xml:"guiasTISS>guiaSP-SADT"`
}

type guideXML struct {
	ANSRegistry     string         `xml:"cabecalhoGuia>registroANS"`
	Number          string         `xml:"cabecalhoGuia>numeroGuiaPrestador"`
	BeneficiaryCard string         `xml:"dadosBeneficiario>numeroCarteira"`
	Procedures      []procedureXML `xml:"procedimentosExecutados>procedimentoExecutado"`
	Total           string         `xml:"valorTotal>valorTotalGeral"`
}

type procedureXML struct {
	Sequence    string `xml:"sequencialItem"`
	ExecutedAt  string `xml:"dataExecucao"`
	Table       string `xml:"procedimento>codigoTabela"`
	Code        string `xml:"procedimento>codigoProcedimento"`
	Description string `xml:"procedimento>descricaoProcedimento"`
	Quantity    string `xml:"quantidadeExecutada"`
	UnitValue   string `xml:"valorUnitario"`
	Total       string `xml:"valorTotal"`
}

type toProviderXML struct {
	BatchReceipt   *receiptXML        `xml:"protocoloRecebimento"`
	AppealReceipt  *receiptXML        `xml:"reciboRecursoGlosa"`
	CancelReceipt  *cancelReceiptXML  `xml:"reciboCancelaGuia"`
	GuideStatus    *guideStatusXML    `xml:"situacaoAutorizacao"`
	ProtocolStatus *protocolStatusXML `xml:"situacaoProtocolo"`
	Error          *errorXML          `xml:"mensagemErro"`
	Reports        []analysisXML      `xml:"demonstrativosRetorno>demonstrativoAnaliseConta"`
}

type receiptXML struct {
	ProtocolNumber string `xml:"numeroProtocolo"`
	ReceivedAt     string `xml:"dataRecebimento"`
	Status         string `xml:"situacao"`
}

type cancelReceiptXML struct {
	GuideNumber string `xml:"numeroGuiaPrestador"`
	Status      string `xml:"statusCancelamento"`
}

type guideStatusXML struct {
	GuideNumber string `xml:"numeroGuiaPrestador"`
	Status      string `xml:"statusSolicitacao"`
}

type protocolStatusXML struct {
	ProtocolNumber string `xml:"numeroProtocolo"`
	Status         string `xml:"statusProtocolo"`
}

type errorXML struct {
	Code        string `xml:"codigoGlosa"`
	Description string `xml:"descricaoGlosa"`
}

type analysisXML struct {
	ANSRegistry  string        `xml:"cabecalhoDemonstrativo>registroANS"`
	ReportNumber string        `xml:"cabecalhoDemonstrativo>numeroDemonstrativo"`
	IssuedAt     string        `xml:"cabecalhoDemonstrativo>dataEmissao"`
	Protocols    []protocolXML `xml:"dadosConta>dadosProtocolo"`
}

type protocolXML struct {
	BatchNumber    string             `xml:"numeroLotePrestador"`
	ProtocolNumber string             `xml:"numeroProtocolo"`
	Guides         []guideAnalysisXML `xml:"relacaoGuias"`
}

type guideAnalysisXML struct {
	Number   string     `xml:"numeroGuiaPrestador"`
	Informed string     `xml:"valorInformadoGuia"`
	Released string     `xml:"valorLiberadoGuia"`
	Rejected string     `xml:"valorGlosaGuia"`
	Glosas   []glosaXML `xml:"relacaoGlosa"`
}

type glosaXML struct {
	Sequence      string `xml:"sequencialItem"`
	ProcedureCode string `xml:"codigoProcedimento"`
	Informed      string `xml:"valorInformado"`
	Rejected      string `xml:"valorGlosa"`
	Code          string `xml:"tipoGlosa"`
	Description   string `xml:"descricaoGlosa"`
	Date          string `xml:"dataGlosa"`
}

// ── Parser ────────────────────────────────────────────────────────────────────

// ResponseParser interpreta mensajes TISS recibidos (o generados, para verificación).
type ResponseParser struct{}

// NewResponseParser crea el parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

func decodeMessage(raw []byte) (*messageXML, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, domain.Protocolf("mensaje vacío")
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = padrao.CharsetReader
	var msg messageXML
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: XML mal formado: %v", domain.ErrProtocol, err)
	}
	if msg.XMLName.Local != "mensagemTISS" {
		return nil, domain.Protocolf("raíz %q, se esperaba mensagemTISS", msg.XMLName.Local)
	}
	return &msg, nil
}

// ParseAnalysis extrae el demonstrativoAnaliseConta de la respuesta de la operadora.
// Las líneas con valores ilegibles se devuelven con Problem para que el detector las descarte.
func (p *ResponseParser) ParseAnalysis(raw []byte) (*AnalysisReport, error) {
	msg, err := decodeMessage(raw)
	if err != nil {
		return nil, err
	}
	if msg.ToProvider == nil {
		return nil, domain.Protocolf("respuesta sin operadoraParaPrestador")
	}
	if e := msg.ToProvider.Error; e != nil {
		return nil, domain.Protocolf("la operadora devolvió mensagemErro %s: %s", e.Code, e.Description)
	}
	if len(msg.ToProvider.Reports) == 0 {
		return nil, domain.Protocolf("respuesta sin demonstrativoAnaliseConta")
	}

	report := &AnalysisReport{}
	for i, r := range msg.ToProvider.Reports {
		if i == 0 {
			report.ANSRegistry = strings.TrimSpace(r.ANSRegistry)
			report.ReportNumber = strings.TrimSpace(r.ReportNumber)
			report.IssuedAt = parseDate(r.IssuedAt)
		}
		for _, prot := range r.Protocols {
			if report.ProtocolNumber == "" {
				report.ProtocolNumber = strings.TrimSpace(prot.ProtocolNumber)
				report.BatchNumber = strings.TrimSpace(prot.BatchNumber)
			}
			for _, g := range prot.Guides {
				report.Guides = append(report.Guides, toGuideAnalysis(g))
			}
		}
	}
	return report, nil
}

func toGuideAnalysis(g guideAnalysisXML) GuideAnalysis {
	number := strings.TrimSpace(g.Number)
	out := GuideAnalysis{
		GuideNumber: number,
		Informed:    parseMoneyOrZero(g.Informed),
		Released:    parseMoneyOrZero(g.Released),
		Rejected:    parseMoneyOrZero(g.Rejected),
	}
	for _, gl := range g.Glosas {
		entry := GlosaEntry{
			GuideNumber:   number,
			ProcedureCode: strings.TrimSpace(gl.ProcedureCode),
			Code:          strings.TrimSpace(gl.Code),
			Description:   strings.TrimSpace(gl.Description),
			Date:          parseDate(gl.Date),
		}
		var problems []string
		if s := strings.TrimSpace(gl.Sequence); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				entry.ItemSequence = &n
			} else {
				problems = append(problems, "sequencialItem "+s+" inválido")
			}
		}
		if s := strings.TrimSpace(gl.Informed); s != "" {
			if d, err := decimal.NewFromString(s); err == nil {
				entry.OriginalAmount = &d
			} else {
				problems = append(problems, "valorInformado "+s+" inválido")
			}
		}
		if d, err := decimal.NewFromString(strings.TrimSpace(gl.Rejected)); err == nil {
			entry.RejectedAmount = d
		} else {
			problems = append(problems, "valorGlosa ausente o inválido")
		}
		if entry.Code == "" {
			problems = append(problems, "tipoGlosa ausente")
		}
		if entry.Description == "" {
			problems = append(problems, "descricaoGlosa ausente")
		}
		entry.Problem = strings.Join(problems, "; ")
		out.Glosas = append(out.Glosas, entry)
	}
	return out
}

// ParseReceipt interpreta la respuesta síncrona a una transacción enviada.
func (p *ResponseParser) ParseReceipt(raw []byte) (*Receipt, error) {
	msg, err := decodeMessage(raw)
	if err != nil {
		return nil, err
	}
	tp := msg.ToProvider
	if tp == nil {
		return nil, domain.Protocolf("respuesta sin operadoraParaPrestador")
	}
	switch {
	case tp.Error != nil:
		return &Receipt{
			Kind:         ReceiptError,
			ErrorCode:    strings.TrimSpace(tp.Error.Code),
			ErrorMessage: strings.TrimSpace(tp.Error.Description),
		}, nil
	case tp.BatchReceipt != nil:
		return receiptFrom(ReceiptBatch, tp.BatchReceipt)
	case tp.AppealReceipt != nil:
		return receiptFrom(ReceiptAppeal, tp.AppealReceipt)
	case tp.CancelReceipt != nil:
		status := strings.TrimSpace(tp.CancelReceipt.Status)
		return &Receipt{
			Kind:        ReceiptCancel,
			GuideNumber: strings.TrimSpace(tp.CancelReceipt.GuideNumber),
			Status:      status,
			Cancelled:   status == "1",
		}, nil
	case tp.GuideStatus != nil:
		return &Receipt{
			Kind:        ReceiptGuideStatus,
			GuideNumber: strings.TrimSpace(tp.GuideStatus.GuideNumber),
			Status:      strings.TrimSpace(tp.GuideStatus.Status),
		}, nil
	case tp.ProtocolStatus != nil:
		return &Receipt{
			Kind:           ReceiptBatchStatus,
			ProtocolNumber: strings.TrimSpace(tp.ProtocolStatus.ProtocolNumber),
			Status:         strings.TrimSpace(tp.ProtocolStatus.Status),
		}, nil
	case len(tp.Reports) > 0:
		return &Receipt{Kind: ReceiptAnalysis}, nil
	}
	return nil, domain.Protocolf("respuesta sin recibo reconocible")
}

func receiptFrom(kind string, r *receiptXML) (*Receipt, error) {
	protocol := strings.TrimSpace(r.ProtocolNumber)
	if protocol == "" {
		return nil, domain.Protocolf("recibo %s sin numeroProtocolo", kind)
	}
	return &Receipt{
		Kind:           kind,
		ProtocolNumber: protocol,
		ReceivedAt:     parseDate(r.ReceivedAt),
		Status:         strings.TrimSpace(r.Status),
	}, nil
}

// ParseBatch relee un ENVIO_LOTE_GUIAS generado.
func (p *ResponseParser) ParseBatch(raw []byte) (*BatchDocument, error) {
	msg, err := decodeMessage(raw)
	if err != nil {
		return nil, err
	}
	if msg.ToOperator == nil || msg.ToOperator.Batch == nil {
		return nil, domain.Protocolf("mensaje sin prestadorParaOperadora/loteGuias")
	}
	doc := &BatchDocument{
		TransactionType: msg.Header.Type,
		Sequence:        msg.Header.Sequence,
		ANSRegistry:     msg.Header.DestinationANS,
		ProviderCode:    msg.Header.OriginProvider,
		Version:         msg.Header.Version,
		BatchNumber:     msg.ToOperator.Batch.Number,
		Hash:            strings.TrimSpace(msg.Hash),
	}
	for _, g := range msg.ToOperator.Batch.Guides {
		gd := GuideDocument{
			Number:          g.Number,
			BeneficiaryCard: g.BeneficiaryCard,
			Total:           parseMoneyOrZero(g.Total),
		}
		for _, pr := range g.Procedures {
			seq, _ := strconv.Atoi(strings.TrimSpace(pr.Sequence))
			gd.Procedures = append(gd.Procedures, ProcedureDocument{
				Sequence:    seq,
				ExecutedAt:  pr.ExecutedAt,
				Table:       pr.Table,
				Code:        pr.Code,
				Description: pr.Description,
				Quantity:    parseMoneyOrZero(pr.Quantity),
				UnitValue:   parseMoneyOrZero(pr.UnitValue),
				Total:       parseMoneyOrZero(pr.Total),
			})
		}
		doc.Guides = append(doc.Guides, gd)
	}
	return doc, nil
}

func parseMoneyOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
