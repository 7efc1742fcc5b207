package tiss

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	padrao "github.com/jhoicas/claims-engine/pkg/tiss"
)

// Mensajes en sentido operadora → prestador. Los usa el adaptador sandbox y las pruebas
// que simulan a la operadora.

// BuildAnalysis genera un DEMONSTRATIVO_ANALISE_CONTA a partir del reporte.
func (s *XMLBuilderService) BuildAnalysis(report *AnalysisReport, op *entity.OperatorWebservice, issuedAt time.Time) ([]byte, error) {
	if report == nil || op == nil {
		return nil, fmt.Errorf("tiss: faltan reporte u operadora")
	}
	var buf bytes.Buffer
	enc := newEncoder(&buf)
	root := startMessage(enc)
	writeOperatorHeader(enc, padrao.TransactionAnalysisReport, op, issuedAt)

	open(enc, "operadoraParaPrestador")
	open(enc, "demonstrativosRetorno")
	open(enc, "demonstrativoAnaliseConta")
	open(enc, "cabecalhoDemonstrativo")
	writeAns(enc, "registroANS", op.ANSRegistry)
	writeAns(enc, "numeroDemonstrativo", report.ReportNumber)
	writeAns(enc, "dataEmissao", issuedAt.Format(dateLayout))
	closeEl(enc, "cabecalhoDemonstrativo")
	open(enc, "dadosConta")
	open(enc, "dadosProtocolo")
	writeAns(enc, "numeroLotePrestador", report.BatchNumber)
	writeAns(enc, "numeroProtocolo", report.ProtocolNumber)
	for _, g := range report.Guides {
		open(enc, "relacaoGuias")
		if g.GuideNumber != "" {
			writeAns(enc, "numeroGuiaPrestador", g.GuideNumber)
		}
		writeAns(enc, "valorInformadoGuia", formatDecimal(g.Informed))
		writeAns(enc, "valorLiberadoGuia", formatDecimal(g.Released))
		writeAns(enc, "valorGlosaGuia", formatDecimal(g.Rejected))
		for _, gl := range g.Glosas {
			open(enc, "relacaoGlosa")
			if gl.ItemSequence != nil {
				writeAns(enc, "sequencialItem", strconv.Itoa(*gl.ItemSequence))
			}
			if gl.ProcedureCode != "" {
				writeAns(enc, "codigoProcedimento", gl.ProcedureCode)
			}
			if gl.OriginalAmount != nil {
				writeAns(enc, "valorInformado", formatDecimal(*gl.OriginalAmount))
			}
			writeAns(enc, "valorGlosa", formatDecimal(gl.RejectedAmount))
			writeAns(enc, "tipoGlosa", gl.Code)
			writeAns(enc, "descricaoGlosa", gl.Description)
			if gl.Date != nil {
				writeAns(enc, "dataGlosa", gl.Date.Format(dateLayout))
			}
			closeEl(enc, "relacaoGlosa")
		}
		closeEl(enc, "relacaoGuias")
	}
	closeEl(enc, "dadosProtocolo")
	closeEl(enc, "dadosConta")
	closeEl(enc, "demonstrativoAnaliseConta")
	closeEl(enc, "demonstrativosRetorno")
	closeEl(enc, "operadoraParaPrestador")

	out, _, err := finishMessage(enc, root, &buf)
	return out, err
}

// BuildReceipt genera el recibo síncrono de una transacción.
func (s *XMLBuilderService) BuildReceipt(receipt *Receipt, op *entity.OperatorWebservice, issuedAt time.Time) ([]byte, error) {
	if receipt == nil || op == nil {
		return nil, fmt.Errorf("tiss: faltan recibo u operadora")
	}
	var buf bytes.Buffer
	enc := newEncoder(&buf)
	root := startMessage(enc)
	writeOperatorHeader(enc, receiptTransaction(receipt.Kind), op, issuedAt)

	open(enc, "operadoraParaPrestador")
	switch receipt.Kind {
	case ReceiptBatch, ReceiptAppeal:
		el := "protocoloRecebimento"
		if receipt.Kind == ReceiptAppeal {
			el = "reciboRecursoGlosa"
		}
		open(enc, el)
		writeAns(enc, "numeroProtocolo", receipt.ProtocolNumber)
		writeAns(enc, "dataRecebimento", issuedAt.Format(dateLayout))
		if receipt.Status != "" {
			writeAns(enc, "situacao", receipt.Status)
		}
		closeEl(enc, el)
	case ReceiptCancel:
		status := "2"
		if receipt.Cancelled {
			status = "1"
		}
		open(enc, "reciboCancelaGuia")
		writeAns(enc, "numeroGuiaPrestador", receipt.GuideNumber)
		writeAns(enc, "statusCancelamento", status)
		closeEl(enc, "reciboCancelaGuia")
	case ReceiptGuideStatus:
		open(enc, "situacaoAutorizacao")
		writeAns(enc, "numeroGuiaPrestador", receipt.GuideNumber)
		writeAns(enc, "statusSolicitacao", receipt.Status)
		closeEl(enc, "situacaoAutorizacao")
	case ReceiptBatchStatus:
		open(enc, "situacaoProtocolo")
		writeAns(enc, "numeroProtocolo", receipt.ProtocolNumber)
		writeAns(enc, "statusProtocolo", receipt.Status)
		closeEl(enc, "situacaoProtocolo")
	case ReceiptError:
		open(enc, "mensagemErro")
		writeAns(enc, "codigoGlosa", receipt.ErrorCode)
		writeAns(enc, "descricaoGlosa", receipt.ErrorMessage)
		closeEl(enc, "mensagemErro")
	default:
		return nil, fmt.Errorf("tiss: tipo de recibo desconocido %q", receipt.Kind)
	}
	closeEl(enc, "operadoraParaPrestador")

	out, _, err := finishMessage(enc, root, &buf)
	return out, err
}

func receiptTransaction(kind string) string {
	switch kind {
	case ReceiptAppeal:
		return padrao.TransactionAppealReceipt
	case ReceiptCancel:
		return padrao.TransactionCancelReceipt
	case ReceiptGuideStatus:
		return padrao.TransactionGuideStatusResp
	case ReceiptBatchStatus:
		return padrao.TransactionBatchStatus
	}
	return padrao.TransactionBatchReceipt
}

func writeOperatorHeader(enc *xml.Encoder, transaction string, op *entity.OperatorWebservice, issuedAt time.Time) {
	open(enc, "cabecalho")
	open(enc, "identificacaoTransacao")
	writeAns(enc, "tipoTransacao", transaction)
	writeAns(enc, "sequencialTransacao", strconv.FormatInt(issuedAt.Unix()%1_000_000_000, 10))
	writeAns(enc, "dataRegistroTransacao", issuedAt.Format(dateLayout))
	writeAns(enc, "horaRegistroTransacao", issuedAt.Format(timeLayout))
	closeEl(enc, "identificacaoTransacao")
	open(enc, "origem")
	writeAns(enc, "registroANS", op.ANSRegistry)
	closeEl(enc, "origem")
	open(enc, "destino")
	open(enc, "identificacaoPrestador")
	writeAns(enc, "codigoPrestadorNaOperadora", op.ProviderCode)
	closeEl(enc, "identificacaoPrestador")
	closeEl(enc, "destino")
	writeAns(enc, "Padrao", padrao.Version)
	closeEl(enc, "cabecalho")
}
