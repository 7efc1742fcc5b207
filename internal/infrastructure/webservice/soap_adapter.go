package webservice

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	padrao "github.com/jhoicas/claims-engine/pkg/tiss"
)

// ── Constantes SOAP ───────────────────────────────────────────────────────────

const (
	soapNS         = "http://schemas.xmlsoap.org/soap/envelope/"
	soapActionBase = "http://www.ans.gov.br/tiss/ws/"

	maxResponseBytes = 4 << 20
)

var soapActions = map[string]string{
	padrao.TransactionSendBatch:   "tissLoteGuias",
	padrao.TransactionBatchStatus: "tissSolicitacaoStatusProtocolo",
	padrao.TransactionGuideStatus: "tissSolicitacaoStatusAutorizacao",
	padrao.TransactionCancelGuide: "tissCancelaGuia",
	padrao.TransactionAppeal:      "tissRecursoGlosa",
}

// ── Implementación SOAP ───────────────────────────────────────────────────────

// SOAPAdapter implementa OperatorAdapter con el WS SOAP estándar TISS: el mensagemTISS viaja
// dentro de soap:Body en el charset de la operadora.
type SOAPAdapter struct {
	httpClient *http.Client
	builder    *tiss.XMLBuilderService
	parser     *tiss.ResponseParser
	decorators []RequestDecorator
	now        func() time.Time
	seq        atomic.Int64
}

// NewSOAPAdapter construye el adaptador. El timeout por intento lo fija el Client vía contexto;
// httpClient puede ser nil.
func NewSOAPAdapter(httpClient *http.Client, builder *tiss.XMLBuilderService, parser *tiss.ResponseParser, decorators ...RequestDecorator) *SOAPAdapter {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	a := &SOAPAdapter{
		httpClient: httpClient,
		builder:    builder,
		parser:     parser,
		decorators: decorators,
		now:        time.Now,
	}
	a.seq.Store(time.Now().Unix() % 1_000_000)
	return a
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"soap:Envelope"`
	XmlnsS  string     `xml:"xmlns:soap,attr"`
	Header  soapHeader `xml:"soap:Header"`
	Body    soapBody   `xml:"soap:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content []byte `xml:",innerxml"`
}

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Fault   *soapFault `xml:"Fault"`
	Content []byte     `xml:",innerxml"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// Send entrega el ENVIO_LOTE_GUIAS y devuelve el protocolo de recepción.
func (a *SOAPAdapter) Send(ctx context.Context, t Target, payload []byte) (*TransmissionResult, error) {
	raw, receipt, err := a.roundTrip(ctx, t, OpSend, padrao.TransactionSendBatch, payload)
	if err != nil {
		return nil, err
	}
	if receipt.Kind != tiss.ReceiptBatch {
		return nil, NewError(KindProtocol, OpSend, "se esperaba protocoloRecebimento, llegó "+receipt.Kind, nil)
	}
	return &TransmissionResult{
		ProtocolNumber: receipt.ProtocolNumber,
		ReceivedAt:     receivedAt(receipt, a.now()),
		Status:         StatusAccepted,
		RawResponse:    raw,
	}, nil
}

// Query consulta la situación de un protocolo.
func (a *SOAPAdapter) Query(ctx context.Context, t Target, protocolNumber string) (*ProtocolStatus, error) {
	msg, err := a.builder.BuildQuery(padrao.TransactionBatchStatus, t.Operator, protocolNumber, "", a.seq.Add(1), a.now())
	if err != nil {
		return nil, NewError(KindProtocol, OpQuery, "generar consulta", err)
	}
	raw, receipt, err := a.roundTrip(ctx, t, OpQuery, padrao.TransactionBatchStatus, msg)
	if err != nil {
		return nil, err
	}
	if receipt.Kind != tiss.ReceiptBatchStatus {
		return nil, NewError(KindProtocol, OpQuery, "se esperaba situacaoProtocolo, llegó "+receipt.Kind, nil)
	}
	return &ProtocolStatus{ProtocolNumber: receipt.ProtocolNumber, Status: receipt.Status, RawResponse: raw}, nil
}

// QueryGuide consulta la situación de una guía.
func (a *SOAPAdapter) QueryGuide(ctx context.Context, t Target, guideNumber string) (*GuideStatus, error) {
	msg, err := a.builder.BuildQuery(padrao.TransactionGuideStatus, t.Operator, guideNumber, "", a.seq.Add(1), a.now())
	if err != nil {
		return nil, NewError(KindProtocol, OpQueryGuide, "generar consulta", err)
	}
	raw, receipt, err := a.roundTrip(ctx, t, OpQueryGuide, padrao.TransactionGuideStatus, msg)
	if err != nil {
		return nil, err
	}
	if receipt.Kind != tiss.ReceiptGuideStatus {
		return nil, NewError(KindProtocol, OpQueryGuide, "se esperaba situacaoAutorizacao, llegó "+receipt.Kind, nil)
	}
	return &GuideStatus{GuideNumber: receipt.GuideNumber, Status: receipt.Status, RawResponse: raw}, nil
}

// CancelGuide solicita la cancelación; false = la operadora no canceló.
func (a *SOAPAdapter) CancelGuide(ctx context.Context, t Target, guideNumber, reason string) (bool, error) {
	msg, err := a.builder.BuildQuery(padrao.TransactionCancelGuide, t.Operator, guideNumber, reason, a.seq.Add(1), a.now())
	if err != nil {
		return false, NewError(KindProtocol, OpCancelGuide, "generar cancelación", err)
	}
	_, receipt, err := a.roundTrip(ctx, t, OpCancelGuide, padrao.TransactionCancelGuide, msg)
	if err != nil {
		return false, err
	}
	if receipt.Kind != tiss.ReceiptCancel {
		return false, NewError(KindProtocol, OpCancelGuide, "se esperaba reciboCancelaGuia, llegó "+receipt.Kind, nil)
	}
	return receipt.Cancelled, nil
}

// SubmitAppeal entrega el RECURSO_GLOSA.
func (a *SOAPAdapter) SubmitAppeal(ctx context.Context, t Target, payload []byte) (*AppealResult, error) {
	raw, receipt, err := a.roundTrip(ctx, t, OpSubmitAppeal, padrao.TransactionAppeal, payload)
	if err != nil {
		return nil, err
	}
	if receipt.Kind != tiss.ReceiptAppeal {
		return nil, NewError(KindProtocol, OpSubmitAppeal, "se esperaba reciboRecursoGlosa, llegó "+receipt.Kind, nil)
	}
	return &AppealResult{
		ProtocolNumber: receipt.ProtocolNumber,
		ReceivedAt:     receivedAt(receipt, a.now()),
		RawResponse:    raw,
	}, nil
}

// ── Transporte ────────────────────────────────────────────────────────────────

// roundTrip envuelve el mensaje, lo envía y devuelve el mensagemTISS de respuesta con su recibo.
func (a *SOAPAdapter) roundTrip(ctx context.Context, t Target, operation, transaction string, message []byte) ([]byte, *tiss.Receipt, error) {
	if t.Operator == nil || t.Operator.Endpoint == "" {
		return nil, nil, NewError(KindValidation, operation, "operadora sin endpoint", nil)
	}
	body, err := a.envelope(t, message)
	if err != nil {
		return nil, nil, NewError(KindProtocol, operation, "serializar envelope", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Operator.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, NewError(KindValidation, operation, "crear request", err)
	}
	charset := t.Operator.Charset
	if charset == "" {
		charset = padrao.CharsetISO88591
	}
	req.Header.Set("Content-Type", "text/xml; charset="+charset)
	req.Header.Set("SOAPAction", soapActionBase+soapActions[transaction])
	for _, d := range a.decorators {
		if err := d(req, t); err != nil {
			return nil, nil, NewError(KindAuth, operation, "preparar credenciales", err)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, classifyTransportError(operation, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, classifyTransportError(operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e := NewError(KindAuth, operation, "credenciales rechazadas", nil)
		e.StatusCode = resp.StatusCode
		return nil, nil, e
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusGatewayTimeout:
		e := NewError(KindConnection, operation, "operadora no disponible", nil)
		e.StatusCode = resp.StatusCode
		return nil, nil, e
	}

	inner, fault, err := unwrapEnvelope(rawBody)
	if fault != nil {
		kind := KindBusiness
		if strings.HasSuffix(fault.FaultCode, "Client") {
			kind = KindValidation
		}
		e := NewError(kind, operation, fault.FaultString, nil)
		e.StatusCode = resp.StatusCode
		e.Code = fault.FaultCode
		return nil, nil, e
	}
	if resp.StatusCode >= 400 {
		kind := KindValidation
		if resp.StatusCode >= 500 {
			kind = KindBusiness
		}
		e := NewError(kind, operation, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		e.StatusCode = resp.StatusCode
		return nil, nil, e
	}
	if err != nil {
		e := NewError(KindProtocol, operation, "respuesta SOAP ilegible", err)
		e.StatusCode = resp.StatusCode
		return nil, nil, e
	}

	receipt, err := a.parser.ParseReceipt(inner)
	if err != nil {
		return nil, nil, NewError(KindProtocol, operation, "recibo TISS ilegible", err)
	}
	if receipt.Rejected() {
		e := NewError(KindBusiness, operation, receipt.ErrorMessage, nil)
		e.Code = receipt.ErrorCode
		return nil, nil, e
	}
	return inner, receipt, nil
}

// envelope arma el soap:Envelope con el mensaje (sin su declaración) y lo convierte al charset.
func (a *SOAPAdapter) envelope(t Target, message []byte) ([]byte, error) {
	content := bytes.TrimSpace(message)
	if bytes.HasPrefix(content, []byte("<?xml")) {
		if end := bytes.Index(content, []byte("?>")); end >= 0 {
			content = bytes.TrimSpace(content[end+2:])
		}
	}
	env := soapEnvelope{
		XmlnsS: soapNS,
		Body:   soapBody{Content: content},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return padrao.EncodeDocument(t.Operator.Charset, out)
}

func unwrapEnvelope(raw []byte) ([]byte, *soapFault, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = padrao.CharsetReader
	var env soapResponseEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, nil, err
	}
	if env.Body.Fault != nil {
		return nil, env.Body.Fault, nil
	}
	content := bytes.TrimSpace(env.Body.Content)
	if len(content) == 0 {
		return nil, nil, errors.New("soap:Body vacío")
	}
	return content, nil, nil
}

func classifyTransportError(operation string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError(KindTimeout, operation, "timeout", err)
	}
	return NewError(KindConnection, operation, "llamada HTTP fallida", err)
}

func receivedAt(r *tiss.Receipt, fallback time.Time) time.Time {
	if r.ReceivedAt != nil {
		return *r.ReceivedAt
	}
	return fallback
}

var _ OperatorAdapter = (*SOAPAdapter)(nil)
