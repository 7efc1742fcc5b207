package tiss

import (
	"crypto/tls"
	"fmt"

	"github.com/jhoicas/claims-engine/internal/domain"
	domaintiss "github.com/jhoicas/claims-engine/internal/domain/tiss"
	padrao "github.com/jhoicas/claims-engine/pkg/tiss"
)

// Codec reúne generación, validación, firma y parseo de mensajes TISS.
// Es puro salvo por el certificado, que se carga una vez al construirlo.
type Codec struct {
	builder   *XMLBuilderService
	validator *SchemaValidator
	parser    *ResponseParser
	signer    padrao.Signer
	cert      tls.Certificate
}

// NewCodec construye el codec. signer puede ser nil: los lotes de operadoras con
// SignPayload fallan entonces con ErrProtocol.
func NewCodec(signer padrao.Signer, cert tls.Certificate) *Codec {
	return &Codec{
		builder:   NewXMLBuilderService(),
		validator: NewSchemaValidator(),
		parser:    NewResponseParser(),
		signer:    signer,
		cert:      cert,
	}
}

// RenderBatch valida guías y operadora, genera el XML, lo valida contra el schema y lo firma
// si la operadora lo exige. Devuelve el payload y el hash del epílogo.
func (c *Codec) RenderBatch(ctx *BatchBuildContext) ([]byte, string, error) {
	if ctx == nil {
		return nil, "", domain.Protocolf("contexto de lote nulo")
	}
	if err := domaintiss.ValidateOperator(ctx.Operator); err != nil {
		return nil, "", err
	}
	for _, g := range ctx.Guides {
		if err := domaintiss.ValidateGuide(g); err != nil {
			return nil, "", err
		}
	}
	payload, hash, err := c.builder.BuildBatch(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	return c.finish(payload, hash, ctx.Operator.SignPayload)
}

// RenderAppeal genera y valida el RECURSO_GLOSA.
func (c *Codec) RenderAppeal(ctx *AppealBuildContext) ([]byte, string, error) {
	if ctx == nil {
		return nil, "", domain.Protocolf("contexto de recurso nulo")
	}
	if err := domaintiss.ValidateOperator(ctx.Operator); err != nil {
		return nil, "", err
	}
	payload, hash, err := c.builder.BuildAppeal(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	return c.finish(payload, hash, ctx.Operator.SignPayload)
}

func (c *Codec) finish(payload []byte, hash string, sign bool) ([]byte, string, error) {
	if err := c.validator.Validate(payload); err != nil {
		return nil, "", err
	}
	if !sign {
		return payload, hash, nil
	}
	if c.signer == nil || len(c.cert.Certificate) == 0 {
		return nil, "", domain.Protocolf("la operadora exige firma y no hay certificado configurado")
	}
	signed, err := c.signer.Sign(payload, c.cert)
	if err != nil {
		return nil, "", fmt.Errorf("%w: firma XMLDSig: %v", domain.ErrProtocol, err)
	}
	return signed, hash, nil
}

// Validate aplica el validador de schema a un payload existente.
func (c *Codec) Validate(payload []byte) error {
	return c.validator.Validate(payload)
}

// Builder expone el generador para las transacciones cortas del cliente.
func (c *Codec) Builder() *XMLBuilderService {
	return c.builder
}

// Parser expone el parser de respuestas.
func (c *Codec) Parser() *ResponseParser {
	return c.parser
}

// ParseAnalysis delega en el parser.
func (c *Codec) ParseAnalysis(raw []byte) (*AnalysisReport, error) {
	return c.parser.ParseAnalysis(raw)
}

// ParseBatch delega en el parser.
func (c *Codec) ParseBatch(raw []byte) (*BatchDocument, error) {
	return c.parser.ParseBatch(raw)
}
