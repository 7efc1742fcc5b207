package tiss

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/domain"
	padrao "github.com/jhoicas/claims-engine/pkg/tiss"
)

// SchemaValidator aplica las restricciones estructurales de los schemas TISS que el motor genera
// (elementos obligatorios, tipos simples, coherencia de valores y hash del epílogo).
type SchemaValidator struct{}

// NewSchemaValidator crea el validador.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

var knownTransactions = map[string]bool{
	padrao.TransactionSendBatch:   true,
	padrao.TransactionAppeal:      true,
	padrao.TransactionBatchStatus: true,
	padrao.TransactionGuideStatus: true,
	padrao.TransactionCancelGuide: true,
}

// Validate verifica buena formación y schema. Todos los errores vuelven juntos envolviendo ErrProtocol.
func (v *SchemaValidator) Validate(raw []byte) error {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = padrao.CharsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return fmt.Errorf("%w: XML mal formado: %v", domain.ErrProtocol, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "mensagemTISS" {
		return domain.Protocolf("raíz mensagemTISS ausente")
	}

	c := &checker{}
	if root.Space != padrao.Prefix {
		c.addf("mensagemTISS debe usar el prefijo %s:", padrao.Prefix)
	}
	if ns := root.SelectAttrValue("xmlns:"+padrao.Prefix, ""); ns != padrao.Namespace {
		c.addf("namespace %q, se esperaba %q", ns, padrao.Namespace)
	}
	checkPrefixes(root, c)

	transaction := v.validateHeader(child(root, "cabecalho"), c)
	body := child(root, "prestadorParaOperadora")
	if body == nil {
		c.addf("prestadorParaOperadora ausente")
	} else {
		switch transaction {
		case padrao.TransactionSendBatch:
			v.validateBatch(child(body, "loteGuias"), c)
		case padrao.TransactionAppeal:
			v.validateAppeal(child(body, "recursoGlosa", "guiaRecursoGlosa"), c)
		}
	}

	declared, computed, err := padrao.VerifyHash(doc)
	if err != nil {
		c.add(err)
	} else if declared == "" {
		c.addf("epilogo/hash ausente")
	} else if declared != computed {
		c.addf("hash del epílogo %s no coincide con el calculado %s", declared, computed)
	}

	return c.err()
}

func (v *SchemaValidator) validateHeader(h *etree.Element, c *checker) string {
	if h == nil {
		c.addf("cabecalho ausente")
		return ""
	}
	transaction := text(h, "identificacaoTransacao", "tipoTransacao")
	if !knownTransactions[transaction] {
		c.addf("tipoTransacao %q no soportado", transaction)
	}
	if _, err := strconv.ParseInt(text(h, "identificacaoTransacao", "sequencialTransacao"), 10, 64); err != nil {
		c.addf("sequencialTransacao debe ser numérico")
	}
	if !padrao.DatePattern.MatchString(text(h, "identificacaoTransacao", "dataRegistroTransacao")) {
		c.addf("dataRegistroTransacao con formato inválido")
	}
	if !padrao.TimePattern.MatchString(text(h, "identificacaoTransacao", "horaRegistroTransacao")) {
		c.addf("horaRegistroTransacao con formato inválido")
	}
	provider := text(h, "origem", "identificacaoPrestador", "codigoPrestadorNaOperadora")
	if provider == "" || len(provider) > padrao.MaxProviderCode {
		c.addf("codigoPrestadorNaOperadora %q inválido", provider)
	}
	if ans := text(h, "destino", "registroANS"); !padrao.RegistroANSPattern.MatchString(ans) {
		c.addf("registroANS de destino %q inválido", ans)
	}
	if ver := text(h, "Padrao"); ver != padrao.Version {
		c.addf("Padrao %q, se esperaba %s", ver, padrao.Version)
	}
	return transaction
}

func (v *SchemaValidator) validateBatch(lote *etree.Element, c *checker) {
	if lote == nil {
		c.addf("loteGuias ausente")
		return
	}
	if n := text(lote, "numeroLote"); !padrao.BatchNumberPattern.MatchString(n) {
		c.addf("numeroLote %q inválido", n)
	}
	guides := children(child(lote, "guiasTISS"), guideElement)
	if len(guides) == 0 {
		c.addf("loteGuias sin guías")
	}
	for _, g := range guides {
		number := text(g, "cabecalhoGuia", "numeroGuiaPrestador")
		label := "guía " + number
		if number == "" || len(number) > padrao.MaxGuideNumber {
			c.addf("numeroGuiaPrestador %q inválido", number)
		}
		if !padrao.RegistroANSPattern.MatchString(text(g, "cabecalhoGuia", "registroANS")) {
			c.addf("%s: registroANS inválido", label)
		}
		card := text(g, "dadosBeneficiario", "numeroCarteira")
		if card == "" || len(card) > padrao.MaxCardNumber {
			c.addf("%s: numeroCarteira obligatorio (máx. %d)", label, padrao.MaxCardNumber)
		}
		procs := children(child(g, "procedimentosExecutados"), "procedimentoExecutado")
		if len(procs) == 0 {
			c.addf("%s: sin procedimentoExecutado", label)
		}
		sum := decimal.Zero
		for _, p := range procs {
			sum = sum.Add(v.validateProcedure(label, p, c))
		}
		total, ok := money(text(g, "valorTotal", "valorTotalGeral"))
		if !ok {
			c.addf("%s: valorTotalGeral inválido", label)
		} else if !total.Equal(sum) {
			c.addf("%s: valorTotalGeral %s distinto de la suma %s", label, total.StringFixed(2), sum.StringFixed(2))
		}
	}
}

func (v *SchemaValidator) validateProcedure(label string, p *etree.Element, c *checker) decimal.Decimal {
	seq := text(p, "sequencialItem")
	item := label + " ítem " + seq
	if _, err := strconv.Atoi(seq); err != nil {
		c.addf("%s: sequencialItem inválido", label)
	}
	if !padrao.DatePattern.MatchString(text(p, "dataExecucao")) {
		c.addf("%s: dataExecucao inválida", item)
	}
	if t := text(p, "procedimento", "codigoTabela"); !padrao.ValidProcedureTables[t] {
		c.addf("%s: codigoTabela %q no reconocida", item, t)
	}
	if code := text(p, "procedimento", "codigoProcedimento"); code == "" || len(code) > padrao.MaxProcedureCode {
		c.addf("%s: codigoProcedimento %q inválido", item, code)
	}
	if len([]rune(text(p, "procedimento", "descricaoProcedimento"))) > padrao.MaxDescription {
		c.addf("%s: descricaoProcedimento excede %d caracteres", item, padrao.MaxDescription)
	}
	qty, err := decimal.NewFromString(text(p, "quantidadeExecutada"))
	if err != nil || !qty.IsPositive() {
		c.addf("%s: quantidadeExecutada inválida", item)
	}
	unit, okUnit := money(text(p, "valorUnitario"))
	total, okTotal := money(text(p, "valorTotal"))
	if !okUnit || !okTotal {
		c.addf("%s: valores con formato inválido", item)
		return decimal.Zero
	}
	if err == nil && !qty.Mul(unit).Round(2).Equal(total) {
		c.addf("%s: valorTotal %s distinto de cantidad × unitario", item, total.StringFixed(2))
	}
	return total
}

func (v *SchemaValidator) validateAppeal(g *etree.Element, c *checker) {
	if g == nil {
		c.addf("recursoGlosa/guiaRecursoGlosa ausente")
		return
	}
	if !padrao.RegistroANSPattern.MatchString(text(g, "registroANS")) {
		c.addf("recurso: registroANS inválido")
	}
	if obj := text(g, "objetoRecurso"); obj != appealObjectGuide && obj != appealObjectItem {
		c.addf("recurso: objetoRecurso %q inválido", obj)
	}
	if text(g, "numeroProtocolo") == "" {
		c.addf("recurso: numeroProtocolo obligatorio")
	}
	if !padrao.BatchNumberPattern.MatchString(text(g, "numeroLote")) {
		c.addf("recurso: numeroLote inválido")
	}
	guide := child(g, "opcaoRecurso", "recursoGuia")
	if guide == nil || text(guide, "numeroGuiaOrigem") == "" {
		c.addf("recurso: numeroGuiaOrigem obligatorio")
	} else {
		justification := text(guide, "justificativaGuia")
		if item := child(guide, "itensGuia"); item != nil {
			justification = text(item, "justificativaItem")
			if text(item, "codGlosaItem") == "" {
				c.addf("recurso: codGlosaItem obligatorio")
			}
		} else if text(guide, "codGlosaGuia") == "" {
			c.addf("recurso: codGlosaGuia obligatorio")
		}
		if justification == "" {
			c.addf("recurso: justificativa obligatoria")
		}
	}
	if amount, ok := money(text(g, "valorTotalRecursado")); !ok || !amount.IsPositive() {
		c.addf("recurso: valorTotalRecursado inválido")
	}
	if !padrao.DatePattern.MatchString(text(g, "dataRecurso")) {
		c.addf("recurso: dataRecurso inválida")
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type checker struct {
	errs []error
}

func (c *checker) add(err error) {
	c.errs = append(c.errs, err)
}

func (c *checker) addf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

func (c *checker) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{domain.ErrProtocol}, c.errs...)...)
}

// checkPrefixes exige el prefijo ans: en todo el árbol salvo la firma ds:Signature.
func checkPrefixes(el *etree.Element, c *checker) {
	for _, ch := range el.ChildElements() {
		if ch.Tag == "Signature" {
			continue
		}
		if ch.Space != padrao.Prefix {
			c.addf("elemento %s sin prefijo %s:", ch.FullTag(), padrao.Prefix)
			continue
		}
		checkPrefixes(ch, c)
	}
}

// child navega por nombre local.
func child(el *etree.Element, path ...string) *etree.Element {
	cur := el
	for _, name := range path {
		if cur == nil {
			return nil
		}
		var next *etree.Element
		for _, ch := range cur.ChildElements() {
			if ch.Tag == name {
				next = ch
				break
			}
		}
		cur = next
	}
	return cur
}

func children(el *etree.Element, name string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, ch := range el.ChildElements() {
		if ch.Tag == name {
			out = append(out, ch)
		}
	}
	return out
}

func text(el *etree.Element, path ...string) string {
	if found := child(el, path...); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

func money(s string) (decimal.Decimal, bool) {
	if !padrao.MoneyPattern.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}
