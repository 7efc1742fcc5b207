// Package tiss contiene catálogos y reglas del Padrão TISS (ANS, Brasil) usados por el
// codec y las validaciones de dominio. Versión de referencia: 4.02.00.
package tiss

import "regexp"

// Versión del padrão y namespace oficial de los schemas ANS.
const (
	Version   = "4.02.00"
	Namespace = "http://www.ans.gov.br/padroes/tiss/schemas"
	Prefix    = "ans"
)

// =============================================================================
// Tipos de transacción (tipoTransacao) usados por el motor.
// =============================================================================

const (
	TransactionSendBatch       = "ENVIO_LOTE_GUIAS"
	TransactionBatchStatus     = "SOLICITACAO_STATUS_PROTOCOLO"
	TransactionGuideStatus     = "SOLIC_STATUS_AUTORIZACAO"
	TransactionCancelGuide     = "CANCELA_GUIA"
	TransactionAppeal          = "RECURSO_GLOSA"
	TransactionAnalysisReport  = "DEMONSTRATIVO_ANALISE_CONTA"
	TransactionBatchReceipt    = "PROTOCOLO_RECEBIMENTO"
	TransactionAppealReceipt   = "PROTOCOLO_RECEBIMENTO_RECURSO"
	TransactionCancelReceipt   = "CANCELAMENTO_GUIA_RECIBO"
	TransactionGuideStatusResp = "SITUACAO_AUTORIZACAO"
)

// =============================================================================
// Tabla 87 - Terminologia de tabelas (códigos de tabla de procedimientos).
// =============================================================================

const (
	TableTUSSProcedures = "22" // Procedimentos e eventos em saúde (TUSS)
	TableTUSSMaterials  = "19" // Materiais e OPME
	TableTUSSDrugs      = "20" // Medicamentos
	TableTUSSFees       = "18" // Diárias, taxas e gases medicinais
	TableOwnOperator    = "98" // Tabela própria das operadoras
	TableOwnPackages    = "90" // Tabela própria pacote odontológico
	TableOther          = "00" // Tabela própria
)

// ValidProcedureTables tablas aceptadas en procedimentoExecutado/codigoTabela.
var ValidProcedureTables = map[string]bool{
	TableTUSSProcedures: true,
	TableTUSSMaterials:  true,
	TableTUSSDrugs:      true,
	TableTUSSFees:       true,
	TableOwnOperator:    true,
	TableOwnPackages:    true,
	TableOther:          true,
}

// =============================================================================
// Restricciones de formato (tipos simples del schema tissSimpleTypes).
// =============================================================================

var (
	// st_registroANS: 6 dígitos.
	RegistroANSPattern = regexp.MustCompile(`^[0-9]{6}$`)

	// st_data: AAAA-MM-DD.
	DatePattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

	// st_hora: HH:MM:SS.
	TimePattern = regexp.MustCompile(`^[0-9]{2}:[0-9]{2}:[0-9]{2}$`)

	// st_decimal10-2 (valores monetarios con punto decimal).
	MoneyPattern = regexp.MustCompile(`^-?[0-9]{1,8}\.[0-9]{2}$`)

	// st_numerico12 para numeroLote.
	BatchNumberPattern = regexp.MustCompile(`^[0-9]{1,12}$`)
)

// Longitudes máximas (st_texto*).
const (
	MaxGuideNumber    = 20
	MaxCardNumber     = 20
	MaxProcedureCode  = 10
	MaxDescription    = 150
	MaxProviderCode   = 14
	MaxJustification  = 500
	MaxGlosaCode      = 4
	MaxProtocolNumber = 12
)
