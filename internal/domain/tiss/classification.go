// Package tiss contiene reglas de dominio del Padrão TISS aplicadas a guías y glosas.
// Los catálogos y formatos viven en pkg/tiss.
package tiss

import (
	"strings"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// ClassifyRejectionCode clasifica un código de glosa de la operadora por su prefijo:
// "A…" administrativa, "T…" técnica, cualquier otro financiera. El código se compara sin
// espacios y sin distinguir mayúsculas: "a01" y " A01" son administrativas.
//
// Es una heurística simplificada: la Tabela 38 (motivos de glosa) agrupa por rangos
// numéricos y cada operadora publica su propia codificación.
func ClassifyRejectionCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(c, "A"):
		return entity.GlosaAdministrative
	case strings.HasPrefix(c, "T"):
		return entity.GlosaTechnical
	default:
		return entity.GlosaFinancial
	}
}
