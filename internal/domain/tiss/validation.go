package tiss

import (
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/pkg/tiss"

	"github.com/shopspring/decimal"
)

// ErrInvalidGuide agrupa errores de validación de guía antes de generar el lote.
var ErrInvalidGuide = fmt.Errorf("%w: guía inválida para TISS", domain.ErrProtocol)

// ErrInvalidOperator agrupa errores de configuración de la operadora.
var ErrInvalidOperator = fmt.Errorf("%w: configuración de operadora inválida para TISS", domain.ErrProtocol)

// ValidateGuide valida una guía FINALIZED contra las restricciones de formato TISS y
// comprueba que el total coincida con la suma de procedimientos.
func ValidateGuide(guide *entity.Guide) error {
	if guide == nil {
		return fmt.Errorf("%w: guía nula", ErrInvalidGuide)
	}
	var errs []error

	if guide.Number == "" {
		errs = append(errs, fmt.Errorf("guía %s sin número", guide.ID))
	} else if len(guide.Number) > tiss.MaxGuideNumber {
		errs = append(errs, fmt.Errorf("número de guía %q excede %d caracteres", guide.Number, tiss.MaxGuideNumber))
	}
	if len(guide.BeneficiaryCard) > tiss.MaxCardNumber {
		errs = append(errs, fmt.Errorf("cartera del beneficiario excede %d caracteres", tiss.MaxCardNumber))
	}

	if len(guide.Procedures) == 0 {
		errs = append(errs, fmt.Errorf("guía %s sin procedimientos", guide.Number))
	} else {
		var sum decimal.Decimal
		seen := make(map[int]bool, len(guide.Procedures))
		for _, p := range guide.Procedures {
			if seen[p.Sequence] {
				errs = append(errs, fmt.Errorf("secuencial %d repetido", p.Sequence))
			}
			seen[p.Sequence] = true
			if !tiss.ValidProcedureTables[p.Table] {
				errs = append(errs, fmt.Errorf("procedimiento %d: tabla %q no reconocida", p.Sequence, p.Table))
			}
			if p.Code == "" || len(p.Code) > tiss.MaxProcedureCode {
				errs = append(errs, fmt.Errorf("procedimiento %d: código %q inválido", p.Sequence, p.Code))
			}
			if len(p.Description) > tiss.MaxDescription {
				errs = append(errs, fmt.Errorf("procedimiento %d: descripción excede %d caracteres", p.Sequence, tiss.MaxDescription))
			}
			if !p.Quantity.IsPositive() {
				errs = append(errs, fmt.Errorf("procedimiento %d: cantidad debe ser positiva", p.Sequence))
			}
			sum = sum.Add(p.Total())
		}
		if !guide.TotalAmount.Equal(sum.Round(2)) {
			errs = append(errs, fmt.Errorf("total (%s) no coincide con la suma de procedimientos (%s)",
				guide.TotalAmount.StringFixed(2), sum.Round(2).StringFixed(2)))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidGuide}, errs...)...)
	}
	return nil
}

// ValidateOperator valida los datos de la operadora que viajan en el cabeçalho.
func ValidateOperator(ws *entity.OperatorWebservice) error {
	if ws == nil {
		return fmt.Errorf("%w: operadora nula", ErrInvalidOperator)
	}
	var errs []error
	if !tiss.RegistroANSPattern.MatchString(ws.ANSRegistry) {
		errs = append(errs, fmt.Errorf("registro ANS %q debe tener 6 dígitos", ws.ANSRegistry))
	}
	if ws.ProviderCode == "" || len(ws.ProviderCode) > tiss.MaxProviderCode {
		errs = append(errs, fmt.Errorf("código del prestador %q inválido", ws.ProviderCode))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidOperator}, errs...)...)
	}
	return nil
}

// AppealDeadline calcula el plazo para presentar recurso a partir de la fecha de la glosa.
func AppealDeadline(rejectionDate time.Time, windowDays int) time.Time {
	if windowDays <= 0 {
		windowDays = entity.DefaultAppealWindowDays
	}
	return rejectionDate.AddDate(0, 0, windowDays)
}
