package claims

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/internal/infrastructure/webservice"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// GuideUseCase ciclo de vida de la guía antes y después del lote.
type GuideUseCase struct {
	d   Deps
	log *logger.Logger
}

// NewGuideUseCase construye el caso de uso.
func NewGuideUseCase(d Deps) *GuideUseCase {
	d = d.withDefaults()
	return &GuideUseCase{d: d, log: d.Log.Component("guide")}
}

// Create crea una guía DRAFT. El plan debe existir, ser de la operadora y estar vigente.
func (uc *GuideUseCase) Create(ctx context.Context, tenantID string, in dto.CreateGuideRequest) (*entity.Guide, error) {
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	now := uc.d.Clock.Now()

	ws, err := uc.d.Operators.GetWebservice(ctx, in.OperatorID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, domain.Validationf("operadora %s sin webservice configurado", in.OperatorID)
	}
	plan, err := uc.d.Operators.GetPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.ValidAt(in.OperatorID, now) {
		return nil, domain.Validationf("plan %s inválido, inactivo o vencido para la operadora %s", in.PlanID, in.OperatorID)
	}

	procedures := make([]entity.Procedure, 0, len(in.Procedures))
	for _, p := range in.Procedures {
		procedures = append(procedures, p.ToEntity())
	}
	if err := entity.ValidateProcedures(procedures); err != nil {
		return nil, err
	}

	g := entity.NewGuide(uuid.NewString(), tenantID, in.OperatorID, in.PlanID, procedures, now)
	g.ClinicID = in.ClinicID
	g.AppointmentID = in.AppointmentID
	g.PatientID = in.PatientID
	g.BeneficiaryCard = in.BeneficiaryCard

	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		return repos.Guides.Create(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("guide_id", g.ID).Str("operator_id", g.OperatorID).Msg("guía creada")
	return g, nil
}

// Get devuelve la guía o ErrNotFound.
func (uc *GuideUseCase) Get(ctx context.Context, tenantID, guideID string) (*entity.Guide, error) {
	return loadGuide(ctx, uc.d.Repos.Guides, tenantID, guideID)
}

// AddProcedure agrega una línea a una guía DRAFT.
func (uc *GuideUseCase) AddProcedure(ctx context.Context, tenantID, guideID string, in dto.ProcedureRequest) (*entity.Guide, error) {
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	return uc.mutate(ctx, tenantID, guideID, func(g *entity.Guide) error {
		return g.AddProcedure(in.ToEntity(), uc.d.Clock.Now())
	})
}

// RemoveProcedure quita la línea con el secuencial dado de una guía DRAFT.
func (uc *GuideUseCase) RemoveProcedure(ctx context.Context, tenantID, guideID string, sequence int) (*entity.Guide, error) {
	return uc.mutate(ctx, tenantID, guideID, func(g *entity.Guide) error {
		return g.RemoveProcedure(sequence, uc.d.Clock.Now())
	})
}

// Finalize asigna el número {prefix}-{seq:08d} y bloquea los procedimientos.
func (uc *GuideUseCase) Finalize(ctx context.Context, tenantID, guideID string) (*entity.Guide, error) {
	current, err := uc.Get(ctx, tenantID, guideID)
	if err != nil {
		return nil, err
	}
	// Falla antes de consumir el consecutivo.
	if current.Status != entity.GuideStatusDraft {
		return nil, domain.InvalidStatef("guía %s en estado %s: solo se finaliza desde DRAFT", guideID, current.Status)
	}
	if len(current.Procedures) == 0 {
		return nil, domain.Validationf("guía %s sin procedimientos", guideID)
	}

	seq, err := uc.d.Sequences.Next(ctx, tenantID, sequenceGuide)
	if err != nil {
		return nil, err
	}
	number := fmt.Sprintf(guideNumberForm, uc.d.Config.GuidePrefix, seq)

	g, err := uc.mutate(ctx, tenantID, guideID, func(g *entity.Guide) error {
		return g.Finalize(number, uc.d.Clock.Now())
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("guide_id", g.ID).Str("number", g.Number).Msg("guía finalizada")
	return g, nil
}

// Cancel cancela la guía. Si la operadora ya la recibió, primero se cancela en el webservice;
// un rechazo de la operadora deja la guía intacta.
func (uc *GuideUseCase) Cancel(ctx context.Context, tenantID, guideID, reason string) (*entity.Guide, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Validationf("motivo de cancelación obligatorio")
	}
	current, err := uc.Get(ctx, tenantID, guideID)
	if err != nil {
		return nil, err
	}
	if current.Status == entity.GuideStatusPaid || current.Status == entity.GuideStatusCancelled {
		return nil, domain.InvalidStatef("guía %s en estado %s: no se puede cancelar", guideID, current.Status)
	}

	if current.SentToOperator() {
		ok, err := uc.d.Gateway.CancelGuide(ctx, current.OperatorID, current.Number, reason)
		if err != nil {
			uc.log.Warn().Err(err).Str("guide_id", guideID).Msg("cancelación en la operadora fallida")
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: la operadora no canceló la guía %s", domain.ErrOperatorRejected, current.Number)
		}
		ctx = context.WithoutCancel(ctx)
	}

	var out *entity.Guide
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		g, err := loadGuide(ctx, repos.Guides, tenantID, guideID)
		if err != nil {
			return err
		}
		now := uc.d.Clock.Now()
		if g.Status == entity.GuideStatusFinalized && g.BatchID != "" {
			b, err := loadBatch(ctx, repos.Batches, tenantID, g.BatchID)
			if err != nil {
				return err
			}
			if b.Status != entity.BatchStatusDraft {
				return domain.InvalidStatef("guía %s pertenece al lote %s en estado %s: revierta el lote antes de cancelar",
					g.ID, b.ID, b.Status)
			}
			if err := b.RemoveGuide(g, now); err != nil {
				return err
			}
			if err := repos.Batches.Update(ctx, b); err != nil {
				return err
			}
		}
		if err := g.Cancel(reason, now); err != nil {
			return err
		}
		if err := repos.Guides.Update(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("guide_id", guideID).Str("reason", reason).Msg("guía cancelada")
	return out, nil
}

// RefreshStatus consulta la situación de la guía en la operadora. No cambia el estado local.
func (uc *GuideUseCase) RefreshStatus(ctx context.Context, tenantID, guideID string) (*webservice.GuideStatus, error) {
	g, err := uc.Get(ctx, tenantID, guideID)
	if err != nil {
		return nil, err
	}
	if !g.SentToOperator() && g.Status != entity.GuideStatusPaid {
		return nil, domain.InvalidStatef("guía %s en estado %s: la operadora aún no la conoce", guideID, g.Status)
	}
	return uc.d.Gateway.QueryGuide(ctx, g.OperatorID, g.Number)
}

// mutate lee, aplica fn y persiste la guía en una transacción.
func (uc *GuideUseCase) mutate(ctx context.Context, tenantID, guideID string, fn func(g *entity.Guide) error) (*entity.Guide, error) {
	var out *entity.Guide
	err := uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		g, err := loadGuide(ctx, repos.Guides, tenantID, guideID)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		if err := repos.Guides.Update(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

// ── Lecturas comunes ──────────────────────────────────────────────────────────

func loadGuide(ctx context.Context, repo repository.GuideRepository, tenantID, id string) (*entity.Guide, error) {
	g, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: guía %s", domain.ErrNotFound, id)
	}
	return g, nil
}

func loadBatch(ctx context.Context, repo repository.BatchRepository, tenantID, id string) (*entity.Batch, error) {
	b, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, id)
	}
	return b, nil
}

func loadGlosa(ctx context.Context, repo repository.GlosaRepository, tenantID, id string) (*entity.Glosa, error) {
	g, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: glosa %s", domain.ErrNotFound, id)
	}
	return g, nil
}

func loadOperator(ctx context.Context, repo repository.OperatorRepository, operatorID string) (*entity.OperatorWebservice, error) {
	ws, err := repo.GetWebservice(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: operadora %s", domain.ErrNotFound, operatorID)
	}
	cfg := ws.WithDefaults()
	return &cfg, nil
}
