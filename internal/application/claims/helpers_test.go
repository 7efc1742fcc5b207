package claims_test

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/application/claims"
	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/infrastructure/memory"
	"github.com/jhoicas/claims-engine/internal/infrastructure/notification"
	"github.com/jhoicas/claims-engine/internal/infrastructure/storage"
	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/internal/infrastructure/webservice"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

const tenant = "t-1"

var (
	ahora      = time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC)
	fechaGlosa = time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
)

// gatewayFalso simula la operadora con fallas y demoras controladas.
type gatewayFalso struct {
	mu        sync.Mutex
	sends     int
	appeals   int
	cancels   int
	sendErr   error
	appealErr error
	cancelOK  bool
	delay     time.Duration
	enCurso   chan struct{} // si no es nil, avisa cuando una llamada empieza a esperar
}

func (g *gatewayFalso) esperar() {
	if g.enCurso != nil {
		select {
		case g.enCurso <- struct{}{}:
		default:
		}
	}
	time.Sleep(g.delay)
}

func (g *gatewayFalso) Send(ctx context.Context, operatorID string, payload []byte) (*webservice.TransmissionResult, error) {
	g.esperar()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.sends++
	return &webservice.TransmissionResult{ProtocolNumber: fmt.Sprintf("PRT-%03d", g.sends), ReceivedAt: ahora, Status: webservice.StatusAccepted}, nil
}

func (g *gatewayFalso) Query(ctx context.Context, operatorID, protocolNumber string) (*webservice.ProtocolStatus, error) {
	return &webservice.ProtocolStatus{ProtocolNumber: protocolNumber, Status: "1"}, nil
}

func (g *gatewayFalso) QueryGuide(ctx context.Context, operatorID, guideNumber string) (*webservice.GuideStatus, error) {
	return &webservice.GuideStatus{GuideNumber: guideNumber, Status: "1"}, nil
}

func (g *gatewayFalso) CancelGuide(ctx context.Context, operatorID, guideNumber, reason string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
	return g.cancelOK, nil
}

func (g *gatewayFalso) SubmitAppeal(ctx context.Context, operatorID string, payload []byte) (*webservice.AppealResult, error) {
	g.esperar()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.appealErr != nil {
		return nil, g.appealErr
	}
	g.appeals++
	return &webservice.AppealResult{ProtocolNumber: fmt.Sprintf("REC-%03d", g.appeals), ReceivedAt: ahora}, nil
}

func (g *gatewayFalso) enviados() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sends, g.appeals
}

type entorno struct {
	store    *memory.Store
	ops      *memory.OperatorRepo
	gw       *gatewayFalso
	codec    *tiss.Codec
	sink     *notification.BoundedStore
	anexos   *storage.MemoryStore
	guides   *claims.GuideUseCase
	batches  *claims.BatchUseCase
	glosas   *claims.GlosaUseCase
	recursos *claims.RecursoUseCase
	monitor  *claims.DeadlineMonitor
}

func operadora() entity.OperatorWebservice {
	return entity.OperatorWebservice{
		OperatorID:   "op-1",
		Name:         "Operadora Saúde",
		ANSRegistry:  "345678",
		ProviderCode: "PRE0001",
		Endpoint:     "https://ws.operadora.test/tiss",
	}
}

func nuevoEntorno(t *testing.T) *entorno {
	t.Helper()
	store := memory.NewStore()
	ops := memory.NewOperatorRepository(store)
	ops.PutWebservice(operadora())
	ops.PutPlan(entity.Plan{ID: "plan-1", OperatorID: "op-1", Name: "Plano Ouro", Active: true})

	e := &entorno{
		store:  store,
		ops:    ops,
		gw:     &gatewayFalso{cancelOK: true},
		codec:  tiss.NewCodec(nil, tls.Certificate{}),
		sink:   notification.NewBoundedStore(50),
		anexos: storage.NewMemoryStore(),
	}
	d := claims.Deps{
		Tx:          memory.NewTxRunner(store),
		Repos:       store.Repositories(),
		Operators:   ops,
		Sequences:   memory.NewSequenceRepository(store),
		Gateway:     e.gw,
		Codec:       e.codec,
		Locker:      memory.NewKeyedLocker(),
		Notifier:    e.sink,
		Attachments: e.anexos,
		Clock:       claims.ClockFunc(func() time.Time { return ahora }),
		Log:         logger.Nop(),
	}
	e.guides = claims.NewGuideUseCase(d)
	e.batches = claims.NewBatchUseCase(d, nil)
	e.glosas = claims.NewGlosaUseCase(d)
	e.recursos = claims.NewRecursoUseCase(d)
	e.monitor = claims.NewDeadlineMonitor(d)
	return e
}

func procedimiento(code, valor string) dto.ProcedureRequest {
	return dto.ProcedureRequest{
		Code:        code,
		Description: "Consulta em consultório",
		Quantity:    decimal.NewFromInt(1),
		UnitValue:   decimal.RequireFromString(valor),
		ExecutedAt:  ahora,
	}
}

func solicitudGuia(procs ...dto.ProcedureRequest) dto.CreateGuideRequest {
	return dto.CreateGuideRequest{
		ClinicID:        "c-1",
		AppointmentID:   "cita-1",
		PatientID:       "pac-1",
		BeneficiaryCard: "0009988776",
		OperatorID:      "op-1",
		PlanID:          "plan-1",
		Procedures:      procs,
	}
}

// guiaFinalizada crea y finaliza una guía con un procedimiento por valor.
func (e *entorno) guiaFinalizada(t *testing.T, valores ...string) *entity.Guide {
	t.Helper()
	var procs []dto.ProcedureRequest
	for i, v := range valores {
		procs = append(procs, procedimiento(fmt.Sprintf("1010101%d", i), v))
	}
	g, err := e.guides.Create(context.Background(), tenant, solicitudGuia(procs...))
	require.NoError(t, err)
	g, err = e.guides.Finalize(context.Background(), tenant, g.ID)
	require.NoError(t, err)
	return g
}

// loteListo lote READY_TO_SEND con las guías dadas.
func (e *entorno) loteListo(t *testing.T, guides ...*entity.Guide) *entity.Batch {
	t.Helper()
	ctx := context.Background()
	b, err := e.batches.Create(ctx, tenant, dto.CreateBatchRequest{OperatorID: "op-1", ClinicID: "c-1"})
	require.NoError(t, err)
	for _, g := range guides {
		b, err = e.batches.AddGuide(ctx, tenant, b.ID, g.ID)
		require.NoError(t, err)
	}
	b, err = e.batches.GenerateXML(ctx, tenant, b.ID)
	require.NoError(t, err)
	return b
}

// loteEnviado guía 1 de 100.00 y guía 2 de 200.00 en un lote SUBMITTED.
func (e *entorno) loteEnviado(t *testing.T) (*entity.Batch, *entity.Guide, *entity.Guide) {
	t.Helper()
	g1 := e.guiaFinalizada(t, "100.00")
	g2 := e.guiaFinalizada(t, "200.00")
	b := e.loteListo(t, g1, g2)
	b, err := e.batches.Submit(context.Background(), tenant, b.ID)
	require.NoError(t, err)
	return b, g1, g2
}

// demonstrativo simula el DEMONSTRATIVO_ANALISE_CONTA de la operadora.
func (e *entorno) demonstrativo(t *testing.T, b *entity.Batch, guides ...tiss.GuideAnalysis) []byte {
	t.Helper()
	op := operadora().WithDefaults()
	raw, err := e.codec.Builder().BuildAnalysis(&tiss.AnalysisReport{
		ReportNumber:   "DEM-1",
		BatchNumber:    b.Number,
		ProtocolNumber: b.ProtocolNumber,
		Guides:         guides,
	}, &op, ahora)
	require.NoError(t, err)
	return raw
}

func aprobada(g *entity.Guide) tiss.GuideAnalysis {
	return tiss.GuideAnalysis{GuideNumber: g.Number, Informed: g.TotalAmount, Released: g.TotalAmount, Rejected: decimal.Zero}
}

func conGlosa(g *entity.Guide, code string, item int, monto string) tiss.GuideAnalysis {
	rejected := decimal.RequireFromString(monto)
	fecha := fechaGlosa
	return tiss.GuideAnalysis{
		GuideNumber: g.Number,
		Informed:    g.TotalAmount,
		Released:    g.TotalAmount.Sub(rejected),
		Rejected:    rejected,
		Glosas: []tiss.GlosaEntry{{
			GuideNumber:    g.Number,
			ItemSequence:   &item,
			RejectedAmount: rejected,
			Code:           code,
			Description:    "Procedimento sem autorização prévia",
			Date:           &fecha,
		}},
	}
}

// loteConGlosa lote procesado: guía 1 aprobada, guía 2 con glosa T15 de 50.00.
func (e *entorno) loteConGlosa(t *testing.T) (*claims.ProcessResult, *entity.Guide, *entity.Guide) {
	t.Helper()
	b, g1, g2 := e.loteEnviado(t)
	res, err := e.batches.ProcessResponse(context.Background(), tenant, b.ID,
		e.demonstrativo(t, b, aprobada(g1), conGlosa(g2, "T15", 1, "50.00")))
	require.NoError(t, err)
	require.Len(t, res.Glosas, 1)
	return res, g1, g2
}

func notificaciones(e *entorno, kind string) []entity.Notification {
	var out []entity.Notification
	for _, n := range e.sink.List(tenant, 100) {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
