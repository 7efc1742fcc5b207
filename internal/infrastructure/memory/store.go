// Package memory implementa los repositorios en memoria: fakes de pruebas y modo de
// desarrollo sin base de datos. Cada entidad se guarda como copia; el llamador nunca comparte
// punteros con el almacén.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

// Store estado compartido por todos los repositorios en memoria.
type Store struct {
	mu        sync.RWMutex
	guides    map[string]*entity.Guide
	batches   map[string]*entity.Batch
	glosas    map[string]*entity.Glosa
	recursos  map[string]*entity.Recurso
	sequences map[string]int64
	operators map[string]*entity.OperatorWebservice
	plans     map[string]*entity.Plan

	txMu sync.Mutex
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		guides:    make(map[string]*entity.Guide),
		batches:   make(map[string]*entity.Batch),
		glosas:    make(map[string]*entity.Glosa),
		recursos:  make(map[string]*entity.Recurso),
		sequences: make(map[string]int64),
		operators: make(map[string]*entity.OperatorWebservice),
		plans:     make(map[string]*entity.Plan),
	}
}

// Repositories devuelve el conjunto de repositorios sobre este almacén.
func (s *Store) Repositories() repository.Set {
	return repository.Set{
		Guides:   &GuideRepo{s: s},
		Batches:  &BatchRepo{s: s},
		Glosas:   &GlosaRepo{s: s},
		Recursos: &RecursoRepo{s: s},
	}
}

// ── Transacciones ─────────────────────────────────────────────────────────────

var _ repository.TxRunner = (*TxRunner)(nil)

// TxRunner serializa las transacciones y restaura el estado previo si fn falla.
// Las escrituras hechas fuera de Run no quedan aisladas de un rollback concurrente.
type TxRunner struct {
	s *Store
}

// NewTxRunner construye el runner sobre el almacén.
func NewTxRunner(s *Store) *TxRunner {
	return &TxRunner{s: s}
}

// Run ejecuta fn con los repositorios del almacén.
func (r *TxRunner) Run(ctx context.Context, fn func(repos repository.Set) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	snap := r.s.snapshot()
	if err := fn(r.s.Repositories()); err != nil {
		r.s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	guides    map[string]*entity.Guide
	batches   map[string]*entity.Batch
	glosas    map[string]*entity.Glosa
	recursos  map[string]*entity.Recurso
	sequences map[string]int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		guides:    make(map[string]*entity.Guide, len(s.guides)),
		batches:   make(map[string]*entity.Batch, len(s.batches)),
		glosas:    make(map[string]*entity.Glosa, len(s.glosas)),
		recursos:  make(map[string]*entity.Recurso, len(s.recursos)),
		sequences: make(map[string]int64, len(s.sequences)),
	}
	for k, v := range s.guides {
		snap.guides[k] = cloneGuide(v)
	}
	for k, v := range s.batches {
		snap.batches[k] = cloneBatch(v)
	}
	for k, v := range s.glosas {
		snap.glosas[k] = cloneGlosa(v)
	}
	for k, v := range s.recursos {
		snap.recursos[k] = cloneRecurso(v)
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guides = snap.guides
	s.batches = snap.batches
	s.glosas = snap.glosas
	s.recursos = snap.recursos
	s.sequences = snap.sequences
}

// ── Copias ────────────────────────────────────────────────────────────────────

func cloneGuide(g *entity.Guide) *entity.Guide {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Procedures = append([]entity.Procedure(nil), g.Procedures...)
	cp.FinalizedAt = clonePtr(g.FinalizedAt)
	cp.SubmittedAt = clonePtr(g.SubmittedAt)
	return &cp
}

func cloneBatch(b *entity.Batch) *entity.Batch {
	if b == nil {
		return nil
	}
	cp := *b
	cp.GuideIDs = append([]string(nil), b.GuideIDs...)
	cp.SubmittedAt = clonePtr(b.SubmittedAt)
	cp.RespondedAt = clonePtr(b.RespondedAt)
	cp.PaidAt = clonePtr(b.PaidAt)
	return &cp
}

func cloneGlosa(g *entity.Glosa) *entity.Glosa {
	if g == nil {
		return nil
	}
	cp := *g
	if g.ItemSequence != nil {
		seq := *g.ItemSequence
		cp.ItemSequence = &seq
	}
	return &cp
}

func cloneRecurso(r *entity.Recurso) *entity.Recurso {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Attachments = append([]string(nil), r.Attachments...)
	cp.ResponseDate = clonePtr(r.ResponseDate)
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	if r.ApprovedAmount != nil {
		amt := *r.ApprovedAmount
		cp.ApprovedAmount = &amt
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// checkVersion aplica el control optimista común a todos los Update.
func checkVersion(kind, id string, stored, incoming int) error {
	if stored != incoming {
		return fmt.Errorf("%w: %s %s versión %d, almacenada %d", domain.ErrConcurrentUpdate, kind, id, incoming, stored)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
}

func duplicated(kind, id string) error {
	return domain.InvalidStatef("%s %s ya existe", kind, id)
}
