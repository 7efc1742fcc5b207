package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/internal/infrastructure/memory"
)

var ahora = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func guia(id string) *entity.Guide {
	return entity.NewGuide(id, "t-1", "op-1", "plan-1", []entity.Procedure{{
		Code: "10101012", Quantity: decimal.NewFromInt(1), UnitValue: decimal.NewFromInt(100),
	}}, ahora)
}

func TestGuideRepo_ControlOptimista(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewGuideRepository(memory.NewStore())

	g := guia("g-1")
	require.NoError(t, repo.Create(ctx, g))
	assert.Equal(t, 1, g.Version)

	a, err := repo.GetByID(ctx, "t-1", "g-1")
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, "t-1", "g-1")
	require.NoError(t, err)

	require.NoError(t, a.Finalize("GUIA-00000001", ahora))
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, 2, a.Version)

	require.NoError(t, b.Cancel("duplicada", ahora))
	err = repo.Update(ctx, b)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "la versión vieja se reporta como estado inválido")

	stored, err := repo.GetByID(ctx, "t-1", "g-1")
	require.NoError(t, err)
	assert.Equal(t, entity.GuideStatusFinalized, stored.Status, "la escritura perdedora no cambia nada")
}

func TestGuideRepo_AislamientoPorTenantYCopias(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewGuideRepository(memory.NewStore())
	g := guia("g-1")
	require.NoError(t, repo.Create(ctx, g))

	otro, err := repo.GetByID(ctx, "t-2", "g-1")
	require.NoError(t, err)
	assert.Nil(t, otro, "otro tenant no ve la guía")

	g.Procedures[0].Code = "MUTADO"
	leida, err := repo.GetByID(ctx, "t-1", "g-1")
	require.NoError(t, err)
	assert.Equal(t, "10101012", leida.Procedures[0].Code, "el almacén guarda copias")
}

func TestTxRunner_RollbackRestauraEstado(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	tx := memory.NewTxRunner(store)

	falla := errors.New("falla en medio")
	err := tx.Run(ctx, func(r repository.Set) error {
		if err := r.Guides.Create(ctx, guia("g-1")); err != nil {
			return err
		}
		b := entity.NewBatch("b-1", "t-1", "c-1", "op-1", "1", ahora)
		if err := r.Batches.Create(ctx, b); err != nil {
			return err
		}
		return falla
	})
	assert.ErrorIs(t, err, falla)

	g, _ := store.Repositories().Guides.GetByID(ctx, "t-1", "g-1")
	b, _ := store.Repositories().Batches.GetByID(ctx, "t-1", "b-1")
	assert.Nil(t, g)
	assert.Nil(t, b)

	require.NoError(t, tx.Run(ctx, func(r repository.Set) error {
		return r.Guides.Create(ctx, guia("g-2"))
	}))
	g, _ = store.Repositories().Guides.GetByID(ctx, "t-1", "g-2")
	assert.NotNil(t, g)
}

func TestSequenceRepo_ConsecutivoPorTenant(t *testing.T) {
	ctx := context.Background()
	seq := memory.NewSequenceRepository(memory.NewStore())
	n1, _ := seq.Next(ctx, "t-1", "guide")
	n2, _ := seq.Next(ctx, "t-1", "guide")
	m1, _ := seq.Next(ctx, "t-2", "guide")
	assert.Equal(t, int64(1), n1)
	assert.Equal(t, int64(2), n2)
	assert.Equal(t, int64(1), m1)
}

func TestGlosaRepo_ListDeadlineBefore(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewGlosaRepository(memory.NewStore())

	nueva := func(id string, deadline time.Time) *entity.Glosa {
		g, err := entity.NewGlosa(entity.Glosa{
			ID: id, TenantID: "t-1", GuideID: "g-1", Code: "A01",
			RejectedAmount: decimal.NewFromInt(10), OriginalAmount: decimal.NewFromInt(100),
			AppealDeadline: deadline,
		}, ahora)
		require.NoError(t, err)
		return g
	}
	pronto := nueva("gl-1", ahora.Add(24*time.Hour))
	tarde := nueva("gl-2", ahora.Add(30*24*time.Hour))
	aceptada := nueva("gl-3", ahora.Add(time.Hour))
	require.NoError(t, aceptada.Accept(ahora))
	for _, g := range []*entity.Glosa{pronto, tarde, aceptada} {
		require.NoError(t, repo.Create(ctx, g))
	}

	out, err := repo.ListDeadlineBefore(ctx, "t-1", ahora.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "gl-1", out[0].ID)

	tenants, err := repo.ListOpenTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, tenants)
}

func TestKeyedLocker_SerializaPorClave(t *testing.T) {
	l := memory.NewKeyedLocker()
	ctx := context.Background()

	var dentro, maximo atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "batch:b-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := dentro.Add(1)
			for {
				m := maximo.Load()
				if n <= m || maximo.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			dentro.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maximo.Load(), "nunca dos dueños a la vez")

	otra, err := l.Lock(ctx, "batch:b-2")
	require.NoError(t, err)
	otra()
	otra()
}

func TestKeyedLocker_RespetaContexto(t *testing.T) {
	l := memory.NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "glosa:gl-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "glosa:gl-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
