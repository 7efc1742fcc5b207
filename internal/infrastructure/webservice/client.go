package webservice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
	"github.com/jhoicas/claims-engine/pkg/logger"
	"golang.org/x/time/rate"
)

// Nombres de adaptador registrados por defecto.
const (
	AdapterSOAP    = "soap"
	AdapterSandbox = "sandbox"
)

// Decrypter descifra la contraseña almacenada de la operadora.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// RetryObserver recibe cada reintento programado: intento fallido (desde 1), espera y causa.
type RetryObserver func(operator, operation string, attempt int, delay time.Duration, err error)

// Client cliente del webservice de operadoras: resuelve la configuración, elige el adaptador y
// aplica timeout por intento, reintentos con backoff exponencial y rate limit por operadora.
type Client struct {
	operators  repository.OperatorRepository
	adapters   map[string]OperatorAdapter
	sandbox    map[string]bool
	sandboxAll bool
	decrypter  Decrypter
	metrics    *metrics.Metrics
	observer   RetryObserver
	log        *logger.Logger
	fallback   entity.OperatorWebservice

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configura el Client.
type Option func(*Client)

// WithAdapter registra un adaptador bajo name (OperatorWebservice.Adapter lo selecciona).
func WithAdapter(name string, a OperatorAdapter) Option {
	return func(c *Client) { c.adapters[name] = a }
}

// WithSandbox enruta las operadoras dadas al adaptador sandbox; sin argumentos, todas.
func WithSandbox(operatorIDs ...string) Option {
	return func(c *Client) {
		if len(operatorIDs) == 0 {
			c.sandboxAll = true
		}
		for _, id := range operatorIDs {
			c.sandbox[id] = true
		}
	}
}

// WithDecrypter fija el descifrador de contraseñas. Sin él la contraseña se usa tal cual.
func WithDecrypter(d Decrypter) Option {
	return func(c *Client) { c.decrypter = d }
}

// WithMetrics fija los colectores Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryObserver fija el observador de reintentos.
func WithRetryObserver(o RetryObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithDefaultPolicy fija timeout, intentos y base de backoff para operadoras sin configuración propia.
func WithDefaultPolicy(timeout time.Duration, attempts int, backoffBase time.Duration) Option {
	return func(c *Client) {
		c.fallback.Timeout = timeout
		c.fallback.RetryAttempts = attempts
		c.fallback.BackoffBase = backoffBase
	}
}

// NewClient construye el cliente con defaultAdapter como estrategia SOAP estándar.
func NewClient(operators repository.OperatorRepository, defaultAdapter OperatorAdapter, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		operators: operators,
		adapters:  map[string]OperatorAdapter{"": defaultAdapter, AdapterSOAP: defaultAdapter},
		sandbox:   make(map[string]bool),
		log:       log.Component("webservice"),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := c.adapters[AdapterSandbox]; !ok {
		c.adapters[AdapterSandbox] = NewSandboxAdapter()
	}
	return c
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// Send entrega el XML de un lote a la operadora.
func (c *Client) Send(ctx context.Context, operatorID string, payload []byte) (*TransmissionResult, error) {
	return call(ctx, c, operatorID, OpSend, func(ctx context.Context, a OperatorAdapter, t Target) (*TransmissionResult, error) {
		return a.Send(ctx, t, payload)
	})
}

// Query consulta el estado de un protocolo.
func (c *Client) Query(ctx context.Context, operatorID, protocolNumber string) (*ProtocolStatus, error) {
	return call(ctx, c, operatorID, OpQuery, func(ctx context.Context, a OperatorAdapter, t Target) (*ProtocolStatus, error) {
		return a.Query(ctx, t, protocolNumber)
	})
}

// QueryGuide consulta el estado de una guía.
func (c *Client) QueryGuide(ctx context.Context, operatorID, guideNumber string) (*GuideStatus, error) {
	return call(ctx, c, operatorID, OpQueryGuide, func(ctx context.Context, a OperatorAdapter, t Target) (*GuideStatus, error) {
		return a.QueryGuide(ctx, t, guideNumber)
	})
}

// CancelGuide solicita la cancelación de una guía enviada.
func (c *Client) CancelGuide(ctx context.Context, operatorID, guideNumber, reason string) (bool, error) {
	return call(ctx, c, operatorID, OpCancelGuide, func(ctx context.Context, a OperatorAdapter, t Target) (bool, error) {
		return a.CancelGuide(ctx, t, guideNumber, reason)
	})
}

// SubmitAppeal entrega el XML de un recurso de glosa.
func (c *Client) SubmitAppeal(ctx context.Context, operatorID string, payload []byte) (*AppealResult, error) {
	return call(ctx, c, operatorID, OpSubmitAppeal, func(ctx context.Context, a OperatorAdapter, t Target) (*AppealResult, error) {
		return a.SubmitAppeal(ctx, t, payload)
	})
}

// ── Reintentos ────────────────────────────────────────────────────────────────

type attemptFunc[T any] func(ctx context.Context, a OperatorAdapter, t Target) (T, error)

// call ejecuta fn hasta RetryAttempts veces. Esperas: base, 2·base, 4·base...
// Los errores no reintentables y la cancelación del contexto cortan de inmediato;
// agotar los intentos devuelve *domain.TransmissionFailedError con la última causa.
func call[T any](ctx context.Context, c *Client, operatorID, operation string, fn attemptFunc[T]) (T, error) {
	var zero T
	op, adapter, target, err := c.resolve(ctx, operatorID, operation)
	if err != nil {
		return zero, err
	}
	limiter := c.limiter(op)

	b := &backoff.ExponentialBackOff{
		InitialInterval:     op.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         op.BackoffBase << 20,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(op.RetryAttempts-1)), ctx)

	attempts := 0
	var lastErr error
	attempt := func() (T, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, op.Timeout)
		defer cancel()

		start := time.Now()
		res, err := fn(attemptCtx, adapter, target)
		elapsed := time.Since(start)
		if err == nil {
			c.metrics.ObserveAttempt(op.OperatorID, operation, metrics.OutcomeOK, elapsed)
			return res, nil
		}
		if ctx.Err() != nil {
			c.metrics.ObserveAttempt(op.OperatorID, operation, metrics.OutcomeCancelled, elapsed)
			return zero, backoff.Permanent(ctx.Err())
		}
		werr := normalize(err, operation, op.OperatorID)
		lastErr = werr
		if !werr.Retryable {
			c.metrics.ObserveAttempt(op.OperatorID, operation, metrics.OutcomeTerminal, elapsed)
			return zero, backoff.Permanent(werr)
		}
		c.metrics.ObserveAttempt(op.OperatorID, operation, metrics.OutcomeRetryable, elapsed)
		return zero, werr
	}
	notify := func(err error, delay time.Duration) {
		c.log.Warn().
			Str("operator", op.OperatorID).
			Str("operation", operation).
			Int("attempt", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("reintentando llamada al webservice")
		if c.observer != nil {
			c.observer(op.OperatorID, operation, attempts, delay, err)
		}
	}

	res, err := backoff.RetryNotifyWithData(attempt, policy, notify)
	if err == nil {
		return res, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return zero, fmt.Errorf("webservice %s operadora %s cancelado tras %d intento(s): %w", operation, op.OperatorID, attempts, cerr)
	}
	if IsRetryable(err) {
		c.metrics.IncExhausted(op.OperatorID, operation)
		c.log.Error().
			Str("operator", op.OperatorID).
			Str("operation", operation).
			Int("attempts", attempts).
			Err(lastErr).
			Msg("reintentos agotados")
		return zero, &domain.TransmissionFailedError{
			Operation: operation,
			Operator:  op.OperatorID,
			Attempts:  attempts,
			Cause:     lastErr,
		}
	}
	return zero, err
}

// normalize lleva cualquier error del adaptador a *Error.
func normalize(err error, operation, operatorID string) *Error {
	var werr *Error
	if !errors.As(err, &werr) {
		if errors.Is(err, context.DeadlineExceeded) {
			werr = NewError(KindTimeout, operation, "timeout", err)
		} else {
			werr = NewError(KindConnection, operation, "falla del adaptador", err)
		}
	}
	if werr.Operator == "" {
		werr.Operator = operatorID
	}
	if werr.Operation == "" {
		werr.Operation = operation
	}
	return werr
}

// ── Resolución ────────────────────────────────────────────────────────────────

func (c *Client) resolve(ctx context.Context, operatorID, operation string) (*entity.OperatorWebservice, OperatorAdapter, Target, error) {
	cfg, err := c.operators.GetWebservice(ctx, operatorID)
	if err != nil {
		return nil, nil, Target{}, fmt.Errorf("cargar webservice de la operadora %s: %w", operatorID, err)
	}
	if cfg == nil {
		return nil, nil, Target{}, fmt.Errorf("%w: webservice de la operadora %s", domain.ErrNotFound, operatorID)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = c.fallback.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = c.fallback.RetryAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = c.fallback.BackoffBase
	}
	op := cfg.WithDefaults()

	name := op.Adapter
	if c.sandboxAll || c.sandbox[op.OperatorID] {
		name = AdapterSandbox
	}
	adapter, ok := c.adapters[name]
	if !ok || adapter == nil {
		return nil, nil, Target{}, domain.Validationf("adaptador %q no registrado para la operadora %s", name, op.OperatorID)
	}

	password := op.EncryptedPassword
	if c.decrypter != nil && password != "" {
		password, err = c.decrypter.Decrypt(op.EncryptedPassword)
		if err != nil {
			werr := NewError(KindAuth, operation, "descifrar contraseña", err)
			werr.Operator = op.OperatorID
			return nil, nil, Target{}, werr
		}
	}
	return &op, adapter, Target{Operator: &op, Password: password}, nil
}

// limiter devuelve el limitador de la operadora (nil si RateLimit es 0).
func (c *Client) limiter(op *entity.OperatorWebservice) *rate.Limiter {
	if op.RateLimit <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[op.OperatorID]
	if !ok || float64(l.Limit()) != op.RateLimit {
		burst := int(math.Max(1, math.Floor(op.RateLimit)))
		l = rate.NewLimiter(rate.Limit(op.RateLimit), burst)
		c.limiters[op.OperatorID] = l
	}
	return l
}
