package webservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// RequestDecorator ajusta la petición HTTP antes de cada intento (cabeceras, autenticación).
type RequestDecorator func(req *http.Request, t Target) error

// HeadersDecorator copia las cabeceras configuradas en la operadora.
func HeadersDecorator() RequestDecorator {
	return func(req *http.Request, t Target) error {
		for k, v := range t.Operator.Headers {
			req.Header.Set(k, v)
		}
		return nil
	}
}

// BasicAuthDecorator agrega usuario/contraseña cuando la operadora tiene usuario configurado.
func BasicAuthDecorator() RequestDecorator {
	return func(req *http.Request, t Target) error {
		if t.Operator.Username == "" {
			return nil
		}
		req.SetBasicAuth(t.Operator.Username, t.Password)
		return nil
	}
}

// TokenSource entrega un token de acceso para una operadora.
type TokenSource interface {
	Token(ctx context.Context, t Target) (string, error)
}

// TokenSourceFunc adapta una función a TokenSource.
type TokenSourceFunc func(ctx context.Context, t Target) (string, error)

// Token implementa TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context, t Target) (string, error) { return f(ctx, t) }

// BearerTokenDecorator agrega Authorization: Bearer con el token de la fuente.
func BearerTokenDecorator(src TokenSource) RequestDecorator {
	return func(req *http.Request, t Target) error {
		token, err := src.Token(req.Context(), t)
		if err != nil {
			return fmt.Errorf("obtener token: %w", err)
		}
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("token vacío para la operadora %s", t.Operator.OperatorID)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}
