package webservice_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/infrastructure/webservice"
)

func TestBearerTokenDecorator(t *testing.T) {
	target := webservice.Target{Operator: &entity.OperatorWebservice{OperatorID: "op-1"}}

	src := webservice.TokenSourceFunc(func(_ context.Context, tg webservice.Target) (string, error) {
		return "tok-" + tg.Operator.OperatorID, nil
	})
	req := httptest.NewRequest("POST", "http://operadora/ws", nil)
	require.NoError(t, webservice.BearerTokenDecorator(src)(req, target))
	assert.Equal(t, "Bearer tok-op-1", req.Header.Get("Authorization"))

	vacio := webservice.TokenSourceFunc(func(context.Context, webservice.Target) (string, error) { return " ", nil })
	assert.Error(t, webservice.BearerTokenDecorator(vacio)(req, target))

	falla := webservice.TokenSourceFunc(func(context.Context, webservice.Target) (string, error) {
		return "", errors.New("idp caído")
	})
	assert.ErrorContains(t, webservice.BearerTokenDecorator(falla)(req, target), "idp caído")
}

func TestBasicAuthDecorator_SinUsuarioNoAgregaCabecera(t *testing.T) {
	req := httptest.NewRequest("POST", "http://operadora/ws", nil)
	target := webservice.Target{Operator: &entity.OperatorWebservice{OperatorID: "op-1"}, Password: "x"}
	require.NoError(t, webservice.BasicAuthDecorator()(req, target))
	assert.Empty(t, req.Header.Get("Authorization"))
}
