package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/application/dto"
	apphttp "github.com/jhoicas/claims-engine/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/claims-engine/pkg/jwt"
)

// ── Helpers ──

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testTenantID  = "00000000-0000-0000-0000-000000000002"
	testClinicID  = "00000000-0000-0000-0000-000000000003"
	testIssuer    = "claims-engine-test"
	testExpMin    = 60
)

// politicaApp monta las dos políticas del router: lectura para los tres roles y
// escritura solo para admin y faturista.
func politicaApp() *fiber.App {
	app := fiber.New()
	api := app.Group("/api", apphttp.AuthMiddleware(testJWTSecret))
	ok := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"tenant_id": apphttp.GetTenantID(c), "role": apphttp.GetRole(c)})
	}
	api.Get("/glosas/:id", apphttp.RequireRole(apphttp.RoleAdmin, apphttp.RoleFaturista, apphttp.RoleAuditor), ok)
	api.Post("/glosas/:id/accept", apphttp.RequireRole(apphttp.RoleAdmin, apphttp.RoleFaturista), ok)
	return app
}

func firmar(t *testing.T, secret, tenantID, role string, expMin int) string {
	t.Helper()
	tok, err := pkgjwt.Generate(secret, testUserID, tenantID, testClinicID, role, testIssuer, expMin)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

// tokenForRole genera un JWT del tenant de prueba con el rol indicado.
func tokenForRole(t *testing.T, role string) string {
	t.Helper()
	return firmar(t, testJWTSecret, testTenantID, role, testExpMin)
}

func pedir(t *testing.T, app *fiber.App, method, path, auth string) (int, dto.ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body dto.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

// ── Políticas de rol ──

func TestRequireRole_PoliticasLecturaYEscritura(t *testing.T) {
	app := politicaApp()
	casos := []struct {
		role   string
		method string
		path   string
		status int
	}{
		{apphttp.RoleAdmin, http.MethodGet, "/api/glosas/gl-1", http.StatusOK},
		{apphttp.RoleFaturista, http.MethodGet, "/api/glosas/gl-1", http.StatusOK},
		{apphttp.RoleAuditor, http.MethodGet, "/api/glosas/gl-1", http.StatusOK},
		{apphttp.RoleAdmin, http.MethodPost, "/api/glosas/gl-1/accept", http.StatusOK},
		{apphttp.RoleFaturista, http.MethodPost, "/api/glosas/gl-1/accept", http.StatusOK},
		{apphttp.RoleAuditor, http.MethodPost, "/api/glosas/gl-1/accept", http.StatusForbidden},
		{"recepcion", http.MethodGet, "/api/glosas/gl-1", http.StatusForbidden},
	}
	for _, tc := range casos {
		t.Run(tc.role+" "+tc.method, func(t *testing.T) {
			status, body := pedir(t, app, tc.method, tc.path, tokenForRole(t, tc.role))
			assert.Equal(t, tc.status, status)
			if tc.status == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", body.Code)
			}
		})
	}
}

func TestRequireRole_TokenSinRol_Retorna401(t *testing.T) {
	status, body := pedir(t, politicaApp(), http.MethodGet, "/api/glosas/gl-1", tokenForRole(t, ""))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_ROLE", body.Code)
}

// ── AuthMiddleware ──

func TestAuthMiddleware_Rechazos(t *testing.T) {
	app := politicaApp()
	casos := map[string]struct {
		auth string
		code string
	}{
		"sin cabecera": {"", "MISSING_TOKEN"},
		"sin Bearer":   {"Token abc", "INVALID_TOKEN"},
		"malformado":   {"Bearer token.invalido.aqui", "INVALID_TOKEN"},
		"otra llave":   {firmar(t, "otra-llave", testTenantID, apphttp.RoleAdmin, testExpMin), "INVALID_TOKEN"},
		"expirado":     {firmar(t, testJWTSecret, testTenantID, apphttp.RoleAdmin, -1), "INVALID_TOKEN"},
		"sin tenant":   {firmar(t, testJWTSecret, "", apphttp.RoleAdmin, testExpMin), "INVALID_TOKEN"},
	}
	for name, tc := range casos {
		t.Run(name, func(t *testing.T) {
			status, body := pedir(t, app, http.MethodGet, "/api/glosas/gl-1", tc.auth)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestAuthMiddleware_ExtraeClaims(t *testing.T) {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":   apphttp.GetUserID(c),
			"tenant_id": apphttp.GetTenantID(c),
			"clinic_id": apphttp.GetClinicID(c),
			"role":      apphttp.GetRole(c),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", tokenForRole(t, apphttp.RoleFaturista))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testUserID, body["user_id"])
	assert.Equal(t, testTenantID, body["tenant_id"])
	assert.Equal(t, testClinicID, body["clinic_id"])
	assert.Equal(t, apphttp.RoleFaturista, body["role"])
}
