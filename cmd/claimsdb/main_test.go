package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ehr/claimsdb/internal/catalog"
	"github.com/ehr/claimsdb/internal/config"
	"github.com/ehr/claimsdb/internal/platform/auth"
	"github.com/ehr/claimsdb/internal/platform/cache"
	"github.com/ehr/claimsdb/internal/platform/db"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:               env,
		LogFormat:         "json",
		RequestTimeout:    5 * time.Second,
		VocabCacheTTL:     time.Minute,
		EnforcePaymentCap: true,
		AuthSigningKey:    testKeyHex,
	}
}

// The server is built without a pool; only routes that never reach the
// database are exercised here.
func testServer(cfg *config.Config) http.Handler {
	log := zerolog.Nop()
	return newServer(cfg, nil, newServices(cfg, nil, cache.Disabled(), log), log)
}

func do(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signedToken(t *testing.T, cfg *config.Config, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	})
	s, err := token.SignedString(cfg.SigningKey())
	require.NoError(t, err)
	return s
}

func TestRootCommandTree(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"vocab", "load"},
		{"export", "claim-lines"},
		{"schema", "describe"},
		{"schema", "search"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	exp, _, err := root.Find([]string{"export", "claim-lines"})
	require.NoError(t, err)
	for _, flag := range []string{"from", "to", "out"} {
		assert.NotNil(t, exp.Flags().Lookup(flag), flag)
	}
}

func TestServer_HealthIsPublic(t *testing.T) {
	h := testServer(testConfig("production"))
	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RequiresTokenOutsideDevelopment(t *testing.T) {
	cfg := testConfig("production")
	h := testServer(cfg)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/schema", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/schema", signedToken(t, cfg, "viewer")).Code)
}

func TestServer_RoleGuards(t *testing.T) {
	cfg := testConfig("production")
	h := testServer(cfg)

	clinicalOnly := signedToken(t, cfg, "clinical")
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/v1/claims", clinicalOnly).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/v1/payers", clinicalOnly).Code)

	billingOnly := signedToken(t, cfg, "billing")
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/v1/clinical/cases", billingOnly).Code)
}

func TestServer_DevAuth(t *testing.T) {
	h := testServer(testConfig("development"))
	rec := do(h, http.MethodGet, "/api/v1/schema?q=drg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinical.admissions")
}

func TestParseDay(t *testing.T) {
	d, err := parseDay("from", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDay("from", "")
	assert.ErrorContains(t, err, "--from is required")
	_, err = parseDay("to", "03/01/2024")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestWriteSchema(t *testing.T) {
	res, err := catalog.Describe("claim_lines")
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, writeSchema(&text, res, "text"))
	assert.Contains(t, text.String(), "Table: billing.claim_lines")

	var out bytes.Buffer
	require.NoError(t, writeSchema(&out, res, "yaml"))
	var decoded struct {
		Tables []struct {
			Schema string `yaml:"schema"`
			Name   string `yaml:"name"`
		} `yaml:"tables"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.Tables, 1)
	assert.Equal(t, "claim_lines", decoded.Tables[0].Name)

	assert.Error(t, writeSchema(&out, res, "xml"))
}

func TestSchemaSearchCommand(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"schema", "search", "no_such_thing"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "no matching tables\n", out.String())

	out.Reset()
	root = rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"schema", "describe", "billing.payments", "-o", "json"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"source_table": "billing.payments"`)
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, "billing", []db.MigrationStatus{
		{Version: 1, Name: "001_reference.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_lookups.sql"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "applied")
	assert.Contains(t, lines[2], "2024-01-02 03:04:05")
	assert.Contains(t, lines[3], "pending")
}

func TestSelectedSchemas(t *testing.T) {
	cmd := migrateCmd().Commands()[0]
	schemas, err := selectedSchemas(cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "clinical"}, schemas)

	require.NoError(t, cmd.Flags().Set("schema", "clinical"))
	schemas, err = selectedSchemas(cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"clinical"}, schemas)

	require.NoError(t, cmd.Flags().Set("schema", "public"))
	_, err = selectedSchemas(cmd)
	assert.Error(t, err)
}
