package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/metricdeck/internal/backendtest"
	"github.com/five82/metricdeck/internal/session"
)

const deadURL = "http://127.0.0.1:1/api"

type fixture struct {
	backend   *backendtest.Backend
	dir       string
	downloads string
	cfgPath   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{backend: backendtest.New(t), dir: t.TempDir()}
	f.downloads = filepath.Join(f.dir, "downloads")
	f.writeConfig(t, f.backend.URL())
	return f
}

func (f *fixture) writeConfig(t *testing.T, apiURL string) {
	t.Helper()
	f.cfgPath = filepath.Join(f.dir, "config.toml")
	body := fmt.Sprintf(`api_url = %q
request_timeout_seconds = 2
storage = "file"
storage_path = %q
download_dir = %q
log_file = %q

[[cards]]
name = "total_ativacoes"
title = "Total de Ativações"
format = "number"

[[cards]]
name = "faturamento"
title = "Faturamento"
format = "currency"
`, apiURL, filepath.Join(f.dir, "session.toml"), f.downloads, filepath.Join(f.dir, "metricdeck.log"))
	require.NoError(t, os.WriteFile(f.cfgPath, []byte(body), 0o644))
}

type result struct {
	out    string
	errOut string
	err    error
}

// run executes one metricdeck invocation with a fresh CLI, as a shell would.
func (f *fixture) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	c := New(Options{
		In:      strings.NewReader(stdin),
		Out:     &out,
		Err:     &errOut,
		EnvFile: filepath.Join(f.dir, ".env"),
	})
	c.SetArgs(append([]string{"--config", f.cfgPath}, args...))
	err := c.Execute(ctx)
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	res := f.run(t, "", "login", "--email", "ana@example.com", "--password", "secret")
	require.NoError(t, res.err, res.errOut)
}

func TestLoginWhoamiLogout(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, "", "login", "--email", "ana@example.com", "--password", "secret")
	require.NoError(t, res.err)
	assert.Equal(t, "Logged in as Ana <ana@example.com>\n", res.out)

	res = f.run(t, "", "whoami")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "ana@example.com")
	assert.Contains(t, res.out, "admin")
	assert.Contains(t, res.out, f.backend.URL())

	res = f.run(t, "", "logout")
	require.NoError(t, res.err)
	assert.Equal(t, "Logged out\n", res.out)
	assert.Equal(t, 1, f.backend.Calls(backendtest.RouteLogout))

	res = f.run(t, "", "whoami")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, session.ErrNotAuthenticated)

	res = f.run(t, "", "logout")
	require.NoError(t, res.err)
	assert.Equal(t, "Not logged in\n", res.out)
}

func TestLoginPromptsForMissingValues(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, "ana@example.com\nsecret\n", "login")
	require.NoError(t, res.err)
	assert.Contains(t, res.errOut, "Email: ")
	assert.Contains(t, res.errOut, "Password: ")
	assert.Contains(t, res.out, "Logged in as Ana")
}

func TestLoginRequiresCredentials(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, "", "login", "--email", "ana@example.com")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "email and password are required")
	assert.Zero(t, f.backend.Calls(backendtest.RouteLogin))
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, "", "login", "--email", "ana@example.com", "--password", "wrong")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, session.ErrInvalidCredentials)

	res = f.run(t, "", "whoami")
	assert.ErrorIs(t, res.err, session.ErrNotAuthenticated)
}

func TestCommandsRequireLogin(t *testing.T) {
	f := newFixture(t)

	for _, args := range [][]string{
		{"card"},
		{"periods"},
		{"preview", "total_ativacoes"},
		{"export", "total_ativacoes"},
	} {
		res := f.run(t, "", args...)
		assert.ErrorIs(t, res.err, session.ErrNotAuthenticated, args[0])
	}
	assert.Zero(t, f.backend.Calls(backendtest.RouteCard))
}

func TestCardPrintsFormattedValues(t *testing.T) {
	f := newFixture(t)
	f.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1523, "change": 12.3})
	f.backend.SetCard("faturamento", "consolidated", map[string]any{"value": 98765.4})
	f.login(t)

	res := f.run(t, "", "card")
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "CARD")
	assert.Contains(t, lines[1], "Total de Ativações")
	assert.Contains(t, lines[1], "1.523")
	assert.Contains(t, lines[1], "▲ 12.3%")
	assert.Contains(t, lines[2], "Faturamento")
	assert.Contains(t, lines[2], "R$ 98.765")
}

func TestCardUsesPeriodAndReportsFailures(t *testing.T) {
	f := newFixture(t)
	f.backend.SetCard("total_ativacoes", "2024-05", map[string]any{"value": 42})
	f.login(t)

	res := f.run(t, "", "card", "total_ativacoes", "--period", "2024-05")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "42")

	res = f.run(t, "", "card", "faturamento", "--period", "2024-05")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "1 of 1 cards failed")
	assert.Contains(t, res.out, "Card não encontrado")
}

func TestPeriodsListsConsolidatedFirst(t *testing.T) {
	f := newFixture(t)
	f.backend.SetPeriods("2024-06", "2024-05")
	f.login(t)

	res := f.run(t, "", "periods")
	require.NoError(t, res.err)
	assert.Equal(t, "consolidated\n2024-06\n2024-05\n", res.out)
}

func TestPreviewPrintsRequestedPage(t *testing.T) {
	f := newFixture(t)
	records := make([]map[string]any, 120)
	for i := range records {
		records[i] = map[string]any{"nome": fmt.Sprintf("Cliente %d", i), "codigo": i + 1}
	}
	body, err := json.Marshal(map[string]any{"data": records})
	require.NoError(t, err)
	f.backend.SetPreview("total_ativacoes", string(body))
	f.login(t)

	res := f.run(t, "", "preview", "total_ativacoes", "--page", "3")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.out), "\n")
	// header, 20 rows, footer
	require.Len(t, lines, 22)
	assert.Contains(t, lines[0], "codigo")
	assert.Contains(t, lines[1], "Cliente 100")
	assert.Equal(t, "Page 3 of 3 · 120 rows", lines[21])

	res = f.run(t, "", "preview", "total_ativacoes", "--page", "9")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Page 3 of 3 · 120 rows")
}

func TestPreviewMissingCard(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	res := f.run(t, "", "preview", "faturamento")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "preview indisponível")
}

func TestExportSavesIntoDir(t *testing.T) {
	f := newFixture(t)
	f.backend.SetExport("faturamento", backendtest.Export{
		Data:        []byte("xlsx"),
		Disposition: `attachment; filename="faturamento_2024-05.xlsx"`,
	})
	f.login(t)

	dir := filepath.Join(f.dir, "elsewhere")
	res := f.run(t, "", "export", "faturamento", "--period", "2024-05", "--dir", dir)
	require.NoError(t, res.err)

	path := filepath.Join(dir, "faturamento_2024-05.xlsx")
	assert.Equal(t, fmt.Sprintf("Saved %s (4 bytes)\n", path), res.out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(data))
	assert.NoDirExists(t, f.downloads)
}

func TestExportFallbackFilename(t *testing.T) {
	f := newFixture(t)
	f.backend.SetExport("faturamento", backendtest.Export{Data: []byte("xlsx")})
	f.login(t)

	res := f.run(t, "", "export", "faturamento")
	require.NoError(t, res.err)
	assert.FileExists(t, filepath.Join(f.downloads, "faturamento_consolidado.xlsx"))
}

func TestExportFailureShowsBackendMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.SetExport("faturamento", backendtest.Export{
		Status:    500,
		ErrorBody: `{"error":"Falha ao gerar planilha"}`,
	})
	f.login(t)

	res := f.run(t, "", "export", "faturamento")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Falha ao gerar planilha")
	assert.NoDirExists(t, f.downloads)
}

func TestAPIURLFlagOverridesConfig(t *testing.T) {
	f := newFixture(t)
	f.writeConfig(t, deadURL)

	res := f.run(t, "", "--api-url", f.backend.URL(), "login", "--email", "ana@example.com", "--password", "secret")
	require.NoError(t, res.err)
	assert.Equal(t, 1, f.backend.Calls(backendtest.RouteLogin))
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	f := newFixture(t)
	f.writeConfig(t, deadURL)
	t.Setenv("METRICDECK_API_URL", f.backend.URL())
	t.Setenv("METRICDECK_PASSWORD", "secret")

	res := f.run(t, "", "login", "--email", "ana@example.com")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Logged in as Ana")
}

func TestEnvFileIsLoaded(t *testing.T) {
	if _, ok := os.LookupEnv("METRICDECK_EMAIL"); ok {
		t.Skip("METRICDECK_EMAIL already set")
	}
	f := newFixture(t)
	t.Cleanup(func() { _ = os.Unsetenv("METRICDECK_EMAIL") })
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, ".env"), []byte("METRICDECK_EMAIL=ana@example.com\n"), 0o644))

	res := f.run(t, "", "login", "--password", "secret")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "<ana@example.com>")
	assert.NotContains(t, res.errOut, "Email: ")
}

func TestInvalidLogLevel(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, "", "--log-level", "loud", "whoami")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unknown log level")
}

func TestInvalidConfig(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.cfgPath, []byte("api_url = ["), 0o644))

	res := f.run(t, "", "whoami")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "parse config")
}
