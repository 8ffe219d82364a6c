package export_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/backendtest"
	"github.com/five82/metricdeck/internal/export"
	"github.com/five82/metricdeck/internal/session"
	"github.com/five82/metricdeck/internal/storage"
)

func newPipeline(t *testing.T, backend *backendtest.Backend) (*export.Pipeline, string) {
	t.Helper()
	store := session.NewStore(storage.NewMemory(), nil, zerolog.Nop())
	client, err := api.NewClient(store, api.Options{BaseURL: backend.URL()})
	require.NoError(t, err)
	store.SetAuthenticator(client)
	_, err = store.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	dir := t.TempDir()
	return export.NewPipeline(client, export.NewFileSaver(dir), zerolog.Nop()), dir
}

func TestPipeline_SavesWithDispositionName(t *testing.T) {
	backend := backendtest.New(t)
	backend.SetExport("receita", backendtest.Export{
		Data:        []byte("PK-fake-xlsx"),
		Disposition: `attachment; filename="receita_2024-05.xlsx"`,
	})
	p, dir := newPipeline(t, backend)
	q := api.CardQuery{Card: "receita", Period: "2024-05"}

	res, err := p.Export(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "receita_2024-05.xlsx", res.Filename)
	assert.Equal(t, filepath.Join(dir, "receita_2024-05.xlsx"), res.Path)
	assert.Equal(t, len("PK-fake-xlsx"), res.Size)
	assert.Equal(t, export.Idle, p.State(q))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "PK-fake-xlsx", string(data))
	assert.Equal(t, "consolidated=false&date=2024-05", backend.LastQuery(backendtest.RouteExport))
}

func TestPipeline_FallbackFilenameAndNoOverwrite(t *testing.T) {
	backend := backendtest.New(t)
	backend.SetExport("total_ativacoes", backendtest.Export{Data: []byte("one")})
	p, dir := newPipeline(t, backend)
	q := api.CardQuery{Card: "total_ativacoes", Period: api.Consolidated}

	first, err := p.Export(context.Background(), q)
	require.NoError(t, err)
	second, err := p.Export(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "total_ativacoes_consolidado.xlsx"), first.Path)
	assert.Equal(t, filepath.Join(dir, "total_ativacoes_consolidado (1).xlsx"), second.Path)
	assert.Equal(t, 2, backend.Calls(backendtest.RouteExport))
}

func TestPipeline_DuplicateTriggerIsIgnored(t *testing.T) {
	backend := backendtest.New(t)
	backend.SetExport("receita", backendtest.Export{Data: []byte("x")})
	backend.SetExport("clientes", backendtest.Export{Data: []byte("y")})
	p, _ := newPipeline(t, backend)
	release := backend.GateExports()
	defer release()

	q := api.CardQuery{Card: "receita", Period: api.Consolidated}
	done := make(chan error, 1)
	go func() {
		_, err := p.Export(context.Background(), q)
		done <- err
	}()
	require.Eventually(t, func() bool { return backend.Calls(backendtest.RouteExport) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, export.Exporting, p.State(q))

	_, err := p.Export(context.Background(), q)
	require.ErrorIs(t, err, export.ErrInProgress)
	assert.Equal(t, 1, backend.Calls(backendtest.RouteExport))

	// A different card is not blocked by the guard.
	other := make(chan error, 1)
	go func() {
		_, err := p.Export(context.Background(), api.CardQuery{Card: "clientes", Period: api.Consolidated})
		other <- err
	}()
	require.Eventually(t, func() bool { return backend.Calls(backendtest.RouteExport) == 2 }, 2*time.Second, 5*time.Millisecond)

	release()
	require.NoError(t, <-done)
	require.NoError(t, <-other)
	assert.Equal(t, export.Idle, p.State(q))
}

func TestPipeline_FailureReturnsToIdle(t *testing.T) {
	backend := backendtest.New(t)
	backend.SetExport("receita", backendtest.Export{
		Status:    500,
		ErrorBody: `{"error":"Falha ao gerar planilha"}`,
	})
	p, dir := newPipeline(t, backend)
	q := api.CardQuery{Card: "receita", Period: "2024-05"}

	var transitions []export.JobState
	p.OnChange(func(_ api.CardQuery, s export.JobState) { transitions = append(transitions, s) })

	_, err := p.Export(context.Background(), q)
	require.Error(t, err)
	var exportErr *export.Error
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, q, exportErr.Query)
	assert.ErrorIs(t, err, api.ErrRemote)
	assert.Contains(t, err.Error(), "Falha ao gerar planilha")
	assert.Equal(t, export.Idle, p.State(q))
	assert.Equal(t, []export.JobState{export.Exporting, export.Idle}, transitions)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingSaver struct{}

func (failingSaver) Save(string, []byte) (string, error) { return "", errors.New("disk full") }

type staticFetcher struct{ download api.Download }

func (f staticFetcher) FetchExport(context.Context, api.CardQuery) (api.Download, error) {
	return f.download, nil
}

func TestPipeline_SaveFailure(t *testing.T) {
	p := export.NewPipeline(staticFetcher{api.Download{Data: []byte("x")}}, failingSaver{}, zerolog.Nop())
	q := api.CardQuery{Card: "receita"}

	_, err := p.Export(context.Background(), q)
	var exportErr *export.Error
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "export receita: disk full", err.Error())
	assert.Equal(t, export.Idle, p.State(q))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name        string
		query       api.CardQuery
		disposition string
		want        string
	}{
		{name: "consolidated fallback", query: api.CardQuery{Card: "receita", Period: api.Consolidated}, want: "receita_consolidado.xlsx"},
		{name: "empty period fallback", query: api.CardQuery{Card: "receita"}, want: "receita_consolidado.xlsx"},
		{name: "period fallback", query: api.CardQuery{Card: "receita", Period: "2024-05"}, want: "receita_2024-05.xlsx"},
		{name: "quoted", query: api.CardQuery{Card: "x"}, disposition: `attachment; filename="Relatório Maio.xlsx"`, want: "Relatório Maio.xlsx"},
		{name: "token", query: api.CardQuery{Card: "x"}, disposition: `attachment; filename=dados.xlsx`, want: "dados.xlsx"},
		{name: "extended", query: api.CardQuery{Card: "x"}, disposition: `attachment; filename*=UTF-8''relat%C3%B3rio.xlsx`, want: "relatório.xlsx"},
		{name: "unquoted with spaces", query: api.CardQuery{Card: "x"}, disposition: `attachment; filename=meu arquivo.xlsx`, want: "meu arquivo.xlsx"},
		{name: "path stripped", query: api.CardQuery{Card: "x"}, disposition: `attachment; filename="../../etc/passwd"`, want: "passwd"},
		{name: "windows path stripped", query: api.CardQuery{Card: "x"}, disposition: `attachment; filename="C:\\tmp\\a.xlsx"`, want: "a.xlsx"},
		{name: "no filename", query: api.CardQuery{Card: "x", Period: "2024-01"}, disposition: `attachment`, want: "x_2024-01.xlsx"},
		{name: "card with slash", query: api.CardQuery{Card: "a/b"}, want: "a_b_consolidado.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := export.Filename(tt.query, tt.disposition); got != tt.want {
				t.Fatalf("Filename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileSaver_RejectsEmptyDir(t *testing.T) {
	_, err := export.NewFileSaver("").Save("a.xlsx", nil)
	require.Error(t, err)
}
