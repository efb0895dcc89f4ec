package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"brkdash/internal/configdoc/model"
	"brkdash/internal/configdoc/repository"
	"brkdash/internal/configdoc/service"
	"brkdash/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedCompany = `{
  "companyName": "BRK",
  "plant": {"site": "Budapest"},
  "machines": [
    {"id": "m1", "name": "DMU 50", "axes": 5, "customTag": "keep-me"},
    {"id": "m2", "name": "Hermle C42", "axes": 5}
  ],
  "cycles": [{"id": "c1", "name": "Drilling"}],
  "toolCategories": [{"id": "t1", "name": "Drills"}],
  "validationRules": []
}`

// newTestClient starts the real service against a temp directory.
func newTestClient(t *testing.T) (*Client, *repository.FileRepository) {
	t.Helper()
	core := t.TempDir()
	repo := repository.NewFileRepository(repository.Paths{
		SetupConfig:   filepath.Join(core, "BRK_SETUP_WIZARD_CONFIG.json"),
		CompanyConfig: filepath.Join(core, "test-data", "source_data", "company-config.json"),
		ArchiveDir:    filepath.Join(core, "config_archive"),
		BackupsDir:    filepath.Join(core, "test-data", "backups"),
	})
	srv := httptest.NewServer(router.Setup(router.Deps{
		Service:        service.NewConfigService(repo, service.Options{}),
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second), repo
}

func seededClient(t *testing.T) (*Client, *repository.FileRepository) {
	t.Helper()
	c, repo := newTestClient(t)
	_, err := c.SaveCompanyConfig(context.Background(), json.RawMessage(seedCompany))
	require.NoError(t, err)
	return c, repo
}

func TestSetupConfigRoundTrip(t *testing.T) {
	c, repo := newTestClient(t)
	ctx := context.Background()

	_, err := c.LoadSetupConfig(ctx)
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, IsFirstTimeSetup(err))

	saved, err := c.SaveSetupConfig(ctx, map[string]any{"step": 2})
	require.NoError(t, err)
	assert.True(t, saved.Success)
	assert.Equal(t, repo.Paths.SetupConfig, saved.Path)

	doc, err := c.LoadSetupConfig(ctx)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc, &fields))
	assert.Equal(t, float64(2), fields["step"])
	assert.Equal(t, "Dashboard", fields["savedBy"])

	reset, err := c.ResetSetupConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Configuration reset successfully", reset.Message)
	_, err = c.ResetSetupConfig(ctx)
	require.NoError(t, err)
}

func TestCompanyConfigNotFoundIsNotFirstTimeSetup(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.LoadCompanyConfig(context.Background())
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, IsFirstTimeSetup(err))
}

func TestLoadCompanyConfigTyped(t *testing.T) {
	c, _ := seededClient(t)
	cfg, err := c.LoadCompanyConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BRK", cfg.CompanyName)
	require.Len(t, cfg.Machines, 2)
	assert.Equal(t, 5, cfg.Machines[0].Axes)
	assert.Equal(t, "Drills", cfg.ToolCategories[0].Name)
}

func TestUpdateMachine(t *testing.T) {
	c, _ := seededClient(t)
	ctx := context.Background()

	require.NoError(t, c.UpdateMachine(ctx, model.Machine{ID: "m2", Name: "Hermle C52", Axes: 5}))

	cfg, err := c.LoadCompanyConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hermle C52", cfg.Machines[1].Name)

	raw, err := c.LoadCompanyConfigRaw(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "keep-me", "siblings keep fields the typed model lacks")
	assert.Contains(t, string(raw), "Budapest", "unknown top-level fields survive")

	err = c.UpdateMachine(ctx, model.Machine{ID: "nope"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	err = c.UpdateMachine(ctx, model.Machine{Name: "no id"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestAddAndDeleteMachine(t *testing.T) {
	c, _ := seededClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddMachine(ctx, model.Machine{ID: "m3", Name: "Mazak"}))
	assert.ErrorIs(t, c.AddMachine(ctx, model.Machine{ID: "m1"}), model.ErrAlreadyExists)

	require.NoError(t, c.DeleteMachine(ctx, "m1"))
	require.NoError(t, c.DeleteMachine(ctx, "m1"), "deleting a missing machine is a no-op")

	cfg, err := c.LoadCompanyConfig(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, m := range cfg.Machines {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m2", "m3"}, ids)

	backups, err := c.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2, "the no-op delete does not save")
}

func TestCycleAndToolCategoryUpdates(t *testing.T) {
	c, _ := seededClient(t)
	ctx := context.Background()

	require.NoError(t, c.UpdateCycle(ctx, model.Cycle{ID: "c1", Name: "Peck drilling"}))
	assert.ErrorIs(t, c.UpdateCycle(ctx, model.Cycle{ID: "c9"}), model.ErrNotFound)

	require.NoError(t, c.UpdateToolCategory(ctx, model.ToolCategory{ID: "t1", Name: "Drills", Patterns: []string{"D*"}}))
	assert.ErrorIs(t, c.UpdateToolCategory(ctx, model.ToolCategory{ID: "t9"}), model.ErrNotFound)

	cfg, err := c.LoadCompanyConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Peck drilling", cfg.Cycles[0].Name)
	assert.Equal(t, []string{"D*"}, cfg.ToolCategories[0].Patterns)
}

func TestValidationRuleMutators(t *testing.T) {
	c, _ := seededClient(t)
	ctx := context.Background()

	rule := model.ValidationRule{ID: "r1", Name: "Max RPM", Active: true}
	require.NoError(t, c.AddValidationRule(ctx, rule))
	assert.ErrorIs(t, c.AddValidationRule(ctx, rule), model.ErrAlreadyExists)

	rule.Active = false
	require.NoError(t, c.UpdateValidationRule(ctx, rule))
	assert.ErrorIs(t, c.UpdateValidationRule(ctx, model.ValidationRule{ID: "r9"}), model.ErrNotFound)

	cfg, err := c.LoadCompanyConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.ValidationRules, 1)
	assert.False(t, cfg.ValidationRules[0].Active)

	require.NoError(t, c.DeleteValidationRule(ctx, "r1"))
	cfg, err = c.LoadCompanyConfig(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg.ValidationRules)
}

func TestMutatorsWithoutCompanyDocument(t *testing.T) {
	c, _ := newTestClient(t)
	assert.ErrorIs(t, c.AddMachine(context.Background(), model.Machine{ID: "m1"}), model.ErrNotFound)
}

func TestServerSideEntityOperations(t *testing.T) {
	c, _ := seededClient(t)
	ctx := context.Background()

	resp, err := c.AddEntity(ctx, model.CollectionCycles, map[string]any{"id": "c2", "name": "Tapping"})
	require.NoError(t, err)
	assert.Equal(t, "c2", resp.ID)
	assert.NotEmpty(t, resp.Backup)

	_, err = c.AddEntity(ctx, model.CollectionCycles, map[string]any{"id": "c2"})
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	_, err = c.UpdateEntity(ctx, model.CollectionCycles, "c2", map[string]any{"name": "Rigid tapping"})
	require.NoError(t, err)

	_, err = c.DeleteEntity(ctx, model.CollectionCycles, "c2")
	require.NoError(t, err)
	_, err = c.DeleteEntity(ctx, model.CollectionCycles, "c2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBackupsDownloadAndDelete(t *testing.T) {
	c, _ := seededClient(t)
	ctx := context.Background()

	backups, err := c.ListBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups)

	_, err = c.SaveCompanyConfig(ctx, map[string]any{"companyName": "BRK 2"})
	require.NoError(t, err)
	backups, err = c.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	var buf bytes.Buffer
	n, err := c.DownloadBackup(ctx, backups[0].Filename, &buf)
	require.NoError(t, err)
	assert.Equal(t, backups[0].Size, n)
	assert.JSONEq(t, seedCompany, buf.String())

	_, err = c.DownloadBackup(ctx, "../../etc/passwd", &buf)
	assert.ErrorIs(t, err, model.ErrInvalidName)
	_, err = c.DownloadBackup(ctx, "company-config.backup_missing.json", &buf)
	assert.ErrorIs(t, err, model.ErrNotFound)

	resp, err := c.DeleteBackups(ctx, []string{backups[0].Filename, "bogus.txt"})
	assert.ErrorIs(t, err, ErrPartialDelete)
	require.NotNil(t, resp)
	assert.Equal(t, 1, resp.DeletedCount)

	_, err = c.DeleteBackups(ctx, nil)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestHealth(t *testing.T) {
	c, _ := newTestClient(t)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "BRK CNC Dashboard", h.Service)
}

func TestAPIErrorFromNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.Nil(t, apiErr.Unwrap())
}

func TestAPIErrorUnwrap(t *testing.T) {
	tests := []struct {
		err  *APIError
		want error
	}{
		{&APIError{StatusCode: 404}, model.ErrNotFound},
		{&APIError{StatusCode: 409}, model.ErrAlreadyExists},
		{&APIError{StatusCode: 400, Message: "Invalid filename"}, model.ErrInvalidName},
		{&APIError{StatusCode: 400, Message: "invalid request: body must be a JSON object"}, model.ErrInvalidRequest},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, tt.want, tt.err.Error())
	}
}

func TestNewDefaultsAndTrims(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("", time.Second).BaseURL())
	assert.Equal(t, "http://host:3004", New("http://host:3004/", time.Second).BaseURL())
}

func TestSaveFailsWhenDocumentDirIsAFile(t *testing.T) {
	c, repo := newTestClient(t)
	dir := filepath.Dir(repo.Paths.CompanyConfig)
	require.NoError(t, os.MkdirAll(filepath.Dir(dir), 0o755))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	_, err := c.SaveCompanyConfig(context.Background(), map[string]any{"a": 1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Failed to save company configuration", apiErr.Message)
}
