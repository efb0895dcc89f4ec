package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"brkdash/config"
	"brkdash/internal/client"
	"brkdash/internal/configdoc/model"
	"brkdash/internal/configdoc/repository"
	"brkdash/internal/configdoc/service"
	"brkdash/internal/events"
	"brkdash/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startService(t *testing.T) string {
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
	return srv.URL
}

// run executes the CLI against url and returns stdout.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--url", url}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompanyShowSaveReset(t *testing.T) {
	url := startService(t)

	_, err := run(t, url, "company", "show")
	require.ErrorIs(t, err, model.ErrNotFound)

	doc := writeFile(t, "company.json", `{"companyName":"BRK","machines":[]}`)
	out, err := run(t, url, "company", "save", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Company configuration saved successfully")

	out, err = run(t, url, "company", "save", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "previous version kept as company-config.backup_")

	out, err = run(t, url, "company", "show")
	require.NoError(t, err)
	assert.JSONEq(t, `{"companyName":"BRK","machines":[]}`, out)

	out, err = run(t, url, "--json", "company", "reset")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"message":"Company configuration reset successfully"}`, out)
}

func TestSetupShowFirstTime(t *testing.T) {
	url := startService(t)
	_, err := run(t, url, "setup", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first time setup required")
}

func TestSaveRejectsInvalidFile(t *testing.T) {
	url := startService(t)
	_, err := run(t, url, "setup", "save", writeFile(t, "bad.json", "{nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain valid JSON")

	_, err = run(t, url, "setup", "save", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveFromStdin(t *testing.T) {
	url := startService(t)
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(bytes.NewBufferString(`{"step":1}`))
	root.SetArgs([]string{"--url", url, "setup", "save", "-"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Configuration saved successfully")
}

func TestMachineCommands(t *testing.T) {
	url := startService(t)
	_, err := run(t, url, "company", "save", writeFile(t, "company.json", `{"companyName":"BRK","machines":[{"id":"m1","name":"DMU 50"}]}`))
	require.NoError(t, err)

	out, err := run(t, url, "machine", "add", writeFile(t, "m2.json", `{"id":"m2","name":"Hermle C42","axes":5}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Added machine m2")

	_, err = run(t, url, "machine", "add", writeFile(t, "m1.json", `{"id":"m1"}`))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	_, err = run(t, url, "machine", "update", writeFile(t, "m9.json", `{"id":"m9"}`))
	assert.ErrorIs(t, err, model.ErrNotFound)

	out, err = run(t, url, "machine", "delete", "m1", "m9")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted machine m1")

	cfg, err := client.New(url, time.Second).LoadCompanyConfig(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Machines, 1)
	assert.Equal(t, "m2", cfg.Machines[0].ID)
	assert.Equal(t, 5, cfg.Machines[0].Axes)
}

func TestRuleAndEntityCommands(t *testing.T) {
	url := startService(t)
	_, err := run(t, url, "company", "save", writeFile(t, "company.json", `{"cycles":[{"id":"c1","name":"Drilling"}],"validationRules":[]}`))
	require.NoError(t, err)

	out, err := run(t, url, "rule", "add", writeFile(t, "r1.json", `{"id":"r1","name":"Max RPM","active":true}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Added rule r1")

	out, err = run(t, url, "cycle", "update", writeFile(t, "c1.json", `{"id":"c1","name":"Peck drilling"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Updated cycle c1")

	out, err = run(t, url, "--json", "entity", "add", "cycles", writeFile(t, "c2.json", `{"id":"c2","name":"Tapping"}`))
	require.NoError(t, err)
	var resp model.EntityResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "c2", resp.ID)

	_, err = run(t, url, "entity", "delete", "cycles", "c9")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBackupCommands(t *testing.T) {
	url := startService(t)
	doc := writeFile(t, "company.json", `{"companyName":"BRK"}`)
	for i := 0; i < 2; i++ {
		_, err := run(t, url, "company", "save", doc)
		require.NoError(t, err)
	}

	out, err := run(t, url, "--json", "backups", "list")
	require.NoError(t, err)
	var backups []model.BackupRecord
	require.NoError(t, json.Unmarshal([]byte(out), &backups))
	require.Len(t, backups, 1)
	name := backups[0].Filename

	out, err = run(t, url, "backups", "list")
	require.NoError(t, err)
	assert.Contains(t, out, name)
	assert.Contains(t, out, "1 backup(s)")

	out, err = run(t, url, "backups", "download", name)
	require.NoError(t, err)
	assert.JSONEq(t, `{"companyName":"BRK"}`, out)

	dest := filepath.Join(t.TempDir(), "copy.json")
	_, err = run(t, url, "backups", "download", name, "-o", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"companyName":"BRK"}`, string(data))

	dest = filepath.Join(t.TempDir(), "missing.json")
	_, err = run(t, url, "backups", "download", "company-config.backup_missing.json", "-o", dest)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoFileExists(t, dest)

	out, err = run(t, url, "backups", "delete", name, "nope.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 backup(s) could not be deleted")
	assert.Contains(t, out, "deleted "+name)
	assert.Contains(t, out, "nope.txt: invalid filename")
	assert.Contains(t, out, "Deleted 1 of 2 backup(s)")

	out, err = run(t, url, "backups", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No backups")
}

func TestHealthCommand(t *testing.T) {
	url := startService(t)
	out, err := run(t, url, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "BRK CNC Dashboard: ok")

	_, err = run(t, "http://127.0.0.1:1", "--timeout", "500ms", "health")
	assert.Error(t, err)
}

func TestPrintEvents(t *testing.T) {
	a := &app{}
	ch := make(chan events.Message, 2)
	ch <- events.Message{Topic: events.TopicBackupCreated, Data: []byte(`{"filename":"x"}`)}
	ch <- events.Message{Topic: events.TopicConfigSaved, Data: []byte(`not json`)}
	close(ch)

	var out bytes.Buffer
	require.NoError(t, a.printEvents(context.Background(), &out, ch))
	assert.Contains(t, out.String(), `brk.backup.created {"filename":"x"}`)

	a.jsonOutput = true
	ch2 := make(chan events.Message, 1)
	ch2 <- events.Message{Topic: events.TopicConfigSaved, Data: []byte(`not json`)}
	close(ch2)
	out.Reset()
	require.NoError(t, a.printEvents(context.Background(), &out, ch2))
	assert.JSONEq(t, `{"topic":"brk.config.saved","event":"not json"}`, out.String())
}

func TestUseColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR", "")
	t.Setenv("CLICOLOR_FORCE", "")
	assert.False(t, useColor(&bytes.Buffer{}), "buffers are not terminals")

	t.Setenv("CLICOLOR_FORCE", "1")
	assert.True(t, useColor(&bytes.Buffer{}))
	assert.Equal(t, ansiGreen+"up"+ansiReset, paint(&bytes.Buffer{}, ansiGreen, "up"))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, useColor(&bytes.Buffer{}))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 MB", humanSize(3<<19))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServeShutsDownOnCancel(t *testing.T) {
	for _, k := range []string{"BRK_CONFIG_FILE", "BRK_DATABASE_URL", "BRK_NATS_URL", "BRK_MIRROR_S3_BUCKET",
		"BRK_SETUP_CONFIG_PATH", "BRK_COMPANY_CONFIG_PATH", "BRK_ARCHIVE_DIR", "BRK_BACKUPS_DIR"} {
		t.Setenv(k, "")
	}
	port := freePort(t)
	t.Setenv("BRK_CORE_DIR", t.TempDir())
	t.Setenv("BRK_PORT", strconv.Itoa(port))

	cfg, err := config.Load("")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	c := client.New("http://127.0.0.1:"+strconv.Itoa(port), time.Second)
	require.Eventually(t, func() bool {
		_, err := c.Health(context.Background())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
