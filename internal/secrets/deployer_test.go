package secrets

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/types"
)

// fakeRunner records remote commands and simulates the unit file on the host.
type fakeRunner struct {
	commands []string
	files    map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{files: map[string]string{}}
}

func (f *fakeRunner) Run(ctx context.Context, command string) error {
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	if strings.HasPrefix(command, "sudo cat ") {
		path := strings.Fields(command)[2]
		return f.files[path], nil
	}
	return "", nil
}

func (f *fakeRunner) WriteFile(ctx context.Context, path, content string) error {
	f.commands = append(f.commands, fmt.Sprintf("write %s", path))
	f.files[path] = content
	return nil
}

func (f *fakeRunner) Host() string { return "test-host" }

func (f *fakeRunner) writes() []string {
	var out []string
	for _, c := range f.commands {
		if strings.HasPrefix(c, "write ") {
			out = append(out, c)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		DeployUser: "deploy",
		Paths: config.Paths{
			SystemdDir: "/etc/systemd/system",
		},
	}
}

func testApp() *types.App {
	return &types.App{
		AppKey:           "inventory",
		Domain:           "example.com",
		Subdomain:        "inventory",
		SourceRepository: "git@example.com:apps/inventory.git",
		DeployPath:       "/srv/apps/inventory",
		DatabaseName:     "inventory_production",
		DatabaseUsername: "inventory",
		DatabasePassword: "db-pass",
		SecretKeyBase:    "key-base",
		APIToken:         "tok",
		Port:             3001,
		Runtime:          types.RuntimeRails,
		Enabled:          true,
	}
}

func TestRenderEnvironmentSectionSorted(t *testing.T) {
	section := RenderEnvironmentSection(map[string]string{
		"secret_key_base":   "b",
		"database_password": "a",
		"smtp_password":     "c",
	})

	lines := strings.Split(section, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "# --- BEGIN HOSTINGCTL MANAGED SECRETS ---", lines[0])
	assert.Equal(t, `Environment="DATABASE_PASSWORD=a"`, lines[1])
	assert.Equal(t, `Environment="SECRET_KEY_BASE=b"`, lines[2])
	assert.Equal(t, `Environment="SMTP_PASSWORD=c"`, lines[3])
	assert.Equal(t, "# --- END HOSTINGCTL MANAGED SECRETS ---", lines[4])
}

func TestRenderEnvironmentSectionEscapes(t *testing.T) {
	section := RenderEnvironmentSection(map[string]string{
		"secret_key_base": `pa"ss\word`,
	})

	assert.Contains(t, section, `Environment="SECRET_KEY_BASE=pa\"ss\\word"`)
}

func TestReplaceManagedSectionPreservesRest(t *testing.T) {
	unit := "[Unit]\nDescription=x\n\n[Service]\n" +
		"# --- BEGIN HOSTINGCTL MANAGED SECRETS ---\n" +
		`Environment="OLD=1"` + "\n" +
		"# --- END HOSTINGCTL MANAGED SECRETS ---\n" +
		"ExecStart=/bin/true\n"

	section := RenderEnvironmentSection(map[string]string{"database_password": "new"})

	got, err := ReplaceManagedSection(unit, section)
	require.NoError(t, err)

	assert.Contains(t, got, "Description=x")
	assert.Contains(t, got, "ExecStart=/bin/true")
	assert.Contains(t, got, `Environment="DATABASE_PASSWORD=new"`)
	assert.NotContains(t, got, "OLD=1")
}

func TestReplaceManagedSectionRefusesUnmarkedUnit(t *testing.T) {
	_, err := ReplaceManagedSection("[Service]\nExecStart=/bin/true\n", "section")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hand-edited")
}

func TestDeployAppSecretsIncompleteRow(t *testing.T) {
	runner := newFakeRunner()
	d := NewDeployer(runner, testConfig(), zerolog.Nop())

	app := testApp()
	app.SecretKeyBase = ""

	err := d.DeployAppSecrets(context.Background(), app, Options{})

	var incomplete *types.IncompleteSecretError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "secret_key_base", incomplete.Field)
	assert.Empty(t, runner.commands, "no remote command may run for an incomplete row")
}

func TestDeployAppSecretsIdempotent(t *testing.T) {
	runner := newFakeRunner()
	d := NewDeployer(runner, testConfig(), zerolog.Nop())
	app := testApp()

	require.NoError(t, d.DeployAppSecrets(context.Background(), app, Options{}))
	require.Len(t, runner.writes(), 1)

	first := runner.files["/etc/systemd/system/inventory-management.service"]
	require.NotEmpty(t, first)

	// Unchanged secrets: the second run must not rewrite the unit.
	require.NoError(t, d.DeployAppSecrets(context.Background(), app, Options{}))
	assert.Len(t, runner.writes(), 1)
	assert.Equal(t, first, runner.files["/etc/systemd/system/inventory-management.service"])
}

func TestDeployAppSecretsPreservesHandEdits(t *testing.T) {
	runner := newFakeRunner()
	d := NewDeployer(runner, testConfig(), zerolog.Nop())
	app := testApp()

	require.NoError(t, d.DeployAppSecrets(context.Background(), app, Options{}))

	// An operator appends a directive outside the managed section.
	path := "/etc/systemd/system/inventory-management.service"
	runner.files[path] = runner.files[path] + "LimitNOFILE=65536\n"

	app.DatabasePassword = "rotated"
	require.NoError(t, d.DeployAppSecrets(context.Background(), app, Options{}))

	got := runner.files[path]
	assert.Contains(t, got, "LimitNOFILE=65536")
	assert.Contains(t, got, `Environment="DATABASE_PASSWORD=rotated"`)
	assert.NotContains(t, got, "db-pass")
}

func TestDeployAppSecretsRestartOption(t *testing.T) {
	runner := newFakeRunner()
	d := NewDeployer(runner, testConfig(), zerolog.Nop())

	require.NoError(t, d.DeployAppSecrets(context.Background(), testApp(), Options{Restart: true}))

	joined := strings.Join(runner.commands, "\n")
	assert.Contains(t, joined, "sudo systemctl daemon-reload")
	assert.Contains(t, joined, "sudo systemctl restart inventory-management.service")
}

func TestDeployHMSSecretsExcludesUnitShape(t *testing.T) {
	runner := newFakeRunner()
	d := NewDeployer(runner, testConfig(), zerolog.Nop())

	values := map[string]string{
		"database_url": "postgres://hms",
		"jwt_secret":   "jwt",
		"deploy_path":  "/srv/hms",
		"port":         "8000",
	}

	require.NoError(t, d.DeployHMSSecrets(context.Background(), values, Options{}))

	unit := runner.files["/etc/systemd/system/hms.service"]
	require.NotEmpty(t, unit)
	assert.Contains(t, unit, `Environment="DATABASE_URL=postgres://hms"`)
	assert.Contains(t, unit, `Environment="JWT_SECRET=jwt"`)
	assert.NotContains(t, unit, `Environment="DEPLOY_PATH`)
	assert.NotContains(t, unit, `Environment="PORT`)
	assert.Contains(t, unit, "WorkingDirectory=/srv/hms")
	assert.Contains(t, unit, "--port 8000")
}

func TestDeployHMSSecretsMissingKey(t *testing.T) {
	runner := newFakeRunner()
	d := NewDeployer(runner, testConfig(), zerolog.Nop())

	err := d.DeployHMSSecrets(context.Background(), map[string]string{
		"database_url": "postgres://hms",
	}, Options{})

	var incomplete *types.IncompleteSecretError
	require.ErrorAs(t, err, &incomplete)
	assert.Empty(t, runner.commands)
}
