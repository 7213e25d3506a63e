package manager

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteds/hostingctl/internal/types"
)

type fakeDecommissionStore struct {
	app        *types.App
	lookups    int
	lockDenied bool
	released   int
}

func (f *fakeDecommissionStore) GetAppAnyState(ctx context.Context, appKey string) (*types.App, error) {
	f.lookups++
	if f.app == nil {
		return nil, types.ErrNotFound
	}
	return f.app, nil
}

func (f *fakeDecommissionStore) AcquireDeployLock(ctx context.Context, appKey string) (bool, error) {
	return !f.lockDenied, nil
}

func (f *fakeDecommissionStore) ReleaseDeployLock(ctx context.Context, appKey string) error {
	f.released++
	return nil
}

func newTestDecommissioner(runner *fakeRunner, store *fakeDecommissionStore) (*Decommissioner, *recordingReporter) {
	reporter := &recordingReporter{}
	return NewDecommissioner(runner, store, testConfig(), reporter, zerolog.Nop()), reporter
}

func TestDecommissionRequiresForce(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeDecommissionStore{app: testApp()}
	d, reporter := newTestDecommissioner(runner, store)

	_, err := d.Decommission(context.Background(), "inventory", false)

	var confirm *types.ConfirmationRequiredError
	require.ErrorAs(t, err, &confirm)
	assert.Equal(t, "decommission", confirm.Operation)

	// Without force absolutely nothing happens, not even a lookup.
	assert.Zero(t, store.lookups)
	assert.Empty(t, runner.commands)
	assert.Empty(t, reporter.started)
}

func TestDecommissionStepOrder(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeDecommissionStore{app: testApp()}
	d, _ := newTestDecommissioner(runner, store)

	results, err := d.Decommission(context.Background(), "inventory", true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		StepStopService,
		StepKillStrays,
		StepRemoveServiceUnit,
		StepRemoveProxyConfig,
		StepRemoveCertificate,
		StepRemoveFiles,
		StepDropDatabase,
	}, stepNames(results))
	assert.Equal(t, 1, store.released)
}

func TestDecommissionNeverTouchesBackups(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeDecommissionStore{app: testApp()}
	d, _ := newTestDecommissioner(runner, store)

	_, err := d.Decommission(context.Background(), "inventory", true)
	require.NoError(t, err)

	for _, cmd := range runner.commands {
		if strings.Contains(cmd, "rm ") {
			assert.NotContains(t, cmd, "/var/backups/apps", "backup archives must survive decommission: %s", cmd)
		}
	}
}

func TestDecommissionRemovesOnlyDeployPath(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeDecommissionStore{app: testApp()}
	d, _ := newTestDecommissioner(runner, store)

	_, err := d.Decommission(context.Background(), "inventory", true)
	require.NoError(t, err)

	var rmrf []string
	for _, cmd := range runner.commands {
		if strings.Contains(cmd, "rm -rf") {
			rmrf = append(rmrf, cmd)
		}
	}
	require.Len(t, rmrf, 1)
	assert.Equal(t, "sudo rm -rf /srv/apps/inventory", rmrf[0])
}

func TestDecommissionRefusesSuspiciousPaths(t *testing.T) {
	for _, path := range []string{"", "/", "relative/path", "/var/backups/apps/inventory"} {
		app := testApp()
		app.DeployPath = path

		runner := &fakeRunner{}
		store := &fakeDecommissionStore{app: app}
		d, _ := newTestDecommissioner(runner, store)

		_, err := d.Decommission(context.Background(), "inventory", true)
		require.Error(t, err, "path %q must be refused", path)
		assert.Contains(t, err.Error(), "refusing decommission")
		assert.Empty(t, runner.commands)
	}
}

func TestDecommissionHaltsOnFailure(t *testing.T) {
	runner := &fakeRunner{failOn: "nginx"}
	store := &fakeDecommissionStore{app: testApp()}
	d, _ := newTestDecommissioner(runner, store)

	results, err := d.Decommission(context.Background(), "inventory", true)

	var stepErr *types.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepRemoveProxyConfig, stepErr.Step)

	names := stepNames(results)
	assert.NotContains(t, names, StepRemoveFiles)
	assert.NotContains(t, names, StepDropDatabase, "database survives when an earlier step fails")
	assert.Equal(t, 1, store.released)
}

func TestDecommissionLockHeld(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeDecommissionStore{app: testApp(), lockDenied: true}
	d, _ := newTestDecommissioner(runner, store)

	_, err := d.Decommission(context.Background(), "inventory", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in progress")
	assert.Empty(t, runner.commands)
}
