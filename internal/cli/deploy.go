package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remoteds/hostingctl/internal/manager"
	"github.com/remoteds/hostingctl/internal/notification"
	"github.com/remoteds/hostingctl/internal/secrets"
	"github.com/remoteds/hostingctl/internal/types"
	"github.com/remoteds/hostingctl/internal/ui"
)

var (
	deployApp     string
	deployMode    string
	deploySetup   bool
	deployMigrate bool
	deployLocal   bool

	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an application to the managed host",
		RunE:  runDeploy,
	}
)

func init() {
	deployCmd.Flags().StringVar(&deployApp, "app", "", "App key to deploy")
	deployCmd.Flags().StringVar(&deployMode, "mode", string(types.ModeCodeAndMigrate), "Deployment mode: first_time, code_and_migrate or migrate_only")
	deployCmd.Flags().BoolVar(&deploySetup, "setup", false, "Shorthand for --mode first_time")
	deployCmd.Flags().BoolVar(&deployMigrate, "migrate-only", false, "Shorthand for --mode migrate_only")
	deployCmd.Flags().BoolVar(&deployLocal, "local", false, "Run deployment commands on this host directly instead of over SSH")
	deployCmd.MarkFlagRequired("app")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	mode := types.DeployMode(deployMode)
	if deploySetup {
		mode = types.ModeFirstTime
	}
	if deployMigrate {
		mode = types.ModeMigrateOnly
	}
	if !mode.Valid() {
		return fmt.Errorf("unknown deployment mode %q", deployMode)
	}

	ui.PrintBanner()

	ctx := cmd.Context()

	svc, err := setupServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	client, out, err := svc.connectRunner(deployLocal)
	if err != nil {
		return err
	}
	defer client.Close()
	defer out.Flush()

	deployer := secrets.NewDeployer(client, svc.cfg, svc.log)
	reporter := ui.NewStepReporter(client.Host())
	dm := manager.NewDeploymentManager(client, svc.database, deployer, svc.cfg, reporter, svc.log)

	results, err := dm.Deploy(ctx, deployApp, mode)
	out.Flush()

	notifier := notification.New()
	if err != nil {
		notifier.Send("hostingctl", fmt.Sprintf("Deployment of %s failed", deployApp))
		return err
	}
	notifier.Send("hostingctl", fmt.Sprintf("Deployment of %s completed", deployApp))

	fmt.Printf("\nDeployed %s (%s), %d steps completed ✅\n", deployApp, mode, len(results))
	return nil
}
