package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remoteds/hostingctl/internal/manager"
	"github.com/remoteds/hostingctl/internal/ui"
)

var (
	decommissionApp   string
	decommissionForce bool

	decommissionCmd = &cobra.Command{
		Use:   "decommission",
		Short: "Tear down a deployed application (backups are kept)",
		RunE:  runDecommission,
	}
)

func init() {
	decommissionCmd.Flags().StringVar(&decommissionApp, "app", "", "App key to decommission")
	decommissionCmd.Flags().BoolVar(&decommissionForce, "force", false, "Skip the interactive confirmation")
	decommissionCmd.MarkFlagRequired("app")
}

func runDecommission(cmd *cobra.Command, args []string) error {
	force := decommissionForce
	if !force {
		if !ui.ConfirmDecommission(decommissionApp) {
			return fmt.Errorf("decommission of %q not confirmed; pass --force for non-interactive runs", decommissionApp)
		}
		force = true
	}

	ctx := cmd.Context()

	svc, err := setupServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	client, out, err := svc.connectRemote()
	if err != nil {
		return err
	}
	defer client.Close()
	defer out.Flush()

	reporter := ui.NewStepReporter(client.Host())
	dec := manager.NewDecommissioner(client, svc.database, svc.cfg, reporter, svc.log)

	results, err := dec.Decommission(ctx, decommissionApp, force)
	out.Flush()
	if err != nil {
		return err
	}

	fmt.Printf("\nDecommissioned %s, %d steps completed ✅\n", decommissionApp, len(results))
	return nil
}
