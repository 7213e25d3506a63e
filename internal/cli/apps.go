package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	appsCmd = &cobra.Command{
		Use:   "apps",
		Short: "Inspect the apps registered in the hosting database",
	}

	appsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered apps (secrets are never shown)",
		RunE:  runAppsList,
	}
)

func init() {
	appsCmd.AddCommand(appsListCmd)
}

func runAppsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := setupServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	apps, err := svc.database.ListApps(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "APP KEY\tURL\tRUNTIME\tPORT\tENABLED")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n",
			app.AppKey, app.PublicURL(), app.Runtime, app.Port, app.Enabled)
	}
	return w.Flush()
}
