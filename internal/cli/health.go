package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/remoteds/hostingctl/internal/health"
	"github.com/remoteds/hostingctl/internal/types"
)

var (
	healthApp string

	healthCheckCmd = &cobra.Command{
		Use:   "health-check",
		Short: "Verify a deployed application end to end",
		RunE:  runHealthCheck,
	}
)

func init() {
	healthCheckCmd.Flags().StringVar(&healthApp, "app", "", "App key to verify")
	healthCheckCmd.MarkFlagRequired("app")
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
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

	verifier := health.NewVerifier(client, svc.database, svc.cfg, svc.log)

	report, err := verifier.HealthCheck(ctx, healthApp)
	if err != nil {
		return err
	}
	out.Flush()

	printReport(report)

	if !report.Healthy() {
		return fmt.Errorf("%s is unhealthy: %d check(s) failing", healthApp, len(report.Failing()))
	}
	return nil
}

func printReport(report *types.HealthReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\nHealth report for %s (run %s)\n", report.AppKey, report.RunID)
	for _, check := range report.Checks {
		switch {
		case !check.Applicable:
			fmt.Printf("  %s %s: %s\n", gray("–"), check.Name, gray("not applicable"))
		case check.Passed:
			fmt.Printf("  %s %s\n", green("✔"), check.Name)
		default:
			fmt.Printf("  %s %s: %s\n", red("✘"), check.Name, check.Detail)
		}
	}
	for _, msg := range report.Errors {
		fmt.Printf("  %s %s\n", red("!"), msg)
	}
}
