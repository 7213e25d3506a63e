package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remoteds/hostingctl/internal/auth"
	"github.com/remoteds/hostingctl/internal/db"
	"github.com/remoteds/hostingctl/internal/manager"
	"github.com/remoteds/hostingctl/internal/secrets"
	"github.com/remoteds/hostingctl/internal/ui"
)

var (
	secretsApp     string
	secretsHMS     bool
	secretsRestart bool
	secretsField   string
	secretsValue   string
	secretsLength  int

	secretsCmd = &cobra.Command{
		Use:   "secrets",
		Short: "Manage and materialize application secrets",
	}

	secretsDeployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Render stored secrets into the systemd unit on the managed host",
		RunE:  runSecretsDeploy,
	}

	secretsSetCmd = &cobra.Command{
		Use:   "set",
		Short: "Update a secret column in the hosting database",
		RunE:  runSecretsSet,
	}

	secretsRotateCmd = &cobra.Command{
		Use:   "rotate",
		Short: "Generate a new value for a secret column and redeploy it",
		RunE:  runSecretsRotate,
	}

	secretsEncryptURLCmd = &cobra.Command{
		Use:   "encrypt-url",
		Short: "Encrypt a database URL for the encrypted_database_url config field",
		Long: "Encrypts a database URL with AES-256-CBC so it can be committed as\n" +
			"encrypted_database_url in hostingctl.yaml. The key is read from the\n" +
			"HOSTINGCTL_ENCRYPTION_KEY environment variable, prompted for, or\n" +
			"generated with --generate-key; store it in Infisical under the\n" +
			"configured key name, never alongside the ciphertext.",
		RunE: runSecretsEncryptURL,
	}

	secretsGenerateKey bool
)

func init() {
	secretsDeployCmd.Flags().StringVar(&secretsApp, "app", "", "App key whose secrets to deploy")
	secretsDeployCmd.Flags().BoolVar(&secretsHMS, "hms", false, "Deploy the hosting management system secrets instead")
	secretsDeployCmd.Flags().BoolVar(&secretsRestart, "restart", false, "Restart the service after updating the unit")

	secretsSetCmd.Flags().StringVar(&secretsApp, "app", "", "App key to update")
	secretsSetCmd.Flags().StringVar(&secretsField, "field", "", "Secret column to update")
	secretsSetCmd.Flags().StringVar(&secretsValue, "value", "", "New value (prompted for when omitted)")
	secretsSetCmd.MarkFlagRequired("app")
	secretsSetCmd.MarkFlagRequired("field")

	secretsRotateCmd.Flags().StringVar(&secretsApp, "app", "", "App key to update")
	secretsRotateCmd.Flags().StringVar(&secretsField, "field", "", "Secret column to rotate")
	secretsRotateCmd.Flags().IntVar(&secretsLength, "length", 32, "Length of the generated value")
	secretsRotateCmd.MarkFlagRequired("app")
	secretsRotateCmd.MarkFlagRequired("field")

	secretsEncryptURLCmd.Flags().BoolVar(&secretsGenerateKey, "generate-key", false, "Generate a fresh encryption key instead of reusing one")

	secretsCmd.AddCommand(secretsDeployCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsRotateCmd)
	secretsCmd.AddCommand(secretsEncryptURLCmd)
}

func runSecretsDeploy(cmd *cobra.Command, args []string) error {
	if !secretsHMS && secretsApp == "" {
		return fmt.Errorf("either --app or --hms is required")
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

	deployer := secrets.NewDeployer(client, svc.cfg, svc.log)
	opts := secrets.Options{Restart: secretsRestart}

	if secretsHMS {
		values, err := svc.database.GetHMSSecrets(ctx)
		if err != nil {
			return err
		}
		if err := deployer.DeployHMSSecrets(ctx, values, opts); err != nil {
			return err
		}
		fmt.Println("HMS secrets deployed ✅")
		return nil
	}

	app, err := svc.database.GetApp(ctx, secretsApp)
	if err != nil {
		return err
	}
	if err := deployer.DeployAppSecrets(ctx, app, opts); err != nil {
		return err
	}
	fmt.Printf("Secrets for %s deployed ✅\n", secretsApp)
	return nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	if !db.IsSecretColumn(secretsField) {
		return fmt.Errorf("%q is not a secret column", secretsField)
	}

	value := secretsValue
	if value == "" {
		var err error
		value, err = ui.PromptSecret(fmt.Sprintf("New value for %s.%s", secretsApp, secretsField))
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()

	svc, err := setupServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.database.UpdateAppSecret(ctx, secretsApp, secretsField, value); err != nil {
		return err
	}

	fmt.Printf("Updated %s.%s; run 'hostingctl secrets deploy --app %s --restart' to apply\n",
		secretsApp, secretsField, secretsApp)
	return nil
}

func runSecretsRotate(cmd *cobra.Command, args []string) error {
	if !db.IsSecretColumn(secretsField) {
		return fmt.Errorf("%q is not a secret column", secretsField)
	}

	value, err := secrets.GeneratePassword(secretsLength)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	svc, err := setupServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.database.UpdateAppSecret(ctx, secretsApp, secretsField, value); err != nil {
		return err
	}

	client, out, err := svc.connectRemote()
	if err != nil {
		return err
	}
	defer client.Close()
	defer out.Flush()

	app, err := svc.database.GetApp(ctx, secretsApp)
	if err != nil {
		return err
	}

	// A rotated database password has to reach the role itself, not just the
	// unit environment, or the app restarts into authentication failures.
	if secretsField == "database_password" {
		alter := manager.PsqlCommand(fmt.Sprintf(`ALTER ROLE "%s" WITH PASSWORD %s`,
			app.DatabaseUsername, manager.SQLLiteral(value)))
		if err := client.Run(ctx, alter); err != nil {
			return fmt.Errorf("failed to update role password: %v", err)
		}
	}

	deployer := secrets.NewDeployer(client, svc.cfg, svc.log)
	if err := deployer.DeployAppSecrets(ctx, app, secrets.Options{Restart: true}); err != nil {
		return err
	}

	fmt.Printf("Rotated %s.%s and restarted %s ✅\n", secretsApp, secretsField, app.UnitName())
	return nil
}

func runSecretsEncryptURL(cmd *cobra.Command, args []string) error {
	var key string
	switch {
	case secretsGenerateKey:
		var err error
		key, err = auth.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("Generated key (store in Infisical, not in config):\n%s\n\n", key)
	case os.Getenv("HOSTINGCTL_ENCRYPTION_KEY") != "":
		key = os.Getenv("HOSTINGCTL_ENCRYPTION_KEY")
	default:
		var err error
		key, err = ui.PromptSecret("Encryption key")
		if err != nil {
			return err
		}
	}

	url, err := ui.PromptSecret("Database URL")
	if err != nil {
		return err
	}

	encrypted, err := auth.Encrypt(url, key)
	if err != nil {
		return err
	}

	fmt.Printf("encrypted_database_url: %s\n", encrypted)
	return nil
}
