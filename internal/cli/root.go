package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/remoteds/hostingctl/internal/auth"
	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/db"
	"github.com/remoteds/hostingctl/internal/logging"
	"github.com/remoteds/hostingctl/internal/ssh"
	"github.com/remoteds/hostingctl/internal/ui"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "hostingctl",
		Short: "Deployment and secret management for hosted apps",
		Long: `A CLI tool for operating single-host application deployments:
secret materialization, deployment orchestration, health verification
and decommissioning, driven by the hosting database.`,
	}
)

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()

	rootCmd.SilenceErrors = false
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./hostingctl.yaml", "Path to config file")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(healthCheckCmd)
	rootCmd.AddCommand(decommissionCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// services is the shared wiring every subcommand needs: the parsed config,
// a logger and a connection to the hosting database.
type services struct {
	cfg      *config.Config
	log      zerolog.Logger
	database *db.PostgresDB
}

func setupServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logging.NewLogger(cfg)

	dbURL, err := auth.ResolveDatabaseURL(ctx, cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.NewPostgresDB(db.Config{URI: dbURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hosting database: %v", err)
	}

	return &services{cfg: cfg, log: log, database: database}, nil
}

func (s *services) Close() {
	s.database.Close()
}

// connectRemote dials the managed host and wires its output through the
// line-by-line streamer so remote progress appears as it happens.
func (s *services) connectRemote() (*ssh.SSHClient, *ui.RemoteOutput, error) {
	out := ui.NewRemoteOutput(s.cfg.Remote.Host)
	client, err := ssh.NewSSHClient(s.cfg.Remote, out)
	if err != nil {
		return nil, nil, err
	}
	return client, out, nil
}

// runner is the execution channel subcommands hold: the shared Runner surface
// plus teardown.
type runner interface {
	ssh.Runner
	Close() error
}

// connectRunner picks the execution channel: the SSH client, or a local
// process runner when hostingctl runs on the managed host itself.
func (s *services) connectRunner(local bool) (runner, *ui.RemoteOutput, error) {
	if local {
		out := ui.NewRemoteOutput("localhost")
		return ssh.NewLocalRunner(s.cfg.Remote.CommandTimeout, out), out, nil
	}
	return s.connectRemote()
}
