// Package cli implements tmsctl, the operator tool for shared TMS sessions:
// it runs the capture worker and inspects sessions and bundles.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tmssession/internal/apiclient"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/seeder"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// API is what the commands need from the session API.
type API interface {
	seeder.API
	RequestDownload(ctx context.Context, sessionID string, expiresInSeconds *int) (*models.SignedURL, error)
	ReportFailure(ctx context.Context, sessionID string, kind models.SessionStatus, detail string) (*models.SessionView, error)
	SharedStats(ctx context.Context) (*models.SharedSessionStats, error)
	ListSessions(ctx context.Context) ([]*models.SessionView, error)
	MySessions(ctx context.Context) ([]*models.SessionView, error)
	MarkReady(ctx context.Context, sessionID string) (*models.SessionView, error)
}

// App holds what commands share. The constructor fields are replaced in
// tests.
type App struct {
	v   *viper.Viper
	ui  *UI
	log logging.Logger

	Version string

	NewAPI     func(baseURL, token string) (API, error)
	NewBrowser func(cfg seeder.Config, log logging.Logger) (seeder.Browser, error)
}

func NewApp(version string) *App {
	return &App{
		v:       viper.New(),
		ui:      NewUI(),
		Version: version,
		NewAPI: func(baseURL, token string) (API, error) {
			c, err := apiclient.New(baseURL, token)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		NewBrowser: func(cfg seeder.Config, log logging.Logger) (seeder.Browser, error) {
			det, err := seeder.NewDetector(cfg)
			if err != nil {
				return nil, err
			}
			return seeder.NewChromeBrowser(cfg, det, log), nil
		},
	}
}

// envBindings maps config keys onto the variable names the worker has
// always been deployed with.
var envBindings = map[string]string{
	"api_base_url":   "API_BASE_URL",
	"api_token":      "SEEDER_API_TOKEN",
	"username":       "TMS_MASTER_USERNAME",
	"password":       "TMS_MASTER_PASSWORD",
	"encryption_key": "SESSION_BUNDLE_ENCRYPTION_KEY",
}

func (a *App) initConfig(cfgFile string) error {
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "tmsctl"))
		}
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("TMSCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()
	for key, env := range envBindings {
		if err := a.v.BindEnv(key, env); err != nil {
			return err
		}
	}

	def := seeder.DefaultConfig()
	a.v.SetDefault("api_base_url", "http://localhost:8080/api/v1")
	a.v.SetDefault("log_level", "info")
	a.v.SetDefault("seeder.login_url", def.LoginURL)
	a.v.SetDefault("seeder.username_selector", def.UsernameSelector)
	a.v.SetDefault("seeder.password_selector", def.PasswordSelector)
	a.v.SetDefault("seeder.submit_selector", def.SubmitSelector)
	a.v.SetDefault("seeder.headless", def.Headless)
	a.v.SetDefault("seeder.login_timeout", def.LoginTimeout)
	a.v.SetDefault("seeder.strategy", def.Strategy)
	a.v.SetDefault("seeder.settle_quiet", def.SettleQuiet)
	a.v.SetDefault("seeder.scheme", def.Scheme)

	if err := a.v.ReadInConfig(); err != nil {
		// An explicit file must exist; the default location is optional.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// NewRootCmd builds the command tree bound to a.
func (a *App) NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "tmsctl",
		Short: "Operate shared TMS sessions",
		Long: `tmsctl captures browser sessions for the shared TMS account and
inspects sessions and their bundles through the session API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.ui.Out = cmd.OutOrStdout()
			a.ui.ErrOut = cmd.ErrOrStderr()
			if err := a.initConfig(cfgFile); err != nil {
				return err
			}
			a.log = logging.New(a.ui.ErrOut, "text", a.v.GetString("log_level"))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.config/tmsctl/config.yaml)")
	pf.BoolVarP(&a.ui.Verbose, "verbose", "v", false, "verbose output")
	pf.String("api-url", "", "session API base url (env API_BASE_URL)")
	pf.String("token", "", "API bearer token (env SEEDER_API_TOKEN)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	_ = a.v.BindPFlag("api_base_url", pf.Lookup("api-url"))
	_ = a.v.BindPFlag("api_token", pf.Lookup("token"))
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(
		a.newSeedCmd(),
		a.newStatsCmd(),
		a.newSessionsCmd(),
		a.newBundleCmd(),
		a.newVersionCmd(),
	)
	return root
}

func (a *App) api() (API, error) {
	return a.NewAPI(a.v.GetString("api_base_url"), a.v.GetString("api_token"))
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tmsctl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "tmsctl %s\n", a.Version)
			return nil
		},
	}
}

// Execute runs tmsctl with os.Args and returns the process exit code.
func Execute(ctx context.Context, version string, stderr io.Writer) int {
	app := NewApp(version)
	root := app.NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
