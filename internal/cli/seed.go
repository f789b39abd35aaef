package cli

import (
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/seeder"
	"github.com/spf13/cobra"
)

func (a *App) newSeedCmd() *cobra.Command {
	var promptPassword bool

	cmd := &cobra.Command{
		Use:   "seed <session-id>",
		Short: "Log into the TMS and upload a fresh session bundle",
		Long: `seed launches a browser with an empty profile, logs into the TMS with
the master credentials, packs the resulting profile into a bundle and uploads
it for the given session. Progress is reported to the session's event log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptPassword || (a.v.GetString("password") == "" && stdinIsTerminal()) {
				pw, err := PromptPassword(a.ui.ErrOut, "TMS master password: ")
				if err != nil {
					return err
				}
				a.v.Set("password", pw)
			}

			cfg := a.seederConfig(args[0])
			if err := cfg.Validate(); err != nil {
				return err
			}

			api, err := a.api()
			if err != nil {
				return err
			}
			browser, err := a.NewBrowser(cfg, a.log)
			if err != nil {
				return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
			}
			w, err := seeder.New(cfg, api, browser, a.log)
			if err != nil {
				return err
			}

			a.ui.Info("Capturing session %s (login strategy: %s)", cfg.SessionID, cfg.Strategy)
			res, err := w.Run(cmd.Context())
			if err != nil {
				return err
			}

			a.ui.Success("Uploaded bundle %s", res.BundleKey)
			a.ui.VerboseLog("checksum %s, %d bytes, encryption %s", res.Checksum, res.SizeBytes, res.Encryption)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&promptPassword, "prompt-password", false, "read the TMS password from the terminal")
	f.String("login-url", "", "TMS login page")
	f.String("strategy", "", "login success detection: settle or selector")
	f.String("success-selector", "", "CSS selector present only after login (selector strategy)")
	f.Duration("timeout", 0, "login sequence timeout")
	f.Bool("headless", true, "run the browser headless")
	f.String("chrome-path", "", "Chrome executable (default: auto-detect)")
	f.String("profile-dir", "", "parent directory for the temporary browser profile")
	_ = a.v.BindPFlag("seeder.login_url", f.Lookup("login-url"))
	_ = a.v.BindPFlag("seeder.strategy", f.Lookup("strategy"))
	_ = a.v.BindPFlag("seeder.success_selector", f.Lookup("success-selector"))
	_ = a.v.BindPFlag("seeder.login_timeout", f.Lookup("timeout"))
	_ = a.v.BindPFlag("seeder.headless", f.Lookup("headless"))
	_ = a.v.BindPFlag("seeder.chrome_path", f.Lookup("chrome-path"))
	_ = a.v.BindPFlag("seeder.profile_dir", f.Lookup("profile-dir"))

	return cmd
}

func (a *App) seederConfig(sessionID string) seeder.Config {
	return seeder.Config{
		SessionID:        sessionID,
		APIBaseURL:       a.v.GetString("api_base_url"),
		APIToken:         a.v.GetString("api_token"),
		Username:         a.v.GetString("username"),
		Password:         a.v.GetString("password"),
		EncryptionKey:    a.v.GetString("encryption_key"),
		Scheme:           a.v.GetString("seeder.scheme"),
		LoginURL:         a.v.GetString("seeder.login_url"),
		UsernameSelector: a.v.GetString("seeder.username_selector"),
		PasswordSelector: a.v.GetString("seeder.password_selector"),
		SubmitSelector:   a.v.GetString("seeder.submit_selector"),
		Headless:         a.v.GetBool("seeder.headless"),
		ChromePath:       a.v.GetString("seeder.chrome_path"),
		LoginTimeout:     a.v.GetDuration("seeder.login_timeout"),
		Strategy:         a.v.GetString("seeder.strategy"),
		SuccessSelector:  a.v.GetString("seeder.success_selector"),
		SettleQuiet:      a.v.GetDuration("seeder.settle_quiet"),
		ProfileBaseDir:   a.v.GetString("seeder.profile_dir"),
	}
}
