package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/spf13/cobra"
)

func (a *App) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the shared session summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			st, err := api.SharedStats(cmd.Context())
			if err != nil {
				return err
			}

			table := a.ui.Table([]string{"FIELD", "VALUE"})
			_ = table.Append([]string{"Session", st.SessionName})
			_ = table.Append([]string{"ID", st.SessionID})
			_ = table.Append([]string{"Status", StatusColor(st.Status)})
			_ = table.Append([]string{"Domain", st.SessionDomain})
			_ = table.Append([]string{"Proxy", st.SessionProxy})
			_ = table.Append([]string{"Active users", strconv.FormatInt(st.TotalActiveUsers, 10)})
			_ = table.Append([]string{"Last login", formatTime(st.LastLoginAt)})
			if err := table.Render(); err != nil {
				return err
			}

			if st.NeedsSetup {
				a.ui.Warning("Shared session needs setup: run 'tmsctl seed %s'", st.SessionID)
			}
			return nil
		},
	}
}

func (a *App) newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage sessions",
	}

	var mine bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			var sessions []*models.SessionView
			if mine {
				sessions, err = api.MySessions(cmd.Context())
			} else {
				sessions, err = api.ListSessions(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				a.ui.Info("No sessions.")
				return nil
			}
			return a.renderSessions(sessions)
		},
	}
	list.Flags().BoolVar(&mine, "mine", false, "list the sessions assigned to the caller")

	markReady := &cobra.Command{
		Use:   "mark-ready <session-id>",
		Short: "Promote the shared session to READY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			view, err := api.MarkReady(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.ui.Success("Session %s is %s", view.Name, StatusColor(view.Status))
			return nil
		},
	}

	var kind, detail string
	fail := &cobra.Command{
		Use:   "fail <session-id>",
		Short: "Record an AUTH_ERROR or PROXY_ERROR for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := models.ParseSessionStatus(kind)
			if err != nil || !st.IsFailure() {
				return fmt.Errorf("%w: --kind must be AUTH_ERROR or PROXY_ERROR", common.ErrValidation)
			}
			api, err := a.api()
			if err != nil {
				return err
			}
			view, err := api.ReportFailure(cmd.Context(), args[0], st, detail)
			if err != nil {
				return err
			}
			a.ui.Warning("Session %s marked %s", view.ID, StatusColor(view.Status))
			return nil
		},
	}
	fail.Flags().StringVar(&kind, "kind", string(models.StatusAuthError), "failure kind: AUTH_ERROR or PROXY_ERROR")
	fail.Flags().StringVar(&detail, "detail", "", "free-form detail stored in the session log")

	cmd.AddCommand(list, markReady, fail)
	return cmd
}

func (a *App) renderSessions(sessions []*models.SessionView) error {
	table := a.ui.Table([]string{"ID", "NAME", "STATUS", "VERSION", "ENCRYPTION", "LAST SYNC"})
	for _, s := range sessions {
		enc := common.StringValue(s.BundleEncryption)
		if enc == "" && s.BundleKey != nil {
			enc = "none"
		}
		if err := table.Append([]string{
			s.ID,
			s.Name,
			StatusColor(s.Status),
			strconv.FormatInt(s.BundleVersion, 10),
			enc,
			formatTime(s.LastSyncedAt),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
