package cli

import (
	"os"

	"github.com/dmitrijs2005/tmssession/internal/bundle"
	"github.com/dmitrijs2005/tmssession/internal/cryptox"
	"github.com/dmitrijs2005/tmssession/internal/filex"
	"github.com/dmitrijs2005/tmssession/internal/netx"
	"github.com/spf13/cobra"
)

func (a *App) newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Work with session bundles",
	}

	var out, checksum string
	decode := &cobra.Command{
		Use:   "decode <file>",
		Short: "Verify, decrypt and extract a bundle into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return a.restore(payload, checksum, out)
		},
	}
	decode.Flags().StringVarP(&out, "out", "o", "profile", "destination directory")
	decode.Flags().StringVar(&checksum, "checksum", "", "expected SHA-256 of the file")

	var fetchOut string
	fetch := &cobra.Command{
		Use:   "fetch <session-id>",
		Short: "Download a session's current bundle and extract it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			signed, err := api.RequestDownload(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			a.ui.VerboseLog("downloading %s", signed.BundleKey)

			payload, err := netx.GetPresigned(cmd.Context(), nil, signed.URL)
			if err != nil {
				return err
			}
			return a.restore(payload, "", fetchOut)
		},
	}
	fetch.Flags().StringVarP(&fetchOut, "out", "o", "profile", "destination directory")

	cmd.AddCommand(decode, fetch)
	return cmd
}

func (a *App) restore(payload []byte, checksum, dest string) error {
	codec, err := bundle.NewCodecFromBase64(a.v.GetString("encryption_key"), cryptox.Scheme(a.v.GetString("seeder.scheme")))
	if err != nil {
		return err
	}
	dest, err = filex.EnsureDir(dest)
	if err != nil {
		return err
	}
	if err := codec.Restore(payload, checksum, dest); err != nil {
		return err
	}
	a.ui.Success("Extracted %d bytes (sha256 %s) into %s", len(payload), cryptox.Checksum(payload), dest)
	return nil
}
