package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newKEVCmd(root *rootFlags) *cobra.Command {
	kev := &cobra.Command{
		Use:   "kev",
		Short: "Manage the cached CISA Known Exploited Vulnerabilities catalog",
	}
	kev.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Download the KEV catalog and store a fresh snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd, root, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.kev.Offline() {
				return errors.New("KEV refresh needs network access; unset trivy.offline / TRIVY_OFFLINE")
			}

			// paksa ambil ulang dari feed
			set, err := a.kev.KEV(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[SBOM-TM] KEV catalog refreshed: %d CVEs (cache=%s)\n", len(set), a.cfg.KEV.Cache)
			return nil
		},
	})
	return kev
}
