package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/build-progress/internal/app"
)

// newCacheCmd groups cache inspection commands.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the cross-run cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the totals saved by the last successful build",
		Args:  cobra.NoArgs,
		RunE:  withApp(runCacheShow),
	})
	return cmd
}

func runCacheShow(cmd *cobra.Command, _ []string, a *app.App) error {
	out := cmd.OutOrStdout()

	rec, ok := a.Store().Lookup(cmd.Context())
	if !ok || rec.IsZero() {
		_, err := fmt.Fprintf(out, "no cache record for %s (next build runs cold)\n", a.Config().Project.Dir)
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}
