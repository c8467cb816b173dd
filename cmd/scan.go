package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/build-progress/internal/app"
)

// newScanCmd prints the source count a cold build would start from.
func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Count the project's source files",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			s := a.Scanner()
			n, err := s.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("scan %s: %w", s.Root(), err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d files under %s matching %s\n", n, s.Root(), s.Pattern())
			return err
		}),
	}
}
