package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/app"
)

// newConsumeCmd reads newline-delimited JSON hooks and drives the tracker.
func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume [file]",
		Short: "Track a build from a stream of NDJSON hooks",
		Long: `Reads one JSON hook per line from file, or from stdin when file is
omitted or "-". Each line looks like {"hook":"transform","id":"src/main.ts"}.
A failed build closed by the stream makes the command fail with the build's
error; the cache is left untouched in that case.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withApp(runConsume),
	}
}

func runConsume(cmd *cobra.Command, args []string, a *app.App) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open hook stream: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				a.Logger().Warn("close hook stream", zap.Error(cerr))
			}
		}()
		in = f
	}

	return a.Adapter().Consume(cmd.Context(), in)
}
