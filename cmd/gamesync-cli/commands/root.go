package commands

import (
	"context"
	"fmt"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/lib/util/restyutil"
	"gamesync-backend/lib/util/serviceutil"
	"os"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	dumpHttp   *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The configuration file to read.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "A directory to write every http exchange to.")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output.")
}

var rootCmd = &cobra.Command{
	Use:   "gamesync-cli",
	Short: "gamesync-cli compares the results service schedule with the games entered in the club admin portal.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if *dumpHttp == "" {
			return
		}
		out, err := restyutil.NewFilesystemOutput(*dumpHttp)
		if err != nil {
			serviceutil.Fatal("failed to prepare http dump directory", err)
		}
		telemetry.SetMessageOutput(out)
	},
}

// Verbose peeks at the verbose flag before cobra parses the arguments, logging
// has to be set up before any command runs.
func Verbose() bool {
	return slices.Contains(os.Args[1:], "-v") || slices.Contains(os.Args[1:], "--verbose")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
