package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version and gitHash are stamped at build time via -ldflags; they default to "unknown" so a
// plain `go build` still produces a usable binary.
var (
	version = "unknown"
	gitHash = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "kelp",
	Short: "kelp runs a market-making bot backed by the balance & reservation manager",
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tradeCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(balancesCmd)
}

// Execute runs the root command; main() should call this and exit non-zero on error.
func Execute() {
	if e := rootCmd.Execute(); e != nil {
		fmt.Fprintln(os.Stderr, e)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(ccmd *cobra.Command, args []string) {
		fmt.Printf("kelp %s [%s]\n", version, gitHash)
	},
}
