// Command ptree manages a tree store on a disk image.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "ptree",
	Short: "Inspect and modify a transactional tree store",
	Long: `ptree operates on a disk image holding a logged disk and a tree store.

Settings come from PTREE_* environment variables, optionally loaded from a
.env file (see --env). The mem backend is not persistent and is only useful
for trying out format.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before the environment")
	rootCmd.AddCommand(formatCmd, inspectCmd, statsCmd, createCmd, rmCmd, writeCmd, catCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
