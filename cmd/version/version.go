package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mrInvincible29/Qguardarr/cmd"
	"github.com/mrInvincible29/Qguardarr/config"
)

var command = &cobra.Command{
	Use:   "version",
	Short: "Display version",
	Args:  cobra.MatchAll(cobra.ExactArgs(0), cobra.OnlyValidArgs),
	Run:   run,
}

func init() {
	cmd.RootCmd.AddCommand(command)
}

func run(c *cobra.Command, args []string) {
	fmt.Printf("qguardarr version %s\n", config.Version)
	fmt.Printf("- os/type: %s\n", runtime.GOOS)
	fmt.Printf("- os/arch: %s\n", runtime.GOARCH)
}
