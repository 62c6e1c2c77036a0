package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ValentinKolb/hed/cmd/kv"
	"github.com/ValentinKolb/hed/cmd/serve"
	"github.com/ValentinKolb/hed/rpc/server"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hed",
		Short: "network configuration service",
		Long: fmt.Sprintf(`hed (v%s)

A network configuration service: a versioned, multi-table key/value
repository served to local processes over an authenticated unix socket.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hed",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hed v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
// A server stopped by a signal exits with 128 + the signal number.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var shutdown *server.ShutdownError
	if errors.As(err, &shutdown) {
		return shutdown.ExitCode()
	}
	return 1
}
