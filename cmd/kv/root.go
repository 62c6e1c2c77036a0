package kv

import (
	"github.com/ValentinKolb/hed/cmd/util"
	"github.com/ValentinKolb/hed/rpc/client"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcRepo *client.RepoClient

	// KeyValueCommands represents the repository command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform repository operations on a hed server",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().String("type", string(TypeRaw), util.WrapString("How values are given and printed (raw, ether, in, in6)"))

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(nextSeqCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(versionCmd)
	KeyValueCommands.AddCommand(setVersionCmd)
	KeyValueCommands.AddCommand(reloadCmd)
	KeyValueCommands.AddCommand(rollbackCmd)
	KeyValueCommands.AddCommand(statsCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC repository client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}
	if _, err := parseValueType(viper.GetString("type")); err != nil {
		return err
	}

	// Create the repository client
	var err error
	rpcRepo, err = client.NewRPCRepo(*util.GetClientConfig(), util.GetTransport())
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcRepo == nil {
		return nil
	}
	return rpcRepo.Close()
}
