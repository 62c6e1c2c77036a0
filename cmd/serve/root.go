package serve

import (
	"errors"
	"os"
	"time"

	cmdUtil "github.com/ValentinKolb/hed/cmd/util"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/server"
	"github.com/ValentinKolb/hed/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the hed server",
		Long:    `Start the hed server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is HED_<flag> (e.g. HED_DB_PATH=/var/lib/hed/hed.db)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, cmdUtil.DefaultEndpoint, cmdUtil.WrapString("The unix socket on which the server will listen"))

	key = "socket-mode"
	ServeCmd.PersistentFlags().String(key, "0660", cmdUtil.WrapString("Permission bits of the socket file (octal)"))

	key = "max-connections"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Maximum number of simultaneous connections, 0 for no limit"))

	key = "max-message-kb"
	ServeCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("Maximum size of a single message (in KB)"))

	key = "db-path"
	ServeCmd.PersistentFlags().String(key, "hed.db", cmdUtil.WrapString("Path of the repository file. During recovery enabled operation a snapshot is kept next to it with the suffix -backup"))

	key = "tables"
	ServeCmd.PersistentFlags().String(key, "hosts,nets", cmdUtil.WrapString("Comma-separated list of tables the repository serves. Missing tables are created unless the repository is read-only"))

	key = "read-only"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Open the repository read-only, write methods fail"))

	key = "recovery"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Snapshot the repository before every write so the last write can be rolled back"))

	key = "file-mode"
	ServeCmd.PersistentFlags().String(key, "0600", cmdUtil.WrapString("Permission bits of the repository file (octal)"))

	key = "read-group"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Group (name or id) allowed to call read methods. Unset grants the methods to group 0 only, the super user may always call every method"))

	key = "write-group"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Group (name or id) allowed to call write methods"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Write timeout of a reply in seconds"))

	key = "halt-timeout"
	ServeCmd.PersistentFlags().Int64(key, 10, cmdUtil.WrapString("How long to wait for open connections on shutdown (in seconds)"))

	key = "stats-interval"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Log repository statistics every n seconds, 0 disables"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of an HTTP endpoint serving prometheus metrics under /metrics (e.g. localhost:9100), empty disables"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	socketMode, err := cmdUtil.ParseFileMode(viper.GetString("socket-mode"))
	if err != nil {
		return err
	}
	fileMode, err := cmdUtil.ParseFileMode(viper.GetString("file-mode"))
	if err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.SocketMode = os.FileMode(socketMode)
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.MaxMessageKB = viper.GetInt("max-message-kb")
	serveCmdConfig.DBPath = viper.GetString("db-path")
	serveCmdConfig.Tables = cmdUtil.SplitList(viper.GetString("tables"))
	serveCmdConfig.ReadOnly = viper.GetBool("read-only")
	serveCmdConfig.Recovery = viper.GetBool("recovery")
	serveCmdConfig.FileMode = os.FileMode(fileMode)
	serveCmdConfig.ReadGroup = viper.GetString("read-group")
	serveCmdConfig.WriteGroup = viper.GetString("write-group")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.HaltTimeoutSecond = viper.GetInt64("halt-timeout")
	serveCmdConfig.StatsIntervalSecond = viper.GetInt64("stats-interval")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	return serveCmdConfig.Validate()
}

// run starts the hed server and serves until a termination signal arrives.
// The signal is returned as *server.ShutdownError once connections drained.
func run(cmd *cobra.Command, _ []string) error {
	s, err := server.NewServer(*serveCmdConfig, unix.NewServerConnector())
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			server.Logger.Errorf("Failed to close server: %v", err)
		}
	}()

	err = s.Run(cmd.Context())
	if !errors.Is(err, server.ErrShutdown) {
		return err
	}

	timeout := time.Duration(serveCmdConfig.HaltTimeoutSecond) * time.Second
	if haltErr := s.Halt(timeout); haltErr != nil {
		server.Logger.Warningf("%v", haltErr)
	}
	return err
}
