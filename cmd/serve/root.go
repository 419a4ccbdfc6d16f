package serve

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dTuple/cmd/util"
	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/ValentinKolb/dTuple/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the development server",
		Long:    `Start the in-memory development server. It speaks the driver's wire protocol and offers a few builtin functions (echo, box.info.version, sleep, error, os.hostname). The configuration can be set via command line flags or environment variables. The format of the environment variables is DTUPLE_<flag> (e.g. DTUPLE_USERS=admin=secret)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:3301", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:3301, /tmp/dtuple.sock, ...)"))

	key = "server-version"
	ServeCmd.PersistentFlags().String(key, "dtuple-dev", cmdUtil.WrapString("The version announced in the greeting"))

	key = "users"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of users in the format 'user=password'. If empty no authentication is required"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("How many requests of one connection are handled concurrently"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Version = viper.GetString("server-version")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport.MaxWorkersPerConn = viper.GetInt("workers")

	// parse users
	serveCmdConfig.Users = make(map[string]string)
	if users := viper.GetString("users"); users != "" {
		for _, user := range strings.Split(users, ",") {
			name, password, ok := strings.Cut(strings.TrimSpace(user), "=")
			if !ok || name == "" {
				return fmt.Errorf("invalid user format: %s (expected user=password)", user)
			}
			serveCmdConfig.Users[name] = password
		}
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the development server and stops it on SIGINT / SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport(*serveCmdConfig)
	if err != nil {
		return err
	}

	serv := server.NewTupleServer(*serveCmdConfig, t, s)
	cmdUtil.ServeMetrics(viper.GetString("metrics-endpoint"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = serv.Close()
	}()

	return serv.Serve()
}
