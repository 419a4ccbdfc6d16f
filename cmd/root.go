package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTuple/cmd/serve"
	"github.com/ValentinKolb/dTuple/cmd/tuple"
	"github.com/ValentinKolb/dTuple/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtuple",
		Short: "pooled client driver for tuple store servers",
		Long: fmt.Sprintf(`dTuple (v%s)

A client driver for tuple store servers written in Go. Requests are
multiplexed over a pool of long lived connections which is repaired
lazily when connections break.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTuple",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTuple v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(tuple.TupleCommands...)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("optional config file (yaml, toml, json), flags and environment variables take precedence"))
	key = "metrics-endpoint"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("address to serve Prometheus metrics on (e.g. localhost:9100), empty disables it"))

	// bound early so the config file flag is known in util.InitConfig
	_ = viper.BindPFlags(RootCmd.PersistentFlags())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
