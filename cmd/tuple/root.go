package tuple

import (
	"github.com/ValentinKolb/dTuple/cmd/util"
	"github.com/ValentinKolb/dTuple/rpc/client"
	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcClient *client.Client

	// TupleCommands are the client commands, they share the connection flags
	TupleCommands = []*cobra.Command{pingCmd, callCmd, evalCmd, perfTestCmd}
)

func init() {
	for _, cmd := range TupleCommands {
		util.SetupRPCClientFlags(cmd)
		cmd.PersistentPreRunE = setupClient
		cmd.PersistentPostRunE = closeClient
	}
}

// setupClient initializes the client, no connection is opened yet
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	connector, err := util.GetClientConnector()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewClient(util.GetClientConfig(), connector, s)
	if err != nil {
		return err
	}

	util.ServeMetrics(viper.GetString("metrics-endpoint"))
	return nil
}

func closeClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}
