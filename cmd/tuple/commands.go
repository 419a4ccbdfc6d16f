package tuple

import (
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var (
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Sends a ping and prints the round trip time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := rpcClient.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("pong in %s\n", time.Since(start))
			return nil
		},
	}
	callCmd = &cobra.Command{
		Use:   "call [function] [args...]",
		Short: "Calls a stored function and prints the result tuple",
		Long:  "Calls a stored function. Arguments are parsed as integers, floats, booleans and nil where possible, everything else is sent as a string.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tuple, err := rpcClient.Call(cmd.Context(), args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return printTuple(tuple)
		},
	}
	evalCmd = &cobra.Command{
		Use:   "eval [expression] [args...]",
		Short: "Evaluates an expression on the server and prints the result tuple",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tuple, err := rpcClient.Eval(cmd.Context(), args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return printTuple(tuple)
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseArgs converts command line arguments into tuple values
func parseArgs(args []string) []interface{} {
	values := make([]interface{}, len(args))
	for i, arg := range args {
		values[i] = parseArg(arg)
	}
	return values
}

func parseArg(arg string) interface{} {
	switch arg {
	case "nil":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	return arg
}

func printTuple(tuple []interface{}) error {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(tuple)
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
