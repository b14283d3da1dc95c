package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the qconn release, set at build time with -ldflags.
var Version = "0.1.0"

var (
	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "qconn",
		Short: "symmetric promise-forwarding connections",
		Long: fmt.Sprintf(`qconn (v%s)

Serve a demo root value over TCP, a unix socket or stdio, and call
operations on the root of a remote peer.

Every flag can also be set through the environment as QCONN_<FLAG>
(e.g. QCONN_LOG_LEVEL=debug), from .env / .env.local files, or from a
qconn.yaml file in the working directory.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of qconn",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qconn v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(versionCmd)

	key := "log-level"
	rootCmd.PersistentFlags().String(key, "info", "log level (debug, info, warn, error)")
	key = "log-format"
	rootCmd.PersistentFlags().String(key, "text", "log format (text, json)")
	key = "max-frame-bytes"
	rootCmd.PersistentFlags().Int(key, 8*1024*1024, "largest frame accepted from the peer, in bytes (0 disables the limit)")
	key = "max-local-entries"
	rootCmd.PersistentFlags().Int(key, 0, "limit on outstanding requests and exported values (0 means unlimited)")
	key = "id-format"
	rootCmd.PersistentFlags().String(key, "ulid", "format of generated identifiers (ulid, uuid)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads in config files and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("qconn")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	viper.SetConfigName("qconn")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

// bindFlags binds the command's flags, inherited ones included, to viper.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}
