// Package cmd is for command line interactions with the gambit
// application.
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jlumpe/gambit/internal/query"
)

// stderr is for logging to Stderr (without an annoying timestamp)
var stderr = log.New(os.Stderr, "", 0)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "gambit",
	Short: `Identify bacterial genome assemblies by k-mer signature.
Queries are compared against a curated reference database under the Jaccard distance`,
	Version: query.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		stderr.Fatalf("%v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("db", "d", "", "path to the reference database directory")
	rootCmd.PersistentFlags().Int("cores", 0, "number of worker threads (default: all hardware threads)")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("cores", rootCmd.PersistentFlags().Lookup("cores"))
	viper.BindEnv("db", "GAMBIT_DB_PATH")
}
