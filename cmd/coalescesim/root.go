package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// envPrefix marks the environment variables that provide flag defaults, for
// example COALESCESIM_LANES=8.
const envPrefix = "COALESCESIM_"

var rootCmd = &cobra.Command{
	Use:   "coalescesim",
	Short: "Simulate lanes whose memory requests go through a coalescer.",
	Long: `coalescesim connects lane agents, a coalescer, and ideal memory ` +
		`controllers, runs the simulation, and reports merged and ` +
		`pass-through traffic. Flag defaults can be set with ` +
		envPrefix + `<FLAG> variables, also read from a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return loadEnvDefaults(cmd, envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env",
		"File that provides environment variables")
}

// execute runs the CLI and returns the exit code.
func execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}

// loadEnvDefaults reads the env file, if any, and applies the prefixed
// variables to the flags that are not given on the command line.
func loadEnvDefaults(cmd *cobra.Command, envFile string) error {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	for _, name := range envFlags {
		if cmd.Flags().Lookup(name) == nil || cmd.Flags().Changed(name) {
			continue
		}

		value, found := os.LookupEnv(envVarName(name))
		if !found {
			continue
		}

		if err := cmd.Flags().Set(name, value); err != nil {
			return err
		}
	}

	return nil
}

func envVarName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
