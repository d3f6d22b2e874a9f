/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mblkcomm",
	Short: "Multiblock AMR communication tests",
	Long: `
Builds a multiblock patch hierarchy, fills destination data from source data
across patch, block, singularity and coarse-fine boundaries, and verifies the
result against the analytic field.

mblkcomm side -I input.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		var logger *slog.Logger
		if logger, err = NewLogger(os.Stderr, viper.GetString("logLevel")); err != nil {
			return
		}
		slog.SetDefault(logger)
		return
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mblkcomm.yaml)")
	rootCmd.PersistentFlags().String("logLevel", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "patches processed concurrently, 0 uses every CPU")
	_ = viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("logLevel"))
	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		// Search config in home directory with name ".mblkcomm" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".mblkcomm")
	}
	viper.SetEnvPrefix("MBLKCOMM")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// NewLogger returns a colorized text logger at the named level.
func NewLogger(w io.Writer, level string) (logger *slog.Logger, err error) {
	var lvl slog.Level
	if err = lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger = slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
	return
}
