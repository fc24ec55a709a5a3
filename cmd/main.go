// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clrforge/ilmeta/log"
)

var verbose bool

var logger = log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stderr), log.FilterLevel(log.LevelInfo)))

func main() {
	var rootCmd = &cobra.Command{
		Use:   "clrmetadump",
		Short: "An ECMA-335 CLI metadata inspector and editor",
		Long:  "Reads, validates, and rewrites the CLI metadata of .NET PE images",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger = log.NewHelper(log.NewStdLogger(os.Stderr))
			}
		},
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("clrmetadump 0.1.0")
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newTablesCmd())
	rootCmd.AddCommand(newHeapsCmd())
	rootCmd.AddCommand(newMethodsCmd())
	rootCmd.AddCommand(newDisasmCmd())
	rootCmd.AddCommand(newWriteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
