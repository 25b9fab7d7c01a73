// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/molecula/rdfsail/ctl"
	"github.com/spf13/cobra"
)

func newLoadCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	loader := ctl.NewLoadCommand(stdin, stdout, stderr)
	loadCmd := &cobra.Command{
		Use:   "load [path]",
		Short: "Load statements from a CSV file.",
		Long: `
Adds statements from CSV rows of subj,pred,obj[,ctx] integer IDs in a
single transaction. Reads stdin if no path or "-" is given.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				loader.Path = args[0]
			}
			return loader.Run(context.Background())
		},
	}
	flags := loadCmd.Flags()
	flags.BoolVar(&loader.Inferred, "inferred", false, "Load rows as inferred statements.")
	flags.StringVar(&loader.IsolationLevel, "isolation-level", loader.IsolationLevel, "Isolation level of the load transaction.")
	ctl.BuildServerFlags(loadCmd, loader.Server)
	return loadCmd
}
