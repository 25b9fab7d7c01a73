// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/molecula/rdfsail/ctl"
	"github.com/spf13/cobra"
)

func newCheckCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	checker := ctl.NewCheckCommand(stdin, stdout, stderr)
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check the isolation guarantees of the configured store.",
		Long: `
Runs the isolation level checks against the configured store at every
level it supports. The checks write to a reserved context, which is
cleared before and after each check.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checker.Run(context.Background())
		},
	}
	ctl.BuildServerFlags(checkCmd, checker.Server)
	return checkCmd
}
