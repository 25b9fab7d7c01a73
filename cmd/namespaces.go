// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/molecula/rdfsail/ctl"
	"github.com/spf13/cobra"
)

func newNamespacesCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	ns := ctl.NewNamespacesCommand(stdin, stdout, stderr)
	nsCmd := &cobra.Command{
		Use:   "namespaces [set <prefix> <name> | remove <prefix> | clear]",
		Short: "List or change namespace prefixes.",
		Long: `
Without arguments, lists the namespace bindings of the store in the
order they were made. Otherwise binds, unbinds or clears prefixes.
`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns.Args = args
			return ns.Run(context.Background())
		},
	}
	ctl.BuildServerFlags(nsCmd, ns.Server)
	return nsCmd
}
