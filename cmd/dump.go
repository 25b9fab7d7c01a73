// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/molecula/rdfsail/ctl"
	"github.com/spf13/cobra"
)

func newDumpCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	dumper := ctl.NewDumpCommand(stdin, stdout, stderr)
	var contexts []string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Write committed statements as CSV.",
		Long: `
Writes the committed statements matching the subject, predicate, object
and context filters as CSV rows of subj,pred,obj,ctx. Zero matches any
value.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dumper.Contexts = dumper.Contexts[:0]
			for _, s := range contexts {
				v, err := strconv.ParseUint(s, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid context %q", s)
				}
				dumper.Contexts = append(dumper.Contexts, v)
			}
			return dumper.Run(context.Background())
		},
	}
	flags := dumpCmd.Flags()
	flags.Uint64Var(&dumper.Subj, "subj", 0, "Subject filter.")
	flags.Uint64Var(&dumper.Pred, "pred", 0, "Predicate filter.")
	flags.Uint64Var(&dumper.Obj, "obj", 0, "Object filter.")
	flags.StringSliceVar(&contexts, "contexts", nil, "Comma separated contexts. 0 is the default context.")
	flags.BoolVar(&dumper.IncludeInferred, "inferred", false, "Include inferred statements.")
	ctl.BuildServerFlags(dumpCmd, dumper.Server)
	return dumpCmd
}
