// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/sailtest"
	"github.com/molecula/rdfsail/server"
)

// CheckCommand runs the isolation checks against the configured store.
// The checks write to a reserved context and clear it when done.
type CheckCommand struct {
	Server *server.Command

	// Standard input/output
	*rdfsail.CmdIO
}

// NewCheckCommand returns a new instance of CheckCommand.
func NewCheckCommand(stdin io.Reader, stdout, stderr io.Writer) *CheckCommand {
	return &CheckCommand{
		Server: server.NewCommand(stdin, stdout, stderr),
		CmdIO:  rdfsail.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the check command. It fails if any check fails.
func (cmd *CheckCommand) Run(ctx context.Context) error {
	defer cmd.Server.Close()
	if err := cmd.Server.Start(); err != nil {
		return err
	}

	var failed int
	sailtest.Check(ctx, cmd.Server.Store, func(r sailtest.Result) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.Stdout, "FAIL %-16s %-18s %v\n", r.Scenario, r.Level, r.Err)
			return
		}
		fmt.Fprintf(cmd.Stdout, "ok   %-16s %s\n", r.Scenario, r.Level)
	})
	if failed > 0 {
		return fmt.Errorf("%d isolation checks failed", failed)
	}
	return nil
}
