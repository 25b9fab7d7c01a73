// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/server"
	"github.com/pkg/errors"
)

// DumpCommand writes committed statements matching a pattern as CSV rows of
// "subj,pred,obj,ctx", with a fifth "inferred" column for inferred rows.
type DumpCommand struct {
	// Pattern. Zero matches anything.
	Subj, Pred, Obj uint64

	// Contexts restricts the dump. Empty means every context.
	Contexts []uint64

	// IncludeInferred adds inferred statements.
	IncludeInferred bool

	Server *server.Command

	// Standard input/output
	*rdfsail.CmdIO
}

// NewDumpCommand returns a new instance of DumpCommand.
func NewDumpCommand(stdin io.Reader, stdout, stderr io.Writer) *DumpCommand {
	return &DumpCommand{
		Server: server.NewCommand(stdin, stdout, stderr),
		CmdIO:  rdfsail.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the dump command.
func (cmd *DumpCommand) Run(ctx context.Context) error {
	defer cmd.Server.Close()
	if err := cmd.Server.Start(); err != nil {
		return err
	}

	c, err := cmd.Server.Connection()
	if err != nil {
		return err
	}
	defer c.Close()

	contexts := make([]rdfsail.ID, len(cmd.Contexts))
	for i, v := range cmd.Contexts {
		contexts[i] = rdfsail.ID(v)
	}
	itr, err := c.GetStatements(ctx, rdfsail.ID(cmd.Subj), rdfsail.ID(cmd.Pred), rdfsail.ID(cmd.Obj), cmd.IncludeInferred, contexts...)
	if err != nil {
		return err
	}
	defer itr.Close()

	w := csv.NewWriter(cmd.Stdout)
	for itr.Next() {
		t := itr.Triple()
		record := []string{
			strconv.FormatUint(uint64(t.Subj), 10),
			strconv.FormatUint(uint64(t.Pred), 10),
			strconv.FormatUint(uint64(t.Obj), 10),
			strconv.FormatUint(uint64(t.Ctx), 10),
		}
		if t.Inferred {
			record = append(record, "inferred")
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "writing")
		}
	}
	if err := itr.Err(); err != nil {
		return err
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flushing")
}
