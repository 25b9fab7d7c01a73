// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/server"
	"github.com/pkg/errors"
)

// LoadCommand adds statements from CSV rows of "subj,pred,obj[,ctx]"
// integer IDs in a single transaction.
type LoadCommand struct {
	// Path is the CSV file to read, or "-" for stdin.
	Path string

	// Inferred loads the rows as inferred statements.
	Inferred bool

	// IsolationLevel of the load transaction.
	IsolationLevel string

	Server *server.Command

	// Standard input/output
	*rdfsail.CmdIO
}

// NewLoadCommand returns a new instance of LoadCommand.
func NewLoadCommand(stdin io.Reader, stdout, stderr io.Writer) *LoadCommand {
	return &LoadCommand{
		Path:           "-",
		IsolationLevel: rdfsail.Serializable.String(),
		Server:         server.NewCommand(stdin, stdout, stderr),
		CmdIO:          rdfsail.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the load command.
func (cmd *LoadCommand) Run(ctx context.Context) error {
	level, err := rdfsail.ParseIsolationLevel(cmd.IsolationLevel)
	if err != nil {
		return err
	}
	triples, err := cmd.read()
	if err != nil {
		return err
	}

	defer cmd.Server.Close()
	if err := cmd.Server.Start(); err != nil {
		return err
	}

	if err := rdfsail.Update(ctx, cmd.Server.Store, level, func(c *rdfsail.Connection) error {
		add := c.AddStatement
		if cmd.Inferred {
			add = c.AddInferredStatement
		}
		for _, t := range triples {
			if err := add(ctx, t.Subj, t.Pred, t.Obj, t.Ctx); err != nil {
				return errors.Wrapf(err, "adding %v", t)
			}
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "loading")
	}
	fmt.Fprintf(cmd.Stdout, "loaded %d statements\n", len(triples))
	return nil
}

// read parses the CSV input.
func (cmd *LoadCommand) read() ([]rdfsail.Triple, error) {
	var r *csv.Reader
	if cmd.Path != "-" {
		f, err := os.Open(cmd.Path)
		if err != nil {
			return nil, errors.Wrap(err, "opening file")
		}
		defer f.Close()
		r = csv.NewReader(f)
	} else {
		r = csv.NewReader(cmd.Stdin)
	}
	r.FieldsPerRecord = -1

	var a []rdfsail.Triple
	for rnum := 1; ; rnum++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "reading")
		}

		// Ignore blank rows.
		if record[0] == "" {
			continue
		} else if len(record) < 3 || len(record) > 4 {
			return nil, fmt.Errorf("bad column count on row %d: col=%d", rnum, len(record))
		}

		var ids [4]rdfsail.ID
		for i, field := range record {
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id on row %d: %q", rnum, field)
			}
			ids[i] = rdfsail.ID(v)
		}
		a = append(a, rdfsail.Triple{Subj: ids[0], Pred: ids[1], Obj: ids[2], Ctx: ids[3]})
	}
	return a, nil
}
