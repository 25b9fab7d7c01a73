// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/server"
)

// NamespacesCommand lists or changes the namespace bindings of the store.
//
//	(no args)           list bindings
//	set <prefix> <name> bind prefix
//	remove <prefix>     unbind prefix
//	clear               remove every binding
type NamespacesCommand struct {
	Args []string

	Server *server.Command

	// Standard input/output
	*rdfsail.CmdIO
}

// NewNamespacesCommand returns a new instance of NamespacesCommand.
func NewNamespacesCommand(stdin io.Reader, stdout, stderr io.Writer) *NamespacesCommand {
	return &NamespacesCommand{
		Server: server.NewCommand(stdin, stdout, stderr),
		CmdIO:  rdfsail.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the namespaces command.
func (cmd *NamespacesCommand) Run(_ context.Context) error {
	var apply func(ns rdfsail.NamespaceStore) error
	switch {
	case len(cmd.Args) == 0:
		apply = func(ns rdfsail.NamespaceStore) error {
			ns.Iterate(func(n rdfsail.Namespace) bool {
				fmt.Fprintf(cmd.Stdout, "%s\t%s\n", n.Prefix, n.Name)
				return true
			})
			return nil
		}
	case cmd.Args[0] == "set" && len(cmd.Args) == 3:
		apply = func(ns rdfsail.NamespaceStore) error { return ns.Set(cmd.Args[1], cmd.Args[2]) }
	case cmd.Args[0] == "remove" && len(cmd.Args) == 2:
		apply = func(ns rdfsail.NamespaceStore) error { return ns.Remove(cmd.Args[1]) }
	case cmd.Args[0] == "clear" && len(cmd.Args) == 1:
		apply = func(ns rdfsail.NamespaceStore) error { return ns.Clear() }
	default:
		return fmt.Errorf("usage: namespaces [set <prefix> <name> | remove <prefix> | clear]")
	}

	defer cmd.Server.Close()
	if err := cmd.Server.Start(); err != nil {
		return err
	}
	ns := cmd.Server.Store.Namespaces()
	if err := apply(ns); err != nil {
		return err
	}
	return ns.Sync()
}
