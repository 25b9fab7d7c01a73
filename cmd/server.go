// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/molecula/rdfsail/ctl"
	"github.com/molecula/rdfsail/server"
	"github.com/spf13/cobra"
)

// Server is global so that tests can control and verify it.
var Server *server.Command

func newServeCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Server = server.NewCommand(stdin, stdout, stderr)
	serveCmd := &cobra.Command{
		Use:   "server",
		Short: "Hold the store open and serve metrics.",
		Long: `rdfsail server opens the store, keeping its data directory
locked, and serves Prometheus metrics if metric.bind is set.
The log file is reopened on SIGHUP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer Server.Close()
			if err := Server.Start(); err != nil {
				return fmt.Errorf("error running server: %v", err)
			}
			fmt.Fprintf(Server.Stderr, "Using data from: %s\n", Server.Config.DataDir)

			// First signal causes the server to shut down gracefully.
			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(c)
			select {
			case sig := <-c:
				fmt.Fprintf(Server.Stderr, "Received %s; gracefully shutting down...\n", sig.String())

				// Second signal causes a hard shutdown.
				go func() { <-c; os.Exit(1) }()

				return Server.Close()
			case <-Server.Done:
				fmt.Fprintf(Server.Stderr, "Server closed externally\n")
			}
			return nil
		},
	}
	ctl.BuildServerFlags(serveCmd, Server)
	return serveCmd
}
