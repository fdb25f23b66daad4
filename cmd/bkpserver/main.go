/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// bkpserver hosts the servlets of this machine's source contexts.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	libatm "github.com/jaustindavid/backupnet/atomic"
	"github.com/jaustindavid/backupnet/cfgfile"
	liblog "github.com/jaustindavid/backupnet/logger"
	loglvl "github.com/jaustindavid/backupnet/logger/level"
	"github.com/jaustindavid/backupnet/server"
)

func main() {
	var (
		cfgPath  string
		hostname string
		verbose  bool
		stateDir string
	)

	cmd := &cobra.Command{
		Use:           "bkpserver",
		Short:         "serve this host's source contexts to the backup fleet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, hostname, stateDir, verbose)
		},
	}

	// free the -h shorthand for the hostname override
	cmd.Flags().Bool("help", false, "help for bkpserver")
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "configuration file (required)")
	cmd.Flags().StringVarP(&hostname, "hostname", "h", "", "override the local node name")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "directory for persisted claim maps")
	_ = cmd.MarkFlagRequired("config")

	viper.SetEnvPrefix("BACKUPNET")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config", cmd.Flags().Lookup("config"))
	_ = viper.BindPFlag("state-dir", cmd.Flags().Lookup("state-dir"))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfgPath, hostname, stateDir string, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := liblog.New(ctx)
	if verbose {
		log.SetLevel(loglvl.DebugLevel)
	}

	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return err
		}
		hostname = h
	}
	if stateDir == "" {
		stateDir = filepath.Join(filepath.Dir(cfgPath), "state")
	}

	// the running snapshot: swapped whole on SIGHUP, never mutated
	snap := libatm.NewValue[*cfgfile.Snapshot]()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		s, err := cfgfile.Load(cfgPath)
		if err != nil {
			return err
		}
		snap.Store(s)

		srv, err := server.New(snap.Load(), hostname, stateDir, log)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- srv.Run(runCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			// a user interrupt exits 1 by contract
			return context.Canceled
		case <-hup:
			log.Info("reloading configuration", nil)
			cancel()
			<-done
		case err = <-done:
			cancel()
			if err != nil {
				return err
			}
			return nil
		}
	}
}
