// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/google/gops/agent"
	"github.com/snapwebsites/snapdbproxy/internal/config"
	"github.com/snapwebsites/snapdbproxy/internal/daemon"
	"github.com/snapwebsites/snapdbproxy/internal/log"
	"github.com/snapwebsites/snapdbproxy/internal/runtimeEnv"
)

const version = "1.0.0"

func main() {
	var (
		flagConfigFile string
		flagDebug      bool
		flagLogfile    string
		flagNolog      bool
		flagVersion    bool
	)

	flag.StringVar(&flagConfigFile, "config", "/etc/snapwebsites/snapdbproxy.json", "Path to the daemon's JSON configuration file.")
	flag.BoolVar(&flagDebug, "debug", false, "Listen via github.com/google/gops/agent (for debugging).")
	flag.StringVar(&flagLogfile, "logfile", "", "Write log output to this file instead of stderr.")
	flag.BoolVar(&flagNolog, "nolog", false, "Discard all log output.")
	flag.BoolVar(&flagVersion, "version", false, "Print the version and exit.")
	flag.Parse()

	if flagVersion {
		fmt.Println("snapdbproxyd", version)
		return
	}

	if flagDebug {
		if err := agent.Listen(agent.Options{}); err != nil {
			fmt.Fprintf(os.Stderr, "gops/agent.Listen failed: %s\n", err)
			os.Exit(1)
		}
	}

	if flagNolog {
		log.SetOutputDiscard()
	} else if flagLogfile != "" {
		f, err := os.OpenFile(flagLogfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening logfile: %s\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("loading .env: %v", err)
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Errorf("loading configuration: %v", err)
		os.Exit(1)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		log.Errorf("initializing daemon: %v", err)
		os.Exit(1)
	}

	if err := runtimeEnv.DropPrivileges(cfg.RunAsUser, cfg.RunAsGroup); err != nil {
		log.Errorf("dropping privileges: %v", err)
		os.Exit(1)
	}

	fatal := make(chan os.Signal, 1)
	signal.Notify(fatal, syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGFPE, syscall.SIGILL)
	go func() {
		sig := <-fatal
		log.Critf("fatal signal received: %v", sig)
		os.Exit(1)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	signal.Ignore(syscall.SIGHUP)

	if err := d.Run(); err != nil {
		log.Errorf("starting daemon: %v", err)
		os.Exit(1)
	}

	runtimeEnv.SystemdNotifiy(true, "running")
	log.Infof("snapdbproxyd listening, server-name=%q", cfg.ServerName)

	<-shutdown
	runtimeEnv.SystemdNotifiy(false, "stopping")
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
