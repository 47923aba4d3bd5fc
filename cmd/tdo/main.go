// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"go.daqcore.io/tdo/agents"
	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
	"go.daqcore.io/tdo/orchestrator"
	"go.daqcore.io/tdo/standalone"
)

const defaultAgentQueueTimeout = 100 * time.Millisecond

type options struct {
	LogLevel       string `long:"log-level" default:"info" description:"log level"`
	ConfigFile     string `long:"config" default:"tdo.yaml" description:"connection and module configuration file"`
	ControlAddress string `long:"control-address" default:"0.0.0.0:8090" description:"listen address of the control API"`
}

func main() {
	opts := getCLIArgs()
	setLogLevel(opts.LogLevel)

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration file")
	}

	iom, err := buildIOManager(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to build IO manager")
	}

	orch, err := orchestrator.New(iom, cfg.TokenConnection, cfg.TDConnection, cfg.BusyConnection)
	if err != nil {
		log.WithError(err).Fatal("Failed to create orchestrator")
	}

	if len(cfg.Orchestrator.DataflowApplications) > 0 {
		if err := orch.Configure(cfg.Orchestrator); err != nil {
			log.WithError(err).Fatal("Initial configure failed")
		}
	}

	agent, err := buildInhibitAgent(cfg, iom)
	if err != nil {
		log.WithError(err).Fatal("Failed to create trigger inhibit agent")
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	server := &http.Server{
		Addr:    opts.ControlAddress,
		Handler: standalone.NewHTTPRouter(orch),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("address", opts.ControlAddress).Info("Control API listening")
		return server.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		if agent != nil {
			agent.StopChecking()
		}
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Control API terminated")
	}
}

func getCLIArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}
	return opts
}

func setLogLevel(logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Fatal("Failed to set log level. Valid log levels are:", log.AllLevels)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.JSONFormatter{})
}

func buildInhibitAgent(cfg *FileConfig, iom *iomanager.IOManager) (*agents.TriggerInhibitAgent, error) {
	if !cfg.InhibitAgent.Enabled {
		return nil, nil
	}
	receiver, err := iomanager.GetReceiver[messages.TriggerDecision](iom, cfg.InhibitAgent.DecisionConnection)
	if err != nil {
		return nil, err
	}
	sender, err := iomanager.GetSender[messages.TriggerInhibit](iom, cfg.InhibitAgent.InhibitConnection)
	if err != nil {
		return nil, err
	}
	agent := agents.NewTriggerInhibitAgent("trigger-inhibit-agent", receiver, sender, defaultAgentQueueTimeout)
	agent.SetThresholdForInhibit(cfg.InhibitAgent.Threshold)
	agent.StartChecking(0)
	return agent, nil
}
