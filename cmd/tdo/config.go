// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
	"go.daqcore.io/tdo/orchestrator"
)

const (
	defaultTokenConnection = "token_connection"
	defaultTDConnection    = "td_connection"
	defaultBusyConnection  = "busy_connection"

	defaultQueueCapacity = 100
)

// ConnectionConfig declares one in-process queue. Kind selects the message
// type carried by the connection.
type ConnectionConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Capacity int    `yaml:"capacity"`
}

// AgentConfig enables the peripheral trigger inhibit agent.
type AgentConfig struct {
	Enabled            bool   `yaml:"enabled"`
	DecisionConnection string `yaml:"decision_connection"`
	InhibitConnection  string `yaml:"inhibit_connection"`
	Threshold          uint32 `yaml:"threshold"`
}

// FileConfig is the daemon configuration file.
type FileConfig struct {
	TokenConnection string `yaml:"token_connection"`
	TDConnection    string `yaml:"td_connection"`
	BusyConnection  string `yaml:"busy_connection"`

	Connections []ConnectionConfig `yaml:"connections"`

	// Orchestrator, when present, is applied as the initial configure
	// payload; the run controller can reconfigure over the control API.
	Orchestrator orchestrator.ConfParams `yaml:"orchestrator"`

	InhibitAgent AgentConfig `yaml:"inhibit_agent"`
}

func loadConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &FileConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	if cfg.TokenConnection == "" {
		cfg.TokenConnection = defaultTokenConnection
	}
	if cfg.TDConnection == "" {
		cfg.TDConnection = defaultTDConnection
	}
	if cfg.BusyConnection == "" {
		cfg.BusyConnection = defaultBusyConnection
	}
	return cfg, nil
}

// buildIOManager registers the mandatory connections, the declared extra
// connections and a decision queue per configured TRB app.
func buildIOManager(cfg *FileConfig) (*iomanager.IOManager, error) {
	iom := iomanager.New()

	if err := iomanager.Register[messages.TriggerDecisionToken](iom, iomanager.NewQueue[messages.TriggerDecisionToken](cfg.TokenConnection, defaultQueueCapacity)); err != nil {
		return nil, err
	}
	if err := iomanager.Register[messages.TriggerDecision](iom, iomanager.NewQueue[messages.TriggerDecision](cfg.TDConnection, defaultQueueCapacity)); err != nil {
		return nil, err
	}
	if err := iomanager.Register[messages.TriggerInhibit](iom, iomanager.NewQueue[messages.TriggerInhibit](cfg.BusyConnection, defaultQueueCapacity)); err != nil {
		return nil, err
	}

	for _, conn := range cfg.Connections {
		capacity := conn.Capacity
		if capacity <= 0 {
			capacity = defaultQueueCapacity
		}
		var err error
		switch conn.Kind {
		case "decision":
			err = iomanager.Register[messages.TriggerDecision](iom, iomanager.NewQueue[messages.TriggerDecision](conn.Name, capacity))
		case "token":
			err = iomanager.Register[messages.TriggerDecisionToken](iom, iomanager.NewQueue[messages.TriggerDecisionToken](conn.Name, capacity))
		case "inhibit":
			err = iomanager.Register[messages.TriggerInhibit](iom, iomanager.NewQueue[messages.TriggerInhibit](conn.Name, capacity))
		case "fragment":
			err = iomanager.Register[messages.Fragment](iom, iomanager.NewQueue[messages.Fragment](conn.Name, capacity))
		default:
			err = fmt.Errorf("unknown connection kind %q for %s", conn.Kind, conn.Name)
		}
		if err != nil {
			return nil, err
		}
	}

	// Decision queues for destinations not declared explicitly.
	for _, app := range cfg.Orchestrator.DataflowApplications {
		if _, err := iomanager.GetSender[messages.TriggerDecision](iom, app.ConnectionUID); err == nil {
			continue
		}
		if err := iomanager.Register[messages.TriggerDecision](iom, iomanager.NewQueue[messages.TriggerDecision](app.ConnectionUID, defaultQueueCapacity)); err != nil {
			return nil, err
		}
	}

	return iom, nil
}
