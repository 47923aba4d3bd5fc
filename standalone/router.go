// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package standalone exposes the lifecycle commands and the monitoring
// interface of the orchestrator over HTTP for the external run controller
// and the monitoring collector.
package standalone

import (
	"net/http"

	"github.com/go-chi/chi"

	"go.daqcore.io/tdo/monitoring"
	"go.daqcore.io/tdo/orchestrator"
)

// Module is the lifecycle and monitoring surface the router drives.
type Module interface {
	Configure(params orchestrator.ConfParams) error
	Start(params orchestrator.StartParams) error
	Stop() error
	Scrap() error
	GetInfo() monitoring.Info
	InternalState() *monitoring.InternalStateDescription
}

// NewHTTPRouter builds the control router.
func NewHTTPRouter(module Module) *chi.Mux {
	r := chi.NewRouter()
	r.Use(accessLogDecorator)

	r.Post("/configure", func(w http.ResponseWriter, r *http.Request) { ConfigureHandler(w, r, module) })
	r.Post("/start", func(w http.ResponseWriter, r *http.Request) { StartHandler(w, r, module) })
	r.Post("/stop", func(w http.ResponseWriter, r *http.Request) { StopHandler(w, r, module) })
	r.Post("/scrap", func(w http.ResponseWriter, r *http.Request) { ScrapHandler(w, r, module) })
	r.Get("/info", func(w http.ResponseWriter, r *http.Request) { InfoHandler(w, r, module) })
	r.Get("/internalState", func(w http.ResponseWriter, r *http.Request) { InternalStateHandler(w, r, module) })
	r.Get("/ping", PingHandler)
	return r
}
