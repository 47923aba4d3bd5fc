// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"go.daqcore.io/tdo/orchestrator"
)

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func renderCommandResult(w http.ResponseWriter, r *http.Request, command string, err error) {
	if err != nil {
		log.WithError(err).Errorf("Command %s failed", command)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, statusResponse{Status: "ok"})
}

// ConfigureHandler decodes the configure payload and applies it.
func ConfigureHandler(w http.ResponseWriter, r *http.Request, module Module) {
	var params orchestrator.ConfParams
	if err := render.DecodeJSON(r.Body, &params); err != nil {
		log.WithError(err).Error("Failed to decode configure payload")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	renderCommandResult(w, r, "configure", module.Configure(params))
}

// StartHandler decodes the start payload and begins a run.
func StartHandler(w http.ResponseWriter, r *http.Request, module Module) {
	var params orchestrator.StartParams
	if err := render.DecodeJSON(r.Body, &params); err != nil {
		log.WithError(err).Error("Failed to decode start payload")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	renderCommandResult(w, r, "start", module.Start(params))
}

// StopHandler drains and freezes the current run.
func StopHandler(w http.ResponseWriter, r *http.Request, module Module) {
	renderCommandResult(w, r, "stop", module.Stop())
}

// ScrapHandler clears the destination configuration.
func ScrapHandler(w http.ResponseWriter, r *http.Request, module Module) {
	renderCommandResult(w, r, "scrap", module.Scrap())
}

// InfoHandler serves the monitoring record. Reading it resets the
// counters.
func InfoHandler(w http.ResponseWriter, r *http.Request, module Module) {
	render.JSON(w, r, module.GetInfo())
}

// InternalStateHandler serves the debugging state description.
func InternalStateHandler(w http.ResponseWriter, r *http.Request, module Module) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(module.InternalState().AsJSON())
}

// PingHandler ...
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

func accessLogDecorator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Control request served")
	})
}
