// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adminbridge is the thin HTTP front door the admin console
// speaks to: it accepts a MODIFYSETTINGS-shaped body, enforces an IP
// allow-list and a narrow method policy, and forwards a validated command
// onto the bus. The CGI console itself is out of scope; this package only
// implements the HTTP side of that interface.
package adminbridge

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/snapwebsites/snapdbproxy/internal/log"
)

// Forwarder applies a validated MODIFYSETTINGS request to the bus. Implemented by *internal/daemon.Daemon in production.
type Forwarder interface {
	ForwardModifySettings(req ModifySettingsRequest) error
}

// ModifySettingsRequest is the JSON body the admin console posts.
type ModifySettingsRequest struct {
	Host          string `json:"host"`
	Field         string `json:"field"`
	Value         string `json:"value"`
	SaveEverywhere bool   `json:"save_everywhere"`
}

// Server is the HTTP bridge. It owns no listener of its own; construct it
// and pass Handler() to http.Server or the daemon's own listener setup.
type Server struct {
	router    *mux.Router
	forwarder Forwarder
	allowlist []net.IPNet
}

// New builds a bridge that only accepts requests from addresses in
// allowedCIDRs.
func New(forwarder Forwarder, allowedCIDRs []string) (*Server, error) {
	s := &Server{forwarder: forwarder}

	for _, c := range allowedCIDRs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, err
		}
		s.allowlist = append(s.allowlist, *ipnet)
	}

	r := mux.NewRouter()
	r.HandleFunc("/modify-settings", s.handleModifySettings).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	s.router = r

	return s, nil
}

// Handler wraps the router with the allow-list and BREW checks, then the
// standard compression, recovery and request-logging middleware stack. The
// two checks sit outside the router so they also apply to requests the
// router answers with its not-found or method-not-allowed handler.
func (s *Server) Handler() http.Handler {
	return handlers.CompressHandler(
		handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
			handlers.LoggingHandler(log.InfoWriter, s.allowlistMiddleware(teapotMiddleware(s.router))),
		),
	)
}

func (s *Server) handleModifySettings(w http.ResponseWriter, r *http.Request) {
	var req ModifySettingsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Field == "" {
		http.Error(w, "field is required", http.StatusBadRequest)
		return
	}
	if !req.SaveEverywhere && req.Host == "" {
		http.Error(w, "host is required unless save_everywhere is set", http.StatusBadRequest)
		return
	}

	if err := s.forwarder.ForwardModifySettings(req); err != nil {
		log.Errorf("adminbridge: forwarding MODIFYSETTINGS: %v", err)
		http.Error(w, "failed to forward settings change", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
