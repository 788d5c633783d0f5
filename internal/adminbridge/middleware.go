// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adminbridge

import (
	"net"
	"net/http"
)

// allowlistMiddleware rejects any request whose remote address is not
// covered by the server's CIDR allow-list.
func (s *Server) allowlistMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowlist) == 0 {
			http.Error(w, "admin console access is not configured", http.StatusForbidden)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		for _, ipnet := range s.allowlist {
			if ipnet.Contains(ip) {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

// teapotMiddleware reports HTTP 418 for the BREW method.
func teapotMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "BREW" {
			http.Error(w, "I'm a teapot", http.StatusTeapot)
			return
		}
		next.ServeHTTP(w, r)
	})
}
