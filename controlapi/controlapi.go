// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// kvoverlay is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// kvoverlay is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package controlapi exposes a node's operator surface over HTTP: a
// gorilla/mux-routed REST-ish view for humans and scripts, plus a
// gorilla/rpc JSON-RPC endpoint for programmatic control, both backed by
// the same node.Runtime.
package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"
	gorpc "github.com/gorilla/rpc"
	gorpcjson "github.com/gorilla/rpc/json"

	"kvoverlay/node"
	"kvoverlay/proto"
	"kvoverlay/util"
)

// Server is the node's HTTP control surface.
type Server struct {
	rt     *node.Runtime
	router *mux.Router
	srv    *http.Server
}

// New builds a Server bound to rt, wiring both the REST routes and the
// JSON-RPC service onto one mux.Router. metricsPath is the route the
// Prometheus handler is mounted on (config.MetricsConfig.Path); an empty
// string falls back to "/metrics".
func New(rt *node.Runtime, addr, metricsPath string) *Server {
	s := &Server{rt: rt, router: mux.NewRouter()}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	s.router.HandleFunc("/neighbors", s.handleListNeighbors).Methods(http.MethodGet)
	s.router.HandleFunc("/neighbors", s.handleAddNeighbor).Methods(http.MethodPost)
	s.router.HandleFunc("/neighbors/{addr}", s.handleRemoveNeighbor).Methods(http.MethodDelete)
	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/ttl", s.handleSetTTL).Methods(http.MethodPost)
	s.router.Handle(metricsPath, rt.Metrics().Handler())

	rpcServer := gorpc.NewServer()
	rpcServer.RegisterCodec(gorpcjson.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(&ControlService{rt: rt}, ""); err != nil {
		logger.Printf(logger.ERROR, "[controlapi] RPC service registration failed: %v\n", err)
	}
	s.router.Handle("/rpc", rpcServer)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the server's routed http.Handler, for tests that want to
// drive it with httptest without binding a real port.
func (s *Server) Handler() http.Handler { return s.router }

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf(logger.WARN, "[controlapi] shutdown: %v\n", err)
		}
	}()
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleListNeighbors(w http.ResponseWriter, _ *http.Request) {
	list := s.rt.Neighbors().List()
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.String()
	}
	writeJSON(w, http.StatusOK, out)
}

type addNeighborRequest struct {
	Addr string `json:"addr"`
}

func (s *Server) handleAddNeighbor(w http.ResponseWriter, r *http.Request) {
	var req addNeighborRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := util.ParsePeerAddress(req.Addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.rt.Greet(addr); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveNeighbor(w http.ResponseWriter, r *http.Request) {
	addrStr := mux.Vars(r)["addr"]
	addr, err := util.ParsePeerAddress(addrStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.rt.Bye(addr); err != nil {
		logger.Printf(logger.WARN, "[controlapi] BYE to %s failed: %v\n", addr, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Mode string `json:"mode"`
	Key  string `json:"key"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode := proto.Mode(req.Mode)
	if !mode.Valid() {
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	if err := s.rt.Engine().Initiate(r.Context(), mode, req.Key); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Engine().Stats().Snapshot())
}

type setTTLRequest struct {
	TTL int `json:"ttl"`
}

func (s *Server) handleSetTTL(w http.ResponseWriter, r *http.Request) {
	var req setTTLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TTL <= 0 {
		http.Error(w, "ttl must be > 0", http.StatusBadRequest)
		return
	}
	s.rt.Engine().SetTTL(req.TTL)
	w.WriteHeader(http.StatusNoContent)
}
