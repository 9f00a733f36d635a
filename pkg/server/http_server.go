/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/pkg/config"
	"github.com/NVIDIA/fabricgen/pkg/generators"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
	"github.com/NVIDIA/fabricgen/pkg/models"
	"github.com/NVIDIA/fabricgen/pkg/transforms"
)

const (
	KeyUID    = "uid"
	KeyBranch = "branch"
	KeyNodeID = "node_id"
)

type HttpServer struct {
	ctx   context.Context
	cfg   *config.Config
	srv   *http.Server
	async *asyncController
}

var srv *HttpServer

func InitHttpServer(ctx context.Context, cfg *config.Config) error {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	srv = initHttpServer(ctx, cfg, client)
	return nil
}

// NewClient connects to the graph platform, or loads the simulation model into an in-memory platform
func NewClient(ctx context.Context, cfg *config.Config) (infrahub.Client, error) {
	if len(cfg.SimulationModelPath) != 0 {
		klog.Infof("Using simulation model %s", cfg.SimulationModelPath)
		client, _, err := models.NewClientFromFile(ctx, cfg.SimulationModelPath)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	klog.Infof("Using platform at %s", cfg.Infrahub.Address)
	return infrahub.NewClient(cfg.ClientConfig())
}

func initHttpServer(ctx context.Context, cfg *config.Config, client infrahub.Client) *HttpServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/generate", generate)
	mux.HandleFunc("/v1/result", getresult)
	mux.HandleFunc("/v1/transform/{name}", transform)
	mux.HandleFunc("/healthz", healthz)
	mux.Handle("/metrics", promhttp.Handler())

	var batchSize int
	if cfg.BatchSize != nil {
		batchSize = *cfg.BatchSize
	}

	return &HttpServer{
		ctx: ctx,
		cfg: cfg,
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler: mux,
		},
		async: newAsyncController(ctx, client, batchSize, cfg.RequestAggregationDelay),
	}
}

func GetRunGroup() (func() error, func(error)) {
	return srv.Start, srv.Stop
}

func (s *HttpServer) Start() error {
	if s.cfg.HTTP.SSL {
		klog.Infof("Starting HTTPS server on port %d", s.cfg.HTTP.Port)
		return s.srv.ListenAndServeTLS(s.cfg.SSL.Cert, s.cfg.SSL.Key)
	}
	klog.Infof("Starting HTTP server on port %d", s.cfg.HTTP.Port)
	return s.srv.ListenAndServe()
}

func (s *HttpServer) Stop(err error) {
	klog.Infof("Stopping HTTP server: %v", err)
	s.async.queue.Shutdown()
	if err := s.srv.Shutdown(s.ctx); err != nil {
		klog.Errorf("Error during HTTP server shutdown: %v", err)
	}
	klog.Infof("Stopped HTTP server")
}

func (s *HttpServer) branch(name string) string {
	if len(name) != 0 {
		return name
	}
	return s.cfg.Infrahub.DefaultBranch
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func generate(w http.ResponseWriter, r *http.Request) {
	req := readRequest(w, r)
	if req == nil {
		return
	}

	uid, err := srv.async.queue.Submit(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(uid))
}

func readRequest(w http.ResponseWriter, r *http.Request) *generators.Request {
	if r.Method != http.MethodPost {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read request body", http.StatusInternalServerError)
		return nil
	}
	defer func() { _ = r.Body.Close() }()

	req, err := generators.GetRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	if _, err := srv.async.registry.Get(req.Generator); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	req.Branch = srv.branch(req.Branch)

	klog.Info(req.String())

	return req
}

func getresult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}

	uid := r.URL.Query().Get(KeyUID)
	if len(uid) == 0 {
		http.Error(w, "must specify request uid", http.StatusBadRequest)
		return
	}

	res := srv.async.queue.Get(uid)
	if len(res.Message) != 0 {
		http.Error(w, res.Message, res.Status)
	} else {
		data, err := json.Marshal(res)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		_, _ = w.Write(data)
	}
}

func transform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}

	name := r.PathValue("name")
	if err := transforms.Validate(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	nodeID := query.Get(KeyNodeID)
	if len(nodeID) == 0 {
		http.Error(w, "must specify data center node_id", http.StatusBadRequest)
		return
	}

	f, err := transforms.Load(r.Context(), srv.async.client, srv.branch(query.Get(KeyBranch)), nodeID)
	if err != nil {
		klog.Error(err.Error())
		httpErr := toHTTPError(err)
		http.Error(w, httpErr.Error(), httpErr.Code())
		return
	}

	buf := &bytes.Buffer{}
	if err := transforms.Render(buf, name, f); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", transforms.ContentType(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
