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
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/httperr"
	"github.com/NVIDIA/fabricgen/pkg/generators"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
	"github.com/NVIDIA/fabricgen/pkg/metrics"
)

type asyncController struct {
	ctx      context.Context
	client   infrahub.Client
	registry generators.Registry
	cfg      generators.Config
	queue    *RequestQueue
}

func newAsyncController(ctx context.Context, client infrahub.Client, batchSize int, delay time.Duration) *asyncController {
	c := &asyncController{
		ctx:      ctx,
		client:   client,
		registry: generators.DefaultRegistry(),
		cfg:      generators.Config{Client: client, BatchSize: batchSize},
	}
	c.queue = NewRequestQueue(c.processRequest, delay)
	klog.Infof("Registered generators: %s", strings.Join(c.registry.Names(), ","))
	return c
}

func (c *asyncController) processRequest(req *generators.Request) (*generators.Result, *httperr.Error) {
	klog.InfoS("Running generator", "generator", req.Generator, "branch", req.Branch, "node_id", req.NodeID)
	start := time.Now()

	res, err := c.registry.Run(c.ctx, c.cfg, req)
	code := http.StatusOK
	var httpErr *httperr.Error
	if err != nil {
		klog.Error(err.Error())
		httpErr = toHTTPError(err)
		code = httpErr.Code()
	}
	metrics.Add(req.Generator, code, time.Since(start))

	return res, httpErr
}

// toHTTPError maps generator and platform failures to HTTP status codes
func toHTTPError(err error) *httperr.Error {
	switch {
	case errors.Is(err, generators.ErrUnsupportedGenerator):
		return httperr.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, generators.ErrValidation):
		return httperr.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, infrahub.ErrNotFound):
		return httperr.NewError(http.StatusNotFound, err.Error())
	default:
		return httperr.FromError(err, http.StatusInternalServerError)
	}
}
