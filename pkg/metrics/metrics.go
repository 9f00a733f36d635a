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

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "requests_total",
			Help:      "Total number of generator requests.",
			Subsystem: "fabricgen",
		},
		[]string{"generator", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "request_duration_seconds",
			Help:      "Generator request duration in seconds.",
			Subsystem: "fabricgen",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"generator", "status"},
	)

	objectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "saved_objects_total",
			Help:      "Total number of objects saved by generators.",
			Subsystem: "fabricgen",
		},
		[]string{"generator", "kind"},
	)

	cablesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "cables_total",
			Help:      "Total number of planned cables by outcome.",
			Subsystem: "fabricgen",
		},
		[]string{"generator", "action"},
	)

	skippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "skipped_regenerations_total",
			Help:      "Total number of downstream objects whose checksum was unchanged.",
			Subsystem: "fabricgen",
		},
		[]string{"generator"},
	)

	coalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "coalesced_requests_total",
			Help:      "Total number of requests merged into an identical pending request.",
			Subsystem: "fabricgen",
		},
		[]string{"generator"},
	)

	validationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "validation_error_total",
			Help:      "Total number of validation errors.",
			Subsystem: "fabricgen",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(objectsTotal)
	prometheus.MustRegister(cablesTotal)
	prometheus.MustRegister(skippedTotal)
	prometheus.MustRegister(coalescedTotal)
	prometheus.MustRegister(validationErrorsTotal)
}

func Add(generator string, code int, duration time.Duration) {
	status := fmt.Sprintf("%d", code)
	requestsTotal.WithLabelValues(generator, status).Inc()
	requestDuration.WithLabelValues(generator, status).Observe(duration.Seconds())
}

func AddObjects(generator, kind string, n int) {
	objectsTotal.WithLabelValues(generator, kind).Add(float64(n))
}

func AddCables(generator, action string, n int) {
	cablesTotal.WithLabelValues(generator, action).Add(float64(n))
}

func AddSkipped(generator string, n int) {
	skippedTotal.WithLabelValues(generator).Add(float64(n))
}

func AddCoalesced(generator string) {
	coalescedTotal.WithLabelValues(generator).Inc()
}

func AddValidationError(errorType string) {
	validationErrorsTotal.WithLabelValues(errorType).Inc()
}
