/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/httperr"
	"github.com/NVIDIA/fabricgen/pkg/generators"
	"github.com/NVIDIA/fabricgen/pkg/metrics"
)

// RequestHistorySize is the number of requests kept for polling
const RequestHistorySize = 100

var ErrQueueClosed = errors.New("request queue is shut down")

// RunFunc runs a single generator request
type RunFunc func(*generators.Request) (*generators.Result, *httperr.Error)

// Completion is the state of a generator request as reported by /v1/result
type Completion struct {
	*generators.Result
	// DownstreamRequests are the IDs of the requests queued for the downstream objects
	DownstreamRequests []string `json:"downstream_requests,omitempty"`

	Status  int    `json:"-"`
	Message string `json:"-"`
}

// RequestQueue runs generator requests after a trailing delay.
// Identical requests submitted while one is pending restart the delay and run once,
// so a child pushed by several parents is regenerated a single time.
// Downstream requests returned by a run are queued the same way.
type RequestQueue struct {
	mutex   sync.Mutex
	run     RunFunc
	delay   time.Duration
	closed  bool
	pending map[string]*pendingRequest
	history *lru.Cache // request ID:*Completion
}

type pendingRequest struct {
	timer *time.Timer
	entry *Completion
}

func NewRequestQueue(run RunFunc, delay time.Duration) *RequestQueue {
	q := &RequestQueue{
		run:     run,
		delay:   delay,
		pending: make(map[string]*pendingRequest),
	}
	q.history, _ = lru.New(RequestHistorySize)
	return q
}

// Submit queues the request and returns its ID
func (q *RequestQueue) Submit(req *generators.Request) (string, error) {
	uid, err := req.Hash()
	if err != nil {
		return "", fmt.Errorf("failed to hash request: %v", err)
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}

	if prev, ok := q.pending[uid]; ok {
		prev.timer.Stop()
		metrics.AddCoalesced(req.Generator)
		klog.V(4).Infof("Request %s coalesced with pending %s", req, uid)
	} else {
		klog.Infof("Request %s queued as %s; running in %s", req, uid, q.delay)
	}

	entry := &Completion{
		Status:  http.StatusAccepted,
		Message: fmt.Sprintf("request ID %s has been created", uid),
	}
	q.history.Add(uid, entry)
	q.pending[uid] = &pendingRequest{
		timer: time.AfterFunc(q.delay, func() { q.process(uid, req, entry) }),
		entry: entry,
	}

	return uid, nil
}

func (q *RequestQueue) process(uid string, req *generators.Request, entry *Completion) {
	q.mutex.Lock()
	if p, ok := q.pending[uid]; ok && p.entry == entry {
		delete(q.pending, uid)
	}
	q.mutex.Unlock()

	klog.Infof("Running request %s: %s", uid, req)
	res, httpErr := q.run(req)

	var downstream []string
	if httpErr == nil {
		for _, next := range res.Downstream {
			id, err := q.Submit(next)
			if err != nil {
				klog.Errorf("Failed to queue downstream request %s: %v", next, err)
				continue
			}
			downstream = append(downstream, id)
		}
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	// a later identical request owns the entry
	if curr, ok := q.history.Get(uid); !ok || curr != entry {
		return
	}

	if httpErr != nil {
		entry.Status = httpErr.Code()
		entry.Message = httpErr.Error()
		klog.Errorf("Request %s failed with HTTP %d: %s", uid, entry.Status, entry.Message)
		return
	}

	entry.Result = res
	entry.DownstreamRequests = downstream
	entry.Status = http.StatusOK
	entry.Message = ""
	klog.Infof("Request %s completed; %d downstream", uid, len(downstream))
}

// Get returns a copy of the request state
func (q *RequestQueue) Get(uid string) Completion {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if entry, ok := q.history.Get(uid); ok {
		return *entry.(*Completion)
	}

	return Completion{
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("request ID %s not found", uid),
	}
}

// Pending returns the number of requests waiting to run
func (q *RequestQueue) Pending() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

// Shutdown drops the pending requests and rejects new ones
func (q *RequestQueue) Shutdown() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true
	for uid, p := range q.pending {
		p.timer.Stop()
		delete(q.pending, uid)
	}
	klog.V(4).Infof("Request queue shut down")
}
