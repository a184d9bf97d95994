// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exports workflow observations to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Adembc/lazynode/internal/core/domain"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

type Prometheus struct {
	registry *prometheus.Registry
	logger   *zap.SugaredLogger

	stepDuration *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	commands     *prometheus.CounterVec
}

// NewPrometheus registers the workflow collectors, plus the Go and process
// collectors, on a registry of its own.
func NewPrometheus(logger *zap.SugaredLogger) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lazynode",
				Subsystem: "workflow",
				Name:      "step_duration_seconds",
				Help:      "Duration of automated workflow steps by step and result",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
			},
			[]string{"step", "result"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lazynode",
				Subsystem: "workflow",
				Name:      "outcomes_total",
				Help:      "Finished provisioning sessions by terminal state",
			},
			[]string{"state"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lazynode",
				Subsystem: "remote",
				Name:      "commands_total",
				Help:      "Remote setup commands executed by result",
			},
			[]string{"result"},
		),
	}
	p.registry.MustRegister(
		p.stepDuration,
		p.outcomes,
		p.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) ObserveStep(step domain.ProvisionState, elapsed time.Duration, err error) {
	p.stepDuration.WithLabelValues(step.String(), result(err == nil)).Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveOutcome(state domain.ProvisionState) {
	p.outcomes.WithLabelValues(state.String()).Inc()
}

func (p *Prometheus) ObserveCommands(log domain.ExecutionLog) {
	for _, r := range log {
		p.commands.WithLabelValues(result(r.OK())).Inc()
	}
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultFailure
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		p.logger.Infow("metrics listener started", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
