// Package metrics adapts vm.Metrics to Prometheus collectors and serves
// them over HTTP, the way the teacher pack's observability server exposes
// custom counters on a dedicated registry instead of polluting the global
// one (SPEC_FULL.md §2 DOMAIN STACK: prometheus/client_golang). Wired in
// behind the CLI's --metrics-addr flag so a plain `ember run` stays free of
// the instrumentation overhead.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ember-lang/ember/code"
)

// VMCollector implements vm.Metrics over a private Prometheus registry.
type VMCollector struct {
	registry          *prometheus.Registry
	instructions      *prometheus.CounterVec
	calls             prometheus.Counter
	stackDepth        prometheus.Gauge
	maxStackDepthSeen int
}

// NewVMCollector creates a collector with its own registry (never the
// global default one), pre-registered with the standard Go runtime
// collectors plus Ember's own counters.
func NewVMCollector() *VMCollector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &VMCollector{
		registry: registry,
		instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ember_vm_instructions_executed_total",
				Help: "Number of bytecode instructions executed, by opcode.",
			},
			[]string{"opcode"},
		),
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ember_vm_calls_total",
			Help: "Number of function/builtin calls executed.",
		}),
		stackDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ember_vm_stack_depth",
			Help: "Current VM operand stack depth.",
		}),
	}

	registry.MustRegister(c.instructions, c.calls, c.stackDepth)
	return c
}

// InstructionExecuted implements vm.Metrics.
func (c *VMCollector) InstructionExecuted(op code.Opcode) {
	def, err := code.Lookup(op)
	name := "UNKNOWN"
	if err == nil {
		name = def.Name
	}
	c.instructions.WithLabelValues(name).Inc()
}

// CallMade implements vm.Metrics.
func (c *VMCollector) CallMade() { c.calls.Inc() }

// StackDepth implements vm.Metrics.
func (c *VMCollector) StackDepth(depth int) {
	c.stackDepth.Set(float64(depth))
	if depth > c.maxStackDepthSeen {
		c.maxStackDepthSeen = depth
	}
}

// MaxStackDepthSeen reports the high-water mark across every Run this
// collector instrumented, for the CLI's post-run summary line.
func (c *VMCollector) MaxStackDepthSeen() int { return c.maxStackDepthSeen }

// Server exposes a VMCollector's registry on /metrics.
type Server struct {
	addr       string
	httpServer *http.Server
}

// NewServer builds (but does not start) a metrics HTTP server bound to
// addr, serving collector's registry at /metrics.
func NewServer(addr string, collector *VMCollector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.registry, promhttp.HandlerOpts{}))

	return &Server{
		addr:       addr,
		httpServer: &http.Server{Addr: addr, Handler: mux},
	}
}

// Start listens and serves in the background, returning once the listener
// is bound so callers can log the address with confidence it is live.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", s.addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Println("metrics server error:", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the metrics server within the given timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
