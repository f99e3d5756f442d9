// Package notify forwards accepted submissions to downstream marketing webhooks in the
// background. Delivery outcomes are logged and counted, never reported to the caller.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	OutcomeDelivered   = "delivered"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomeCircuitOpen = "circuit_open"
)

var ErrDispatcherClosed = errors.New("notify: dispatcher is closed")

type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds one fan-out to every sink.
	Timeout time.Duration

	FailureThreshold int
	RecoveryTimeout  time.Duration

	// Registerer receives the delivery counters; nil keeps them unregistered.
	Registerer prometheus.Registerer
}

type job struct {
	submission    Submission
	correlationID string
}

type Dispatcher struct {
	sinks    []Sink
	breakers map[string]*circuitbreaker.Breaker
	logger   *log.Logger
	timeout  time.Duration

	deliveries   *prometheus.CounterVec
	dropped      prometheus.Counter
	circuitState *prometheus.GaugeVec

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(sinks []Sink, cfg Config, logger *log.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.NewLoggerWithJSONOutput()
	}

	d := &Dispatcher{
		sinks:    sinks,
		breakers: make(map[string]*circuitbreaker.Breaker, len(sinks)),
		logger:   logger,
		timeout:  cfg.Timeout,
		queue:    make(chan job, cfg.QueueSize),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_webhook_deliveries_total",
			Help: "Downstream webhook delivery attempts by sink and outcome.",
		}, []string{"sink", "outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_webhook_dropped_total",
			Help: "Submissions not forwarded because the notify queue was full or closed.",
		}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "waitlist_webhook_circuit_state",
			Help: "Per-sink circuit state: 0 closed, 1 open, 2 half open.",
		}, []string{"sink"}),
	}

	if cfg.Registerer != nil {
		d.deliveries = registerOrReuse(cfg.Registerer, d.deliveries).(*prometheus.CounterVec)
		d.dropped = registerOrReuse(cfg.Registerer, d.dropped).(prometheus.Counter)
		d.circuitState = registerOrReuse(cfg.Registerer, d.circuitState).(*prometheus.GaugeVec)
	}

	for _, sink := range sinks {
		d.circuitState.WithLabelValues(sink.Name()).Set(float64(circuitbreaker.Closed))
		d.breakers[sink.Name()] = circuitbreaker.New(circuitbreaker.Config{
			Name:             sink.Name(),
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.RecoveryTimeout,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				d.circuitState.WithLabelValues(name).Set(float64(to))
				snapshot := d.breakers[name].Snapshot()
				logger.Warn("Webhook circuit state changed",
					"sink", name,
					"from", from.String(),
					"to", to.String(),
					"consecutive_failures", snapshot.ConsecutiveFailures,
					"open_until", snapshot.OpenUntil)
			},
		})

		if !sink.Configured() {
			logger.Warn("Webhook sink is not configured; deliveries will be skipped", "sink", sink.Name())
		}
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}

	logger.Info("Notify dispatcher started", "workers", cfg.Workers, "queue_size", cfg.QueueSize, "sinks", len(sinks))
	return d
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
	}
	return c
}

// Notify queues the submission and returns immediately. A full or closed queue drops it.
func (d *Dispatcher) Notify(ctx context.Context, submission Submission) {
	logger := log.GetLoggerInstanceFromContext(ctx, d.logger)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Inc()
		logger.Error("Notify dispatcher closed; dropping webhook delivery", "email", submission.Email, "error", ErrDispatcherClosed)
		return
	}

	select {
	case d.queue <- job{submission: submission, correlationID: log.GetOrGenerateCorrelationID(ctx)}:
		logger.Info("Webhook delivery queued", "email", submission.Email)
	default:
		d.dropped.Inc()
		logger.Error("Notify queue full; dropping webhook delivery", "email", submission.Email, "queue_size", cap(d.queue))
	}
}

// Close stops intake and waits for queued deliveries to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.logger.Info("Notify dispatcher drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Notify dispatcher did not drain before deadline", "pending", len(d.queue))
		return ctx.Err()
	}
}

// Configured reports which sinks will actually receive submissions.
func (d *Dispatcher) Configured() map[string]bool {
	status := make(map[string]bool, len(d.sinks))
	for _, sink := range d.sinks {
		status[sink.Name()] = sink.Configured()
	}
	return status
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

// deliver runs detached from the request that queued the job; only the correlation id carries over.
func (d *Dispatcher) deliver(j job) {
	ctx := context.WithValue(context.Background(), log.CorrelatedIDKey, j.correlationID)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	logger := d.logger.WithCorrelationID(ctx)

	var g errgroup.Group
	for _, sink := range d.sinks {
		g.Go(func() error {
			return d.deliverTo(ctx, logger, sink, j.submission)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("Webhook fan-out finished with failures", "email", j.submission.Email, "first_error", err)
		return
	}
	logger.Debug("Webhook fan-out finished", "email", j.submission.Email)
}

func (d *Dispatcher) deliverTo(ctx context.Context, logger *log.Logger, sink Sink, submission Submission) error {
	name := sink.Name()
	sinkLogger := logger.With("sink", name, "email", submission.Email)

	if !sink.Configured() {
		d.deliveries.WithLabelValues(name, OutcomeSkipped).Inc()
		sinkLogger.Warn("Webhook sink is not configured. Skipping webhook call.")
		return nil
	}

	ctx, span := otel.Tracer("github.com/akeren/course-waitlist-api/pkg/notify").Start(ctx, "notify.deliver")
	span.SetAttributes(attribute.String("notify.sink", name))
	defer span.End()

	sinkLogger.Info("Sending submission to webhook")

	err := d.breakers[name].Execute(ctx, func(ctx context.Context) error {
		return sink.Send(ctx, submission)
	})

	switch {
	case err == nil:
		d.deliveries.WithLabelValues(name, OutcomeDelivered).Inc()
		sinkLogger.Info("Successfully sent submission to webhook")
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		d.deliveries.WithLabelValues(name, OutcomeCircuitOpen).Inc()
		sinkLogger.Warn("Webhook circuit open; skipping delivery")
	default:
		d.deliveries.WithLabelValues(name, OutcomeFailed).Inc()
		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) {
			sinkLogger.Error("Failed to send submission to webhook", "status_code", deliveryErr.StatusCode, "response", deliveryErr.Body)
		} else {
			sinkLogger.Error("Unexpected error while calling webhook", "error", err)
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "delivery failed")
	return err
}
