package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/pkg/logger"
	"github.com/docindex-go/pkg/metrics"
	"github.com/docindex-go/pkg/resilience"
	"github.com/docindex-go/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var ErrNilStoreClient = errors.New("store client is nil")

// Options tunes how store calls are issued. The zero value issues each call
// once, without timeout, breaker or rate limit.
type Options struct {
	// CallTimeout bounds every single store call.
	CallTimeout time.Duration
	Retry       resilience.RetryConfig
	// Breaker enables one circuit breaker per namespace when set.
	Breaker *resilience.CircuitBreakerConfig
	// CreateRate limits creation calls per second; 0 means unlimited.
	CreateRate  float64
	CreateBurst int
}

func DefaultOptions() Options {
	breaker := resilience.DefaultCircuitBreakerConfig("")
	return Options{
		CallTimeout: 30 * time.Second,
		Retry:       resilience.DefaultRetryConfig(),
		Breaker:     &breaker,
	}
}

type Option func(*Provisioner)

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Provisioner) {
		p.telemetry = t
	}
}

func WithPublisher(pub ports.OutcomePublisher) Option {
	return func(p *Provisioner) {
		p.publisher = pub
	}
}

// Provisioner reconciles declared index specifications against a store.
// It holds no per-run state and may be shared between goroutines.
type Provisioner struct {
	opts      Options
	logger    logger.Logger
	telemetry *telemetry.Telemetry
	publisher ports.OutcomePublisher
	breakers  *resilience.CircuitBreakerRegistry
	limiter   *rate.Limiter
}

func NewProvisioner(opts Options, log logger.Logger, options ...Option) *Provisioner {
	p := &Provisioner{
		opts:      opts,
		logger:    log,
		telemetry: telemetry.NewNop(),
	}

	if opts.Breaker != nil {
		cfg := *opts.Breaker
		cfg.IsSuccessful = func(err error) bool {
			return !tripsBreaker(err)
		}
		cfg.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn("namespace circuit changed state", "namespace", name, "from", from.String(), "to", to.String())
		}
		p.breakers = resilience.NewCircuitBreakerRegistry(cfg)
	}

	if opts.CreateRate > 0 {
		burst := opts.CreateBurst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.CreateRate), burst)
	}

	for _, o := range options {
		o(p)
	}
	return p
}

// BreakerStates reports the circuit state of every namespace seen so far.
func (p *Provisioner) BreakerStates() map[string]string {
	states := make(map[string]string)
	if p.breakers == nil {
		return states
	}
	for ns, st := range p.breakers.States() {
		states[ns] = st.String()
	}
	return states
}

// step is one reconciliation; input is the position of its spec in the
// caller's slice, or -1 for an implied primary index.
type step struct {
	spec  index.Spec
	input int
}

// plan orders primary indexes, explicit or implied by EnsurePrimary, ahead
// of everything else. Both groups keep input order.
func plan(specs []index.Spec) (primaries []step, rest []step) {
	explicit := make(map[string]bool)
	for _, s := range specs {
		if s.Kind == index.KindPrimary {
			explicit[s.Namespace] = true
		}
	}

	implied := make(map[string]bool)
	for i, s := range specs {
		switch {
		case s.Kind == index.KindPrimary:
			primaries = append(primaries, step{spec: s, input: i})
		case s.Kind == index.KindSecondary && s.EnsurePrimary:
			if !explicit[s.Namespace] && !implied[s.Namespace] {
				implied[s.Namespace] = true
				primaries = append(primaries, step{spec: index.Primary(s.Namespace), input: -1})
			}
			rest = append(rest, step{spec: s, input: i})
		default:
			rest = append(rest, step{spec: s, input: i})
		}
	}
	return primaries, rest
}

// Ensure makes sure every spec exists in the store and returns one outcome
// per spec, in input order. Invalid specs fail the whole call before the
// store is contacted; store failures are reported per outcome.
func (p *Provisioner) Ensure(ctx context.Context, specs []index.Spec, client ports.StoreClient) (index.Outcomes, error) {
	if len(specs) == 0 {
		return index.Outcomes{}, nil
	}
	if client == nil {
		return nil, ErrNilStoreClient
	}
	if err := index.ValidateAll(specs); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	start := time.Now()
	log := p.logger.With("run_id", runID)

	ctx, span := p.telemetry.StartSpan(ctx, "provisioner.Ensure", telemetry.RunIDAttribute(runID))
	defer span.End()

	primarySteps, restSteps := plan(specs)
	outcomes := make(index.Outcomes, len(specs))
	primaries := make(map[string]*index.Outcome)

	for _, st := range primarySteps {
		o := p.reconcile(ctx, runID, log, st.spec, client)
		if st.input >= 0 {
			outcomes[st.input] = o
		}
		if _, ok := primaries[st.spec.Namespace]; !ok {
			po := o
			primaries[st.spec.Namespace] = &po
		}
	}

	for _, st := range restSteps {
		o := p.reconcile(ctx, runID, log, st.spec, client)
		if st.spec.Kind == index.KindSecondary && st.spec.EnsurePrimary {
			o.Primary = primaries[st.spec.Namespace]
		}
		outcomes[st.input] = o
	}

	result := "ok"
	if !outcomes.AllSucceeded() {
		result = "partial"
	}
	metrics.RecordRun(result, time.Since(start).Seconds())

	log.Info("provisioning finished",
		"specs", len(specs),
		"created", outcomes.Count(index.StatusCreated),
		"already_exists", outcomes.Count(index.StatusAlreadyExists),
		"failed", outcomes.Count(index.StatusFailed),
		"duration", time.Since(start),
	)

	return outcomes, nil
}

func (p *Provisioner) reconcile(ctx context.Context, runID string, log logger.Logger, spec index.Spec, client ports.StoreClient) index.Outcome {
	start := time.Now()
	ctx, span := p.telemetry.StartSpan(ctx, "provisioner.reconcile",
		telemetry.RunIDAttribute(runID),
		telemetry.NamespaceAttribute(spec.Namespace),
		telemetry.KindAttribute(string(spec.Kind)),
		telemetry.KeyAttribute(spec.Key()),
	)

	status, err := p.reconcileSpec(ctx, spec, client)
	o := index.Outcome{
		Spec:     spec,
		Status:   status,
		Err:      err,
		Duration: time.Since(start),
	}

	span.SetAttributes(telemetry.StatusAttribute(string(status)))
	telemetry.EndSpan(span, err)
	metrics.RecordOutcome(spec.Namespace, string(spec.Kind), string(status), o.Duration.Seconds())

	switch status {
	case index.StatusCreated:
		log.Info("index created", "key", spec.Key(), "duration", o.Duration)
	case index.StatusAlreadyExists:
		log.Debug("index already exists", "key", spec.Key())
	default:
		log.Warn("index provisioning failed", "key", spec.Key(), "reason", o.Reason(), "error", err)
	}

	if p.publisher != nil {
		if perr := p.publisher.PublishOutcome(ctx, runID, o); perr != nil {
			log.Warn("failed to publish outcome", "key", spec.Key(), "error", perr)
		}
	}

	return o
}

func (p *Provisioner) reconcileSpec(ctx context.Context, spec index.Spec, client ports.StoreClient) (index.Status, error) {
	var exists bool
	err := p.call(ctx, spec.Namespace, "exists", func(ctx context.Context) error {
		var err error
		if spec.Kind == index.KindView {
			exists, err = client.ViewExists(ctx, spec.Namespace, spec.DesignDocument, spec.ViewName)
		} else {
			exists, err = client.IndexExists(ctx, spec.Namespace, spec.IndexName())
		}
		return err
	})
	if err != nil {
		return index.StatusFailed, fmt.Errorf("check %s: %w", spec.Key(), err)
	}
	if exists {
		return index.StatusAlreadyExists, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return index.StatusFailed, fmt.Errorf("create %s: %w: %v", spec.Key(), index.ErrTimeout, err)
		}
	}

	op := "create_" + string(spec.Kind)
	err = p.call(ctx, spec.Namespace, op, func(ctx context.Context) error {
		switch spec.Kind {
		case index.KindPrimary:
			return client.CreatePrimaryIndex(ctx, spec.Namespace)
		case index.KindSecondary:
			return client.CreateSecondaryIndex(ctx, spec.Namespace, spec.Name, spec.Filter)
		default:
			return client.CreateView(ctx, spec.Namespace, spec.DesignDocument, spec.ViewName, spec.Definition)
		}
	})

	switch {
	case err == nil:
		return index.StatusCreated, nil
	case errors.Is(err, index.ErrAlreadyExists):
		return index.StatusAlreadyExists, nil
	default:
		return index.StatusFailed, fmt.Errorf("create %s: %w", spec.Key(), err)
	}
}

// call runs one store operation under the namespace breaker, with retries
// for transient errors and a timeout per attempt.
func (p *Provisioner) call(ctx context.Context, namespace, op string, fn func(context.Context) error) error {
	retry := p.opts.Retry
	retry.ShouldRetry = func(err error) bool {
		return errors.Is(err, index.ErrUnavailable)
	}
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RecordStoreRetry(op)
		p.logger.Debug("retrying store call", "operation", op, "namespace", namespace, "attempt", attempt, "delay", delay, "error", err)
	}

	run := func(ctx context.Context) error {
		return resilience.Retry(ctx, retry, func(ctx context.Context) error {
			callCtx, cancel := p.callContext(ctx)
			defer cancel()

			err := fn(callCtx)
			if err != nil && !errors.Is(err, index.ErrAlreadyExists) &&
				(errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
				err = fmt.Errorf("%s: %w: %w", op, index.ErrTimeout, err)
			}
			metrics.RecordStoreCall(op, callResult(err))
			return err
		})
	}

	if p.breakers == nil {
		return run(ctx)
	}

	err := p.breakers.Get(namespace).Execute(ctx, run)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%s on %s: %w", op, namespace, index.ErrCircuitOpen)
	}
	return err
}

// tripsBreaker reports errors that point at an unreachable store. Errors
// about one structure, such as a rejected filter or a denied permission,
// leave the namespace circuit closed.
func tripsBreaker(err error) bool {
	return errors.Is(err, index.ErrUnavailable) || errors.Is(err, index.ErrTimeout)
}

func (p *Provisioner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.CallTimeout)
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, index.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, index.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
