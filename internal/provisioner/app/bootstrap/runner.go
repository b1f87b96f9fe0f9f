package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/pkg/logger"
)

var (
	// ErrMandatoryFailed means a structure the application cannot start
	// without could not be provisioned.
	ErrMandatoryFailed = errors.New("mandatory index provisioning failed")
	ErrRunInProgress   = errors.New("provisioning run already in progress")
)

// Provisioner is the part of service.Provisioner the runner drives.
type Provisioner interface {
	Ensure(ctx context.Context, specs []index.Spec, client ports.StoreClient) (index.Outcomes, error)
}

type Policy struct {
	// RequirePrimary makes every failed primary index mandatory, whether or
	// not its entity is marked required.
	RequirePrimary bool
	// Timeout bounds a whole run; zero means no bound.
	Timeout time.Duration
}

// Report describes one run.
type Report struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Outcomes   index.Outcomes `json:"outcomes"`
	// Blocking lists the keys of failed mandatory structures.
	Blocking []string `json:"blocking,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner applies the startup policy around Ensure: it fails only when a
// mandatory structure could not be provisioned and logs everything else.
type Runner struct {
	supplier    ports.SpecSupplier
	provisioner Provisioner
	client      ports.StoreClient
	policy      Policy
	logger      logger.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *Report
}

func NewRunner(supplier ports.SpecSupplier, provisioner Provisioner, client ports.StoreClient, policy Policy, log logger.Logger) *Runner {
	return &Runner{
		supplier:    supplier,
		provisioner: provisioner,
		client:      client,
		policy:      policy,
		logger:      log,
	}
}

// Run provisions every supplied spec once. Overlapping calls are rejected
// with ErrRunInProgress instead of queueing.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}

	report := &Report{StartedAt: time.Now().UTC()}
	err := r.run(ctx, report)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = err.Error()
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report) error {
	specs, err := r.supplier.Specs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load index specifications: %w", err)
	}

	outcomes, err := r.provisioner.Ensure(ctx, specs, r.client)
	if err != nil {
		return fmt.Errorf("failed to provision indexes: %w", err)
	}
	report.Outcomes = outcomes

	report.Blocking = r.blocking(outcomes)
	for _, o := range outcomes.Failed() {
		r.logger.Warn("index unavailable", "key", o.Spec.Key(), "reason", o.Reason(), "error", o.Err)
	}

	if len(report.Blocking) > 0 {
		r.logger.Error("mandatory indexes could not be provisioned", "keys", report.Blocking)
		return fmt.Errorf("%w: %s", ErrMandatoryFailed, strings.Join(report.Blocking, ", "))
	}
	return nil
}

// blocking returns the keys of failed outcomes the policy treats as
// mandatory. Implied primaries are only visible through Outcome.Primary.
func (r *Runner) blocking(outcomes index.Outcomes) []string {
	required := make(map[string]bool)
	for _, key := range r.supplier.Required() {
		required[key] = true
	}

	mandatory := func(o *index.Outcome) bool {
		if o.Status != index.StatusFailed {
			return false
		}
		return required[o.Spec.Key()] || (r.policy.RequirePrimary && o.Spec.Kind == index.KindPrimary)
	}

	var keys []string
	seen := make(map[string]bool)
	add := func(o *index.Outcome) {
		if key := o.Spec.Key(); mandatory(o) && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	for i := range outcomes {
		if p := outcomes[i].Primary; p != nil {
			add(p)
		}
		add(&outcomes[i])
	}
	return keys
}

// LastReport returns the report of the most recent finished run, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Runner) Running() bool {
	return r.running.Load()
}
