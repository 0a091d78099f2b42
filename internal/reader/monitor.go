package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/utils/log"
)

// DefaultTimeout bounds a single status-change wait.
const DefaultTimeout = 30 * time.Second

var (
	// ErrReaderDiscovery means the reader list could not be enumerated.
	ErrReaderDiscovery = errors.New("reader discovery failed")
	// ErrWaitTimeout means no reader or card changed state within the wait
	// window. Polling again is safe.
	ErrWaitTimeout = errors.New("timed out waiting for reader status change")
	// ErrWait is any other failure of the status-change wait.
	ErrWait = errors.New("waiting for reader status change failed")
	// ErrCancelled is returned by a Transport whose wait was interrupted by
	// Cancel.
	ErrCancelled = errors.New("status change wait cancelled")
)

// Transport is the reader side of the PC/SC stack.
type Transport interface {
	ListReaders() ([]string, error)
	// GetStatusChange blocks until an observation's state differs from its
	// CurrentState or timeout elapses, updating EventState (and Atr) in place.
	GetStatusChange(states []Observation, timeout time.Duration) error
	// Cancel interrupts a blocked GetStatusChange from another goroutine.
	Cancel() error
}

// Monitor tracks reader observations and blocks until a card is presented.
// It is not safe for concurrent use.
type Monitor struct {
	transport      Transport
	timeout        time.Duration
	retryOnTimeout bool
	log            log.Logger
	states         []Observation
}

type Option func(*Monitor)

func WithTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = timeout
	}
}

// WithRetryOnTimeout makes WaitForCard poll again after ErrWaitTimeout
// instead of returning it.
func WithRetryOnTimeout(retry bool) Option {
	return func(m *Monitor) {
		m.retryOnTimeout = retry
	}
}

func WithLogger(l log.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

func NewMonitor(t Transport, opts ...Option) *Monitor {
	m := &Monitor{
		transport: t,
		timeout:   DefaultTimeout,
		log:       log.Default(),
		states: []Observation{
			{Name: PnPNotification},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observations returns a copy of the tracked reader states.
func (m *Monitor) Observations() []Observation {
	out := make([]Observation, len(m.states))
	copy(out, m.states)
	return out
}

// WaitForCard polls until some reader reports a present card and returns
// that reader's name.
func (m *Monitor) WaitForCard(ctx context.Context) (string, error) {
	for {
		name, err := m.Poll(ctx)
		switch {
		case errors.Is(err, ErrWaitTimeout) && m.retryOnTimeout:
			m.log.Debug("no reader activity, polling again")
			continue
		case err != nil:
			return "", err
		case name != "":
			return name, nil
		}
	}
}

// Poll runs one monitoring cycle. It returns an empty name when the wait
// ended without any card present.
func (m *Monitor) Poll(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.prune()
	if err := m.discover(); err != nil {
		return "", err
	}
	for i := range m.states {
		m.states[i].Sync()
	}

	if err := m.wait(ctx); err != nil {
		return "", err
	}

	for _, rs := range m.states {
		if rs.notification() {
			continue
		}
		if rs.EventState.Has(StatePresent) {
			m.log.Infof("card present on %s", rs.Name)
			return rs.Name, nil
		}
	}
	return "", nil
}

func (m *Monitor) prune() {
	kept := m.states[:0]
	for _, rs := range m.states {
		if rs.Dead() && !rs.notification() {
			m.log.Infof("removing reader %s (%s)", rs.Name, rs.EventState)
			continue
		}
		kept = append(kept, rs)
	}
	m.states = kept
}

func (m *Monitor) discover() error {
	names, err := m.transport.ListReaders()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReaderDiscovery, err)
	}
	for _, name := range names {
		if m.tracked(name) {
			continue
		}
		m.log.Infof("found reader %s", name)
		m.states = append(m.states, Observation{Name: name, CurrentState: StateUnaware})
	}
	return nil
}

func (m *Monitor) tracked(name string) bool {
	for _, rs := range m.states {
		if rs.Name == name {
			return true
		}
	}
	return false
}

// wait blocks on the transport. A cancelled ctx interrupts it through
// Transport.Cancel without touching the polling state.
func (m *Monitor) wait(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := m.transport.Cancel(); err != nil {
				m.log.Warnf("cancelling status change wait: %v", err)
			}
		case <-done:
		}
	}()

	err := m.transport.GetStatusChange(m.states, m.timeout)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrWaitTimeout):
		return ErrWaitTimeout
	default:
		return fmt.Errorf("%w: %w", ErrWait, err)
	}
}
