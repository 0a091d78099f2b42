// Package pcsc adapts github.com/dumacp/smartcard/pcsc to the reader monitor
// and the card driver.
package pcsc

import (
	"errors"
	"fmt"
	"time"

	"github.com/dumacp/smartcard"
	sc "github.com/dumacp/smartcard/pcsc"
	"github.com/ebfe/scard"

	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/reader"
)

var (
	// ErrContext means the PC/SC subsystem could not be initialised.
	ErrContext = errors.New("cannot establish PC/SC context")
	// ErrNoCompatibleCard means the reader answered but the card on it does
	// not speak a protocol the reader can connect with.
	ErrNoCompatibleCard = errors.New("no compatible card")
)

// Context owns the PC/SC resource manager context for the process lifetime.
type Context struct {
	ctx *sc.Context
}

func NewContext() (*Context, error) {
	ctx, err := sc.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContext, cause(err))
	}
	return &Context{ctx: ctx}, nil
}

func (c *Context) Release() error {
	return c.ctx.Release()
}

// ListReaders treats "no readers available" as an empty list; the monitor
// keeps waiting on the PnP notification reader in that case.
func (c *Context) ListReaders() ([]string, error) {
	names, err := sc.ListReaders(c.ctx)
	if err != nil {
		err = cause(err)
		if errors.Is(err, scard.ErrNoReadersAvailable) {
			return nil, nil
		}
		return nil, err
	}
	return names, nil
}

func (c *Context) GetStatusChange(states []reader.Observation, timeout time.Duration) error {
	rs := toReaderStates(states)
	if err := c.ctx.GetStatusChange(rs, timeout); err != nil {
		return translateWaitError(err)
	}
	fromReaderStates(states, rs)
	return nil
}

func (c *Context) Cancel() error {
	return c.ctx.Cancel()
}

// Connect opens a shared session to the card on the named reader.
func (c *Context) Connect(name string) (*Card, error) {
	conn, err := sc.NewReader(c.ctx, name).ConnectCardPCSC_Tany()
	if err != nil {
		return nil, translateConnectError(name, err)
	}
	card, ok := conn.(*sc.Scard)
	if !ok {
		conn.DisconnectCard()
		return nil, fmt.Errorf("failed to connect to card on %s: unexpected card type %T", name, conn)
	}
	return &Card{card: card, reader: name}, nil
}

// cause strips smartcard's error wrapper, which has no Unwrap.
func cause(err error) error {
	var se *smartcard.SmartcardError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err
	}
	return err
}

func toReaderStates(states []reader.Observation) []scard.ReaderState {
	rs := make([]scard.ReaderState, len(states))
	for i, s := range states {
		rs[i] = scard.ReaderState{
			Reader:       s.Name,
			CurrentState: scard.StateFlag(s.CurrentState),
		}
	}
	return rs
}

// fromReaderStates gives every observation its own Atr slice; snapshots taken
// through Monitor.Observations share nothing with the next wait.
func fromReaderStates(states []reader.Observation, rs []scard.ReaderState) {
	for i := range states {
		states[i].EventState = reader.State(rs[i].EventState)
		states[i].Atr = append([]byte(nil), rs[i].Atr...)
	}
}

func translateWaitError(err error) error {
	switch {
	case errors.Is(err, scard.ErrTimeout):
		return reader.ErrWaitTimeout
	case errors.Is(err, scard.ErrCancelled):
		return reader.ErrCancelled
	default:
		return err
	}
}

func translateConnectError(name string, err error) error {
	switch {
	case errors.Is(err, smartcard.ErrNoSmartcard),
		errors.Is(err, scard.ErrNoSmartcard),
		errors.Is(err, scard.ErrUnknownCard),
		errors.Is(err, scard.ErrUnsupportedCard):
		return fmt.Errorf("%w on %s: %w", ErrNoCompatibleCard, name, err)
	default:
		return fmt.Errorf("failed to connect to card on %s: %w", name, err)
	}
}
