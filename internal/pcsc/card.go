package pcsc

import (
	"fmt"

	sc "github.com/dumacp/smartcard/pcsc"
)

// Card is a connected card session. It must stay on the goroutine that
// connected it.
type Card struct {
	card   *sc.Scard
	reader string
}

// Reader returns the name of the reader the card sits on.
func (c *Card) Reader() string {
	return c.reader
}

// Transmit sends one APDU. Scard.Apdu echoes every exchange to stdout, so
// this goes to the embedded scard.Card directly and leaves tracing to the
// caller's logger.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	if c.card.State != sc.CONNECTED {
		return nil, fmt.Errorf("card on %s is not connected", c.reader)
	}
	return c.card.Transmit(cmd)
}

// Close disconnects and leaves the card powered.
func (c *Card) Close() error {
	return c.card.DisconnectCard()
}

func (c *Card) DisconnectUnpower() error {
	return c.card.DisconnectUnpowerCard()
}
