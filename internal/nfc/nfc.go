package nfc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/utils/log"
)

// IDmLen is the length of a FeliCa manufacture ID.
const IDmLen = 8

// IDm is the card identifier returned by Get Identifier.
type IDm [IDmLen]byte

func (id IDm) String() string {
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

func (id IDm) Bytes() []byte {
	return append([]byte(nil), id[:]...)
}

// BalanceLayout locates a 16-bit balance inside one service's record. It
// describes one known on-card layout; it is not a general record decoder.
type BalanceLayout struct {
	Name        string
	ServiceCode uint16
	// LowOffset and HighOffset index into the Read Binary response.
	LowOffset  int
	HighOffset int
}

// ICOCA is the attribute service of ICOCA cards (service code 0x008B).
var ICOCA = BalanceLayout{
	Name:        "icoca",
	ServiceCode: 0x008B,
	LowOffset:   11,
	HighOffset:  12,
}

// ReadIDm issues Get Identifier and returns the leading 8 bytes of the answer.
func ReadIDm(card Transmitter) (IDm, error) {
	var id IDm
	data, err := exchange(card, getIdentifier)
	if err != nil {
		return id, err
	}
	if len(data) < IDmLen {
		return id, &CommandError{
			Command: getIdentifier.name,
			Kind:    ErrInvalidIdentity,
			SW1:     0x90,
			Err:     fmt.Errorf("identifier is %d bytes, want at least %d", len(data), IDmLen),
		}
	}
	copy(id[:], data[:IDmLen])
	return id, nil
}

// ReadBalance selects the layout's service and decodes the balance from the
// record Read Binary returns. A transport failure on the select stops the
// sequence before Read Binary.
func ReadBalance(card Transmitter, layout BalanceLayout) (uint16, error) {
	if _, err := exchange(card, selectService(layout.ServiceCode)); err != nil {
		return 0, err
	}
	record, err := exchange(card, readBinary)
	if err != nil {
		return 0, err
	}
	return DecodeBalance(record, layout)
}

// DecodeBalance unpacks record[HighOffset]<<8 | record[LowOffset].
func DecodeBalance(record []byte, layout BalanceLayout) (uint16, error) {
	if layout.LowOffset < 0 || layout.HighOffset < 0 ||
		layout.LowOffset >= len(record) || layout.HighOffset >= len(record) {
		return 0, &CommandError{
			Command: readBinary.name,
			Kind:    ErrReadFailed,
			SW1:     0x90,
			Err: fmt.Errorf("record is %d bytes, %s layout needs offsets %d and %d",
				len(record), layout.Name, layout.LowOffset, layout.HighOffset),
		}
	}
	return uint16(record[layout.HighOffset])<<8 | uint16(record[layout.LowOffset]), nil
}

// CardInfo is what one card interaction produced.
type CardInfo struct {
	Reader  string
	IDm     IDm
	Layout  string
	Balance *uint16
}

// CardReader is a session against one connected card.
type CardReader struct {
	idm    IDm
	reader string
	card   Transmitter
	log    log.Logger
}

type Option func(*CardReader)

func WithLogger(l log.Logger) Option {
	return func(m *CardReader) {
		m.log = l
	}
}

// WithReaderName records which reader the card sits on in CardInfo.
func WithReaderName(name string) Option {
	return func(m *CardReader) {
		m.reader = name
	}
}

// NewCardReader reads the IDm up front; a card that cannot identify itself
// is not worth a session.
func NewCardReader(card Transmitter, opts ...Option) (*CardReader, error) {
	m := &CardReader{
		card: card,
		log:  log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	idm, err := ReadIDm(loggingTransmitter{card, m.log})
	if err != nil {
		return nil, fmt.Errorf("failed to get IDm: %w", err)
	}
	m.idm = idm
	m.log.Debugf("IDm %s", idm)
	return m, nil
}

// IDm returns the identifier captured when the session was opened.
func (m *CardReader) IDm() IDm {
	return m.idm
}

func (m *CardReader) Balance(layout BalanceLayout) (uint16, error) {
	balance, err := ReadBalance(loggingTransmitter{m.card, m.log}, layout)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s balance: %w", layout.Name, err)
	}
	m.log.Debugf("%s balance %d", layout.Name, balance)
	return balance, nil
}

// ReadInfo collects the IDm and, when layout is non-nil, the balance.
func (m *CardReader) ReadInfo(layout *BalanceLayout) (*CardInfo, error) {
	info := &CardInfo{Reader: m.reader, IDm: m.idm}
	if layout == nil {
		return info, nil
	}
	balance, err := m.Balance(*layout)
	if err != nil {
		return nil, err
	}
	info.Layout = layout.Name
	info.Balance = &balance
	return info, nil
}

type loggingTransmitter struct {
	card Transmitter
	log  log.Logger
}

func (t loggingTransmitter) Transmit(cmd []byte) ([]byte, error) {
	t.log.Debugf("> % X", cmd)
	resp, err := t.card.Transmit(cmd)
	if err != nil {
		t.log.Debugf("< %v", err)
		return nil, err
	}
	t.log.Debugf("< % X", resp)
	return resp, nil
}
