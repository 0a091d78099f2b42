package nfc

import (
	"errors"
	"fmt"

	"github.com/skythen/apdu"
)

var (
	// ErrInvalidIdentity means the card answered Get Identifier with a
	// failure status or a result too short to hold an IDm.
	ErrInvalidIdentity = errors.New("invalid card identity")
	// ErrServiceNotFound means Select Service File was refused.
	ErrServiceNotFound = errors.New("service not found on card")
	// ErrReadFailed means Read Binary was refused or the record did not match
	// the expected layout.
	ErrReadFailed = errors.New("read binary failed")
	// ErrCommunication means the transmit itself failed. The reader or the
	// channel is suspect, not the card's answer, so it is worth retrying.
	ErrCommunication = errors.New("card communication error")
)

// Transmitter sends one command APDU and returns the raw response,
// status word included.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// CommandError reports which command failed and why. SW1/SW2 are set when
// the card answered with a failure status word; Err holds the transport or
// parse cause otherwise.
type CommandError struct {
	Command string
	Kind    error
	SW1     byte
	SW2     byte
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Command, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v (SW %02X%02X)", e.Command, e.Kind, e.SW1, e.SW2)
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusWord returns SW1SW2 as one value, zero when the card never answered.
func (e *CommandError) StatusWord() uint16 {
	return uint16(e.SW1)<<8 | uint16(e.SW2)
}

type command struct {
	name  string
	capdu apdu.Capdu
	// kind is the error reported when the card answers with anything but 9000.
	kind error
}

// Le 0x00 in short form, i.e. up to 256 response bytes.
const maxResponse = 256

var (
	getIdentifier = command{
		name:  "get identifier",
		capdu: apdu.Capdu{Cla: 0xFF, Ins: 0xCA, P1: 0x00, P2: 0x00, Ne: maxResponse},
		kind:  ErrInvalidIdentity,
	}
	readBinary = command{
		name:  "read binary",
		capdu: apdu.Capdu{Cla: 0xFF, Ins: 0xB0, P1: 0x00, P2: 0x00, Ne: maxResponse},
		kind:  ErrReadFailed,
	}
)

// selectService addresses a service file by its little-endian service code.
func selectService(code uint16) command {
	return command{
		name: fmt.Sprintf("select service %04X", code),
		capdu: apdu.Capdu{
			Cla:  0xFF,
			Ins:  0xA4,
			P1:   0x00,
			P2:   0x01,
			Data: []byte{byte(code), byte(code >> 8)},
			Ne:   maxResponse,
		},
		kind: ErrServiceNotFound,
	}
}

// exchange transmits cmd and returns the response data with the status word
// stripped. Only 9000 counts as success.
func exchange(card Transmitter, cmd command) ([]byte, error) {
	raw, err := cmd.capdu.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", cmd.name, err)
	}

	resp, err := card.Transmit(raw)
	if err != nil {
		return nil, &CommandError{Command: cmd.name, Kind: ErrCommunication, Err: err}
	}

	rapdu, err := apdu.ParseRapdu(resp)
	if err != nil {
		return nil, &CommandError{Command: cmd.name, Kind: ErrCommunication, Err: err}
	}
	if rapdu.SW1 != 0x90 || rapdu.SW2 != 0x00 {
		return nil, &CommandError{Command: cmd.name, Kind: cmd.kind, SW1: rapdu.SW1, SW2: rapdu.SW2}
	}
	return rapdu.Data, nil
}
