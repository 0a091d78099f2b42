package nfc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	resp []byte
	err  error
}

type fakeCard struct {
	replies []reply
	sent    [][]byte
}

func (f *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	f.sent = append(f.sent, cmd)
	if len(f.replies) == 0 {
		return nil, errors.New("no reply scripted")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.resp, r.err
}

func ok(data ...byte) reply {
	return reply{resp: append(data, 0x90, 0x00)}
}

var (
	cmdGetIdentifier = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
	cmdSelectICOCA   = []byte{0xFF, 0xA4, 0x00, 0x01, 0x02, 0x8B, 0x00, 0x00}
	cmdReadBinary    = []byte{0xFF, 0xB0, 0x00, 0x00, 0x00}
	errUnplugged     = errors.New("SCARD_E_READER_UNAVAILABLE")
)

func icocaRecord(low, high byte) []byte {
	record := make([]byte, 16)
	record[11] = low
	record[12] = high
	return record
}

func TestCommandBytes(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmd  command
		want []byte
	}{
		{"get identifier", getIdentifier, cmdGetIdentifier},
		{"select icoca", selectService(0x008B), cmdSelectICOCA},
		{"select high byte", selectService(0x1A2B), []byte{0xFF, 0xA4, 0x00, 0x01, 0x02, 0x2B, 0x1A, 0x00}},
		{"read binary", readBinary, cmdReadBinary},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.cmd.capdu.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tc.want, raw)
		})
	}
}

func TestReadIDm(t *testing.T) {
	tests := []struct {
		name      string
		reply     reply
		assertion func(t *testing.T, id IDm, err error)
	}{
		{
			"leading eight bytes",
			ok(0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08),
			func(t *testing.T, id IDm, err error) {
				require.NoError(t, err)
				assert.Equal(t, IDm{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, id)
				assert.Equal(t, "0102030405060708", id.String())
			},
		},
		{
			"longer answer keeps first eight",
			ok(0x01, 0x2E, 0x4C, 0xD3, 0x8A, 0x11, 0x22, 0x33, 0xAA, 0xBB, 0xCC),
			func(t *testing.T, id IDm, err error) {
				require.NoError(t, err)
				assert.Equal(t, []byte{0x01, 0x2E, 0x4C, 0xD3, 0x8A, 0x11, 0x22, 0x33}, id.Bytes())
			},
		},
		{
			"failure status word",
			reply{resp: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x91, 0x00}},
			func(t *testing.T, id IDm, err error) {
				assert.ErrorIs(t, err, ErrInvalidIdentity)
				assert.NotErrorIs(t, err, ErrCommunication)
				var cmdErr *CommandError
				require.ErrorAs(t, err, &cmdErr)
				assert.Equal(t, uint16(0x9100), cmdErr.StatusWord())
				assert.Contains(t, err.Error(), "9100")
				assert.Equal(t, IDm{}, id)
			},
		},
		{
			"success look-alike in the middle",
			reply{resp: []byte{0x90, 0x00, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x63, 0x00}},
			func(t *testing.T, id IDm, err error) {
				assert.ErrorIs(t, err, ErrInvalidIdentity)
			},
		},
		{
			"identifier too short",
			ok(0x04, 0xA2, 0x2B, 0x9C),
			func(t *testing.T, id IDm, err error) {
				assert.ErrorIs(t, err, ErrInvalidIdentity)
			},
		},
		{
			"response shorter than status word",
			reply{resp: []byte{0x90}},
			func(t *testing.T, id IDm, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
			},
		},
		{
			"empty response",
			reply{resp: []byte{}},
			func(t *testing.T, id IDm, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
			},
		},
		{
			"transmit fails",
			reply{err: errUnplugged},
			func(t *testing.T, id IDm, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
				assert.ErrorIs(t, err, errUnplugged)
				assert.Equal(t, IDm{}, id)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			card := &fakeCard{replies: []reply{tc.reply}}
			id, err := ReadIDm(card)
			assert.Equal(t, [][]byte{cmdGetIdentifier}, card.sent)
			tc.assertion(t, id, err)
		})
	}
}

func TestReadBalance(t *testing.T) {
	tests := []struct {
		name      string
		replies   []reply
		sent      [][]byte
		assertion func(t *testing.T, balance uint16, err error)
	}{
		{
			"sixteen yen",
			[]reply{ok(), ok(icocaRecord(0x10, 0x00)...)},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				require.NoError(t, err)
				assert.Equal(t, uint16(16), balance)
			},
		},
		{
			"high byte",
			[]reply{ok(), ok(icocaRecord(0x34, 0x12)...)},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				require.NoError(t, err)
				assert.Equal(t, uint16(0x1234), balance)
			},
		},
		{
			"service missing",
			[]reply{{resp: []byte{0x6A, 0x82}}},
			[][]byte{cmdSelectICOCA},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrServiceNotFound)
				assert.Contains(t, err.Error(), "select service 008B")
			},
		},
		{
			"select transmit fails",
			[]reply{{err: errUnplugged}},
			[][]byte{cmdSelectICOCA},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
				assert.Zero(t, balance)
			},
		},
		{
			"read refused",
			[]reply{ok(), {resp: []byte{0x69, 0x86}}},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrReadFailed)
			},
		},
		{
			"read transmit fails",
			[]reply{ok(), {err: errUnplugged}},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
				assert.NotErrorIs(t, err, ErrReadFailed)
				assert.Zero(t, balance)
			},
		},
		{
			"select answer shorter than status word",
			[]reply{{resp: []byte{0x90}}},
			[][]byte{cmdSelectICOCA},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
				assert.NotErrorIs(t, err, ErrServiceNotFound)
				assert.Zero(t, balance)
			},
		},
		{
			"empty read answer",
			[]reply{ok(), {resp: []byte{}}},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
				assert.NotErrorIs(t, err, ErrReadFailed)
				assert.Zero(t, balance)
			},
		},
		{
			"read answer shorter than status word",
			[]reply{ok(), {resp: []byte{0x90}}},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrCommunication)
				assert.Zero(t, balance)
			},
		},
		{
			"record too short",
			[]reply{ok(), ok(0x00, 0x01, 0x02)},
			[][]byte{cmdSelectICOCA, cmdReadBinary},
			func(t *testing.T, balance uint16, err error) {
				assert.ErrorIs(t, err, ErrReadFailed)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			card := &fakeCard{replies: tc.replies}
			balance, err := ReadBalance(card, ICOCA)
			assert.Equal(t, tc.sent, card.sent)
			tc.assertion(t, balance, err)
		})
	}
}

func TestDecodeBalanceIsIdempotent(t *testing.T) {
	record := icocaRecord(0xE8, 0x03)
	for i := 0; i < 3; i++ {
		balance, err := DecodeBalance(record, ICOCA)
		require.NoError(t, err)
		assert.Equal(t, uint16(1000), balance)
	}
	assert.Equal(t, icocaRecord(0xE8, 0x03), record)
}

func TestDecodeBalanceCustomLayout(t *testing.T) {
	layout := BalanceLayout{Name: "test", ServiceCode: 0x090F, LowOffset: 0, HighOffset: 1}
	balance, err := DecodeBalance([]byte{0x01, 0x02}, layout)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), balance)

	_, err = DecodeBalance([]byte{0x01, 0x02}, BalanceLayout{LowOffset: -1, HighOffset: 1})
	assert.ErrorIs(t, err, ErrReadFailed)
}

func TestCardReader(t *testing.T) {
	card := &fakeCard{replies: []reply{
		ok(0x01, 0x2E, 0x4C, 0xD3, 0x8A, 0x11, 0x22, 0x33),
		ok(),
		ok(icocaRecord(0x10, 0x00)...),
	}}

	cr, err := NewCardReader(card, WithReaderName("PaSoRi"))
	require.NoError(t, err)
	assert.Equal(t, "012E4CD38A112233", cr.IDm().String())

	info, err := cr.ReadInfo(&ICOCA)
	require.NoError(t, err)
	assert.Equal(t, "PaSoRi", info.Reader)
	assert.Equal(t, "icoca", info.Layout)
	require.NotNil(t, info.Balance)
	assert.Equal(t, uint16(16), *info.Balance)
	assert.Equal(t, [][]byte{cmdGetIdentifier, cmdSelectICOCA, cmdReadBinary}, card.sent)
}

func TestCardReaderWithoutBalance(t *testing.T) {
	card := &fakeCard{replies: []reply{ok(0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08)}}

	cr, err := NewCardReader(card)
	require.NoError(t, err)
	info, err := cr.ReadInfo(nil)
	require.NoError(t, err)
	assert.Nil(t, info.Balance)
	assert.Len(t, card.sent, 1)
}

func TestCardReaderRejectsUnidentifiedCard(t *testing.T) {
	card := &fakeCard{replies: []reply{{resp: []byte{0x6A, 0x81}}}}

	cr, err := NewCardReader(card)
	assert.Nil(t, cr)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestCardReaderBalanceError(t *testing.T) {
	card := &fakeCard{replies: []reply{
		ok(0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08),
		{resp: []byte{0x6A, 0x82}},
	}}

	cr, err := NewCardReader(card)
	require.NoError(t, err)
	_, err = cr.ReadInfo(&ICOCA)
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Contains(t, err.Error(), "icoca")
}
