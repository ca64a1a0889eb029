package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomField(rng *rand.Rand, maxLen int) []byte {
	n := rng.Intn(maxLen + 1)
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestRecordCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		rec := &Record{
			Type:   Type(rng.Intn(int(TypeSetParameter) + 1)),
			Result: Result(rng.Intn(3)),
		}
		for i := range rec.Fields {
			rec.Fields[i] = randomField(rng, 64)
		}

		buf := Encode(rec)
		Stamp(buf, 1700000000)

		got, err := Decode(buf)
		require.NoError(t, err)

		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, rec.Result, got.Result)
		assert.Equal(t, int64(1700000000), got.Header.Time)
		assert.Equal(t, uint32(len(buf)), got.Header.Size)
		for i := range rec.Fields {
			assert.Equal(t, rec.Fields[i], got.Fields[i], "field %d mismatch", i)
		}
	}
}

func TestRecordNullVsEmptyField(t *testing.T) {
	rec := &Record{Type: TypeLoginSuccess, Result: ResultOK}
	rec.Fields[FieldUserName] = nil
	rec.Fields[FieldObjectName] = []byte{}

	buf := Encode(rec)
	got, err := Decode(buf)
	require.NoError(t, err)

	assert.Nil(t, got.Fields[FieldUserName])
	assert.Equal(t, "null", got.FieldString(FieldUserName))
	// Both nil and explicit-empty decode to nil per the wire convention
	// (length 0 always means NULL); FieldString renders both as "null".
	assert.Equal(t, "null", got.FieldString(FieldObjectName))
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	rec := &Record{Type: TypeLoginSuccess, Result: ResultOK}
	buf := Encode(rec)
	buf[0] = 'X'

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	rec := &Record{Type: TypeLoginSuccess, Result: ResultOK}
	rec.Fields[FieldUserName] = []byte("alice")
	buf := Encode(rec)

	_, err := Decode(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeRejectsOversizedFieldLength(t *testing.T) {
	rec := &Record{Type: TypeLoginSuccess, Result: ResultOK}
	buf := Encode(rec)

	// Corrupt the first field's length prefix to claim far more bytes than remain.
	off := HeaderSize + 4
	buf[off] = 0xff
	buf[off+1] = 0xff
	buf[off+2] = 0xff
	buf[off+3] = 0x7f

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestTypeAndResultLabels(t *testing.T) {
	assert.Equal(t, "login_success", TypeLoginSuccess.Label())
	assert.Equal(t, "internal_event", TypeInternalEvent.Label())
	assert.Equal(t, "unknown", Type(9999).Label())

	assert.Equal(t, "ok", ResultOK.Label())
	assert.Equal(t, "failed", ResultFailed.Label())
	assert.Equal(t, "unknown", Result(9999).Label())
}

func TestSetFlags(t *testing.T) {
	rec := &Record{Type: TypeLoginSuccess, Result: ResultOK}
	buf := Encode(rec)

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, FlagLive, hdr.Flags)

	SetFlags(buf, FlagDeleted)
	hdr, err = DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, FlagDeleted, hdr.Flags)
}
