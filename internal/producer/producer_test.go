package producer

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbaudit/collector/internal/wire"
)

type fakeSelfWriter struct {
	records [][]byte
}

func (f *fakeSelfWriter) AppendRecord(buf []byte) error {
	f.records = append(f.records, buf)
	return nil
}

func TestEmitDropsDisabledCategory(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{}, WithPipe(&buf, 256))

	require.NoError(t, p.Emit(wire.TypeDDLTable, wire.ResultOK, "t", "created", Fields{}))
	assert.Equal(t, 0, buf.Len(), "category disabled in policy should be dropped silently")
}

func TestEmitAllowsEnabledCategory(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{DDL: true}, WithPipe(&buf, 256))

	require.NoError(t, p.Emit(wire.TypeDDLTable, wire.ResultOK, "t", "created", Fields{}))
	assert.Greater(t, buf.Len(), 0)
}

func TestEmitAlwaysAllowsInternalEvent(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{}, WithPipe(&buf, 256))

	require.NoError(t, p.Emit(wire.TypeInternalEvent, wire.ResultOK, "file", "rotated", Fields{}))
	assert.Greater(t, buf.Len(), 0, "internal_event is never policy-gated")
}

func TestEmitDropsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{DDL: true, Session: true}, WithPipe(&buf, 256))

	require.NoError(t, p.Emit(wire.TypeUnknown, wire.ResultOK, "x", "y", Fields{}))
	assert.Equal(t, 0, buf.Len())
}

func TestEmitSuppressedInStandbyMode(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{Session: true}, WithPipe(&buf, 256))
	p.SetMode(ModeStandby)

	require.NoError(t, p.Emit(wire.TypeLoginSuccess, wire.ResultOK, "u", "ok", Fields{}))
	assert.Equal(t, 0, buf.Len())
}

func TestEmitSuppressedInPendingMode(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{Session: true}, WithPipe(&buf, 256))
	p.SetMode(ModePending)

	require.NoError(t, p.Emit(wire.TypeLoginSuccess, wire.ResultOK, "u", "ok", Fields{}))
	assert.Equal(t, 0, buf.Len())
}

func TestEmitSelfWriteBypassesPipe(t *testing.T) {
	var buf bytes.Buffer
	sw := &fakeSelfWriter{}
	p := New(1, 42, Policy{Session: true}, WithPipe(&buf, 256), WithSelfWriter(sw))

	require.NoError(t, p.Emit(wire.TypeLoginSuccess, wire.ResultOK, "u", "ok", Fields{}))
	assert.Equal(t, 0, buf.Len(), "self-write path must not also write to the pipe")
	require.Len(t, sw.records, 1)
}

func TestEmitDroppedOnStateWhenUnwired(t *testing.T) {
	p := New(1, 42, Policy{Session: true})
	err := p.Emit(wire.TypeLoginSuccess, wire.ResultOK, "u", "ok", Fields{})
	assert.NoError(t, err, "an unwired producer must not fail its caller")
}

func TestEmitComposesThreadIDFromPidAndLoginTime(t *testing.T) {
	var buf bytes.Buffer
	p := New(9, 4242, Policy{Session: true}, WithPipe(&buf, 4096))
	loginTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.SetLoginTime(loginTime)

	require.NoError(t, p.Emit(wire.TypeLoginSuccess, wire.ResultOK, "u", "ok", Fields{}))

	frame, n, ok := wire.TryDecodeFrame(buf.Bytes(), 4096)
	require.True(t, ok)
	require.Equal(t, len(buf.Bytes()), n)
	rec, err := wire.Decode(frame.Payload)
	require.NoError(t, err)

	want := fmt.Sprintf("%d@%d", 4242, loginTime.Unix())
	assert.Equal(t, want, rec.FieldString(wire.FieldThreadID))
}

func TestEmitFieldsRoundTripThroughChunks(t *testing.T) {
	var buf bytes.Buffer
	p := New(3, 100, Policy{DML: true}, WithPipe(&buf, 4096))

	fields := Fields{
		UserID:         "7",
		UserName:       "alice",
		DatabaseName:   "app",
		ClientConnInfo: "psql@10.0.0.1",
		LocalPort:      "5432",
		RemotePort:     "54321",
		NodeName:       "node-2",
	}
	require.NoError(t, p.Emit(wire.TypeDMLAction, wire.ResultOK, "orders", "insert", fields))

	frame, n, ok := wire.TryDecodeFrame(buf.Bytes(), 4096)
	require.True(t, ok)
	require.Equal(t, len(buf.Bytes()), n)

	rec, err := wire.Decode(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.FieldString(wire.FieldUserName))
	assert.Equal(t, "app", rec.FieldString(wire.FieldDatabaseName))
	assert.Equal(t, "orders", rec.FieldString(wire.FieldObjectName))
	assert.Equal(t, "insert", rec.FieldString(wire.FieldDetailInfo))
	assert.Equal(t, "node-2", rec.FieldString(wire.FieldNodeName))
	assert.Equal(t, wire.TypeDMLAction, rec.Type)
	assert.Equal(t, wire.ResultOK, rec.Result)
}

func TestEmitStampsNodeNameFromWithNodeNameWhenFieldsOmitIt(t *testing.T) {
	var buf bytes.Buffer
	p := New(1, 42, Policy{Session: true}, WithPipe(&buf, 256), WithNodeName("configured-node"))

	require.NoError(t, p.Emit(wire.TypeLoginSuccess, wire.ResultOK, "u", "ok", Fields{}))

	frame, n, ok := wire.TryDecodeFrame(buf.Bytes(), 256)
	require.True(t, ok)
	require.Equal(t, len(buf.Bytes()), n)
	rec, err := wire.Decode(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, "configured-node", rec.FieldString(wire.FieldNodeName))
}
