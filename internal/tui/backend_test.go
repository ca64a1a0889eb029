package tui

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbaudit/collector/internal/auditfile"
	"github.com/dbaudit/collector/internal/indexfile"
	"github.com/dbaudit/collector/internal/wire"
)

func writeRecord(t *testing.T, dir string, fileNum uint32, when int64, userName string) {
	t.Helper()
	rec := &wire.Record{Type: wire.TypeLoginSuccess, Result: wire.ResultOK}
	rec.Fields[wire.FieldUserName] = []byte(userName)
	buf := wire.Encode(rec)
	wire.Stamp(buf, when)

	f, err := os.OpenFile(auditfile.Path(dir, fileNum), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(buf)
	require.NoError(t, err)
}

func buildIndex(t *testing.T, dir string, ctimes []int64) {
	t.Helper()
	table := indexfile.New(uint32(len(ctimes)))
	for i, ct := range ctimes {
		table.Slots[i] = indexfile.Slot{Ctime: ct, FileNum: uint32(i)}
	}
	table.Count = uint32(len(ctimes))
	table.CurIdx = uint32(len(ctimes) - 1)
	require.NoError(t, table.Save(dir))
}

func TestLocalBackendQueryAndDelete(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, 0, 100, "alice")
	buildIndex(t, dir, []int64{100, 500})

	b := NewLocalBackend(dir)
	rows, err := b.Query(0, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].UserName)

	n, err := b.Delete(0, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRemoteBackendQuerySendsBearerTokenAndParsesRows(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[{"Time":100,"UserName":"bob"}],"count":1}`))
	}))
	defer srv.Close()

	b := NewRemoteBackend(srv.URL, "secret", false)
	rows, err := b.Query(0, 1000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0].UserName)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestRemoteBackendDeleteReturnsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"deleted":3}`))
	}))
	defer srv.Close()

	b := NewRemoteBackend(srv.URL, "", false)
	n, err := b.Delete(0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
