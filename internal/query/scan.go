package query

import (
	"io"
	"os"

	"github.com/dbaudit/collector/internal/auditfile"
	"github.com/dbaudit/collector/internal/wire"
)

// Row is one audit record rendered for query output, spec.md §4.8's
// 13-column projection (category and result as their label strings, every
// string field with NULL rendered as "null").
type Row struct {
	Time           int64
	Type           string
	Result         string
	UserID         string
	UserName       string
	DatabaseName   string
	ClientConnInfo string
	ObjectName     string
	DetailInfo     string
	NodeName       string
	ThreadID       string
	LocalPort      string
	RemotePort     string
}

func rowFromRecord(rec *wire.Record) Row {
	return Row{
		Time:           rec.Header.Time,
		Type:           rec.Type.Label(),
		Result:         rec.Result.Label(),
		UserID:         rec.FieldString(wire.FieldUserID),
		UserName:       rec.FieldString(wire.FieldUserName),
		DatabaseName:   rec.FieldString(wire.FieldDatabaseName),
		ClientConnInfo: rec.FieldString(wire.FieldClientConnInfo),
		ObjectName:     rec.FieldString(wire.FieldObjectName),
		DetailInfo:     rec.FieldString(wire.FieldDetailInfo),
		NodeName:       rec.FieldString(wire.FieldNodeName),
		ThreadID:       rec.FieldString(wire.FieldThreadID),
		LocalPort:      rec.FieldString(wire.FieldLocalPort),
		RemotePort:     rec.FieldString(wire.FieldRemotePort),
	}
}

// visitFunc is called once per successfully decoded record, with offset
// being the byte position of its header within the file. Returning true
// stops the scan early.
type visitFunc func(offset int64, rec *wire.Record) (stop bool)

// scanRecords reads sequential records from r, exactly as
// pgaudit_query_file/pgaudit_delete_file do: stop the whole file on the
// first header that fails validation rather than trying to resynchronize,
// since a bad header means the rest of the file cannot be trusted to be
// framed correctly either.
func scanRecords(r io.Reader, visit visitFunc) error {
	var offset int64
	header := make([]byte, wire.HeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return nil
			}
			return nil // short trailing read: treat like any other truncated tail
		}

		hdr, err := wire.DecodeHeader(header)
		if err != nil {
			return nil
		}

		full := make([]byte, hdr.Size)
		copy(full, header)
		if bodyLen := int(hdr.Size) - wire.HeaderSize; bodyLen > 0 {
			if _, err := io.ReadFull(r, full[wire.HeaderSize:]); err != nil {
				return nil
			}
		}

		rec, err := wire.Decode(full)
		if err != nil {
			return nil
		}

		if visit(offset, rec) {
			return nil
		}
		offset += int64(hdr.Size)
	}
}

func openArchiveFile(dir string, fileNum uint32, writable bool) (*os.File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	return os.OpenFile(auditfile.Path(dir, fileNum), flag, 0)
}
