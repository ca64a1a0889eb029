package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed audit record header: 2-byte signature,
	// 2-byte version, 2-byte field count, 2-byte flags, 8-byte signed
	// creation time, 4-byte total size.
	HeaderSize = 2 + 2 + 2 + 2 + 8 + 4

	// FieldCount is the number of fields every record carries (category,
	// result, 10 string fields — the header's "fields" value is the sum of
	// those plus the 1 implicit "header" field the original format counts;
	// spec.md fixes this at 13 to match the original wire format exactly).
	FieldCount = 13

	signatureA, signatureB byte = 'A', 'U'
	currentVersion         uint16 = 0
)

// Flag values for Header.Flags.
const (
	FlagLive    uint16 = 1
	FlagDeleted uint16 = 2
)

// StringField indexes the 10 fixed-order string fields.
type StringField int

const (
	FieldUserID StringField = iota
	FieldUserName
	FieldDatabaseName
	FieldClientConnInfo
	FieldObjectName
	FieldDetailInfo
	FieldNodeName
	FieldThreadID
	FieldLocalPort
	FieldRemotePort
	numStringFields
)

// Type is the audit category enum. Values and order match the original
// collector's AuditTypeDescs table so on-disk records remain meaningful
// across a reimplementation.
type Type uint16

const (
	TypeUnknown Type = iota
	TypeLoginSuccess
	TypeLoginFailed
	TypeUserLogout
	TypeSystemStart
	TypeSystemStop
	TypeSystemRecover
	TypeSystemSwitch
	TypeLockUser
	TypeUnlockUser
	TypeGrantRole
	TypeRevokeRole
	TypeUserViolation
	TypeDDLDatabase
	TypeDDLDirectory
	TypeDDLTablespace
	TypeDDLSchema
	TypeDDLUser
	TypeDDLTable
	TypeDDLIndex
	TypeDDLView
	TypeDDLTrigger
	TypeDDLFunction
	TypeDMLAction
	TypeDMLActionSelect
	TypeInternalEvent
	TypeFunctionExec
	TypeCopyTo
	TypeCopyFrom
	TypeSetParameter
)

var typeLabels = [...]string{
	"unknown", "login_success", "login_failed", "user_logout",
	"system_start", "system_stop", "system_recover", "system_switch",
	"lock_user", "unlock_user", "grant_role", "revoke_role", "user_violation",
	"ddl_database", "ddl_directory", "ddl_tablespace", "ddl_schema", "ddl_user",
	"ddl_table", "ddl_index", "ddl_view", "ddl_trigger", "ddl_function",
	"dml_action", "dml_action_select", "internal_event", "function_exec",
	"copy_to", "copy_from", "set_parameter",
}

// Label returns the lowercase category name, or "unknown" if t is out of range.
func (t Type) Label() string {
	if int(t) < len(typeLabels) {
		return typeLabels[t]
	}
	return typeLabels[TypeUnknown]
}

// Result is the outcome enum.
type Result uint16

const (
	ResultUnknown Result = iota
	ResultOK
	ResultFailed
)

var resultLabels = [...]string{"unknown", "ok", "failed"}

// Label returns the lowercase result name.
func (r Result) Label() string {
	if int(r) < len(resultLabels) {
		return resultLabels[r]
	}
	return resultLabels[ResultUnknown]
}

// Header is the fixed portion of an audit record.
type Header struct {
	Version uint16
	Fields  uint16
	Flags   uint16
	Time    int64 // seconds since epoch; negative only ever appears on the index slot's ctime, never here
	Size    uint32
}

// Record is one fully decoded audit record. String fields are nil for NULL;
// an explicit empty string also decodes as nil, matching the wire
// convention that length 0 encodes NULL.
//
// Note on NULL vs empty: spec.md §3 says "length may be 0 for 'absent'...
// length 0 specifically encodes NULL without a trailing byte" — there is no
// wire distinction between an absent field and an explicit empty string;
// both are length-0. Record.Fields therefore treats length 0 as NULL
// uniformly, which is what every caller in this codebase needs.
type Record struct {
	Header Header
	Type   Type
	Result Result
	Fields [numStringFields][]byte
}

// Field returns the borrowed byte slice for the given field, or nil if NULL.
func (r *Record) Field(f StringField) []byte {
	return r.Fields[f]
}

// FieldString renders a field the way query output does: "null" for NULL.
func (r *Record) FieldString(f StringField) string {
	if b := r.Fields[f]; b != nil {
		return string(b)
	}
	return "null"
}

// Encode serializes r to its on-disk form. Time is written as a placeholder
// (0) and Size as the encoded length; the collector stamps both again at
// append time (§4.6), the same split of responsibility as the original
// encode/append pair.
func Encode(r *Record) []byte {
	size := HeaderSize + 2 + 2 // category + result
	for _, f := range r.Fields {
		size += 4 + len(f)
	}

	buf := make([]byte, size)
	buf[0], buf[1] = signatureA, signatureB
	binary.LittleEndian.PutUint16(buf[2:4], currentVersion)
	binary.LittleEndian.PutUint16(buf[4:6], FieldCount)
	binary.LittleEndian.PutUint16(buf[6:8], FlagLive)
	binary.LittleEndian.PutUint64(buf[8:16], 0) // time placeholder
	binary.LittleEndian.PutUint32(buf[16:20], uint32(size))

	off := HeaderSize
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(r.Type))
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(r.Result))
	off += 2

	for _, f := range r.Fields {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(f)))
		off += 4
		copy(buf[off:], f)
		off += len(f)
	}
	return buf
}

// Stamp overwrites the time and size fields in-place, as the collector's
// append() does for every record on the way into the current file.
func Stamp(buf []byte, now int64) {
	binary.LittleEndian.PutUint64(buf[8:16], uint64(now))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(buf)))
}

// SetFlags overwrites the flags field in-place. query.Delete rewrites the
// same two bytes directly in the file rather than calling this.
func SetFlags(buf []byte, flags uint16) {
	binary.LittleEndian.PutUint16(buf[6:8], flags)
}

// ErrCorrupt is returned by Decode when a record's header or string region
// fails validation; callers performing a file scan should stop scanning the
// current file and move on, per spec.md §7's skip-record policy.
var ErrCorrupt = fmt.Errorf("wire: corrupt audit record")

// DecodeHeader parses and validates just the fixed header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if buf[0] != signatureA || buf[1] != signatureB {
		return Header{}, fmt.Errorf("%w: bad signature", ErrCorrupt)
	}
	version := binary.LittleEndian.Uint16(buf[2:4])
	if version != currentVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	fields := binary.LittleEndian.Uint16(buf[4:6])
	if fields != FieldCount {
		return Header{}, fmt.Errorf("%w: unexpected field count %d", ErrCorrupt, fields)
	}
	flags := binary.LittleEndian.Uint16(buf[6:8])
	if flags != FlagLive && flags != FlagDeleted {
		return Header{}, fmt.Errorf("%w: unexpected flags %d", ErrCorrupt, flags)
	}
	size := binary.LittleEndian.Uint32(buf[16:20])
	if size < uint32(HeaderSize) {
		return Header{}, fmt.Errorf("%w: size %d below header size", ErrCorrupt, size)
	}
	return Header{
		Version: version,
		Fields:  fields,
		Flags:   flags,
		Time:    int64(binary.LittleEndian.Uint64(buf[8:16])),
		Size:    size,
	}, nil
}

// Decode parses a complete record, including the string region. buf must be
// exactly Header.Size bytes (callers read that many bytes from the file
// before calling Decode).
func Decode(buf []byte) (*Record, error) {
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if uint32(len(buf)) != hdr.Size {
		return nil, fmt.Errorf("%w: buffer length %d does not match header size %d", ErrCorrupt, len(buf), hdr.Size)
	}

	off := HeaderSize
	if off+4 > len(buf) {
		return nil, fmt.Errorf("%w: truncated category/result", ErrCorrupt)
	}
	typ := Type(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	res := Result(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2

	rec := &Record{Header: hdr, Type: typ, Result: res}
	region := buf[off:]
	regionLen := len(region)
	pos := 0
	for i := 0; i < int(numStringFields); i++ {
		if pos+4 > regionLen {
			return nil, fmt.Errorf("%w: truncated field %d length", ErrCorrupt, i)
		}
		flen := int(binary.LittleEndian.Uint32(region[pos : pos+4]))
		pos += 4
		if flen < 0 || pos+flen > regionLen {
			return nil, fmt.Errorf("%w: field %d length %d exceeds remaining region", ErrCorrupt, i, flen)
		}
		if flen > 0 {
			rec.Fields[i] = region[pos : pos+flen]
		}
		pos += flen
	}
	if pos != regionLen {
		return nil, fmt.Errorf("%w: %d trailing bytes after last field", ErrCorrupt, regionLen-pos)
	}
	return rec, nil
}
