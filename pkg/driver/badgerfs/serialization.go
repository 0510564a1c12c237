package badgerfs

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rasky/go-xdr/xdr2"

	"github.com/corvfs/corvfs/pkg/vfs"
)

// Serialization Strategy
// ======================
//
// Attribute records are small, flat and schema-stable, so they are stored
// in XDR: a compact, endian-defined binary encoding that is trivial to
// decode from other tooling. Content blobs are raw bytes and need no
// encoding at all.

// attrRecord is the persistent form of a node's attributes. All fields
// are fixed-width so the XDR encoding stays compact and stable.
type attrRecord struct {
	// Size is the content length in bytes.
	Size int64

	// Mode carries permission plus type bits.
	Mode uint32

	// Kind is the node kind at creation time.
	Kind int32

	// UID and GID identify the owner.
	UID uint32
	GID uint32

	// AtimeUnix, MtimeUnix and CtimeUnix are nanosecond Unix timestamps.
	AtimeUnix int64
	MtimeUnix int64
	CtimeUnix int64
}

// newAttrRecord builds a record for a freshly created object.
func newAttrRecord(mode uint32, kind vfs.Kind) attrRecord {
	now := time.Now().UnixNano()
	return attrRecord{
		Mode:      mode,
		Kind:      int32(kind),
		AtimeUnix: now,
		MtimeUnix: now,
		CtimeUnix: now,
	}
}

// toStat converts the persistent record into the core's Stat form.
func (r *attrRecord) toStat() vfs.Stat {
	return vfs.Stat{
		Size:  r.Size,
		Mode:  r.Mode,
		UID:   r.UID,
		GID:   r.GID,
		Atime: time.Unix(0, r.AtimeUnix),
		Mtime: time.Unix(0, r.MtimeUnix),
		Ctime: time.Unix(0, r.CtimeUnix),
	}
}

// encodeAttrRecord serializes an attribute record to XDR bytes.
func encodeAttrRecord(record *attrRecord) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, record); err != nil {
		return nil, fmt.Errorf("failed to encode attribute record: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeAttrRecord deserializes an attribute record from XDR bytes.
func decodeAttrRecord(data []byte, record *attrRecord) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), record); err != nil {
		return fmt.Errorf("failed to decode attribute record: %w", err)
	}
	return nil
}
