package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
)

// SchemaVersion is the payload schema written by this build.
const SchemaVersion = 2

// minSchemaVersion is the oldest payload schema a migration path exists for.
const minSchemaVersion = 1

const formatName = "fsz"

const formatVersion = 1

// Ext is the snapshot file extension, dot included.
const Ext = ".fsz"

var (
	// ErrChecksumMismatch reports that snapshot bytes do not match the
	// checksum recorded in the manifest. The blob must not be trusted.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	// ErrIncompatibleSchema reports a payload schema with no migration path.
	ErrIncompatibleSchema = errors.New("incompatible snapshot schema")
	// ErrMalformed reports a blob that cannot be parsed at all.
	ErrMalformed = errors.New("malformed snapshot")
)

// Payload is the application state captured by one snapshot. Data is opaque
// to the engine; the application layer owns its shape.
type Payload struct {
	SessionKeyHash string
	SessionLabel   string
	CreatedAt      time.Time
	Reason         manifest.Reason
	Data           json.RawMessage
}

// Header is the uncompressed metadata line at the front of every blob.
type Header struct {
	Format         string          `json:"format"`
	FormatVersion  int             `json:"format_version"`
	SchemaVersion  int             `json:"schema_version"`
	AppVersion     string          `json:"app_version"`
	SessionKeyHash string          `json:"session_key_hash"`
	SessionLabel   string          `json:"session_label,omitempty"`
	Reason         manifest.Reason `json:"reason"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Info summarizes an encoded blob for manifest bookkeeping.
type Info struct {
	Checksum       string
	CompressedSize int64
	SchemaVersion  int
	AppVersion     string
}

// Encode serializes a payload into the blob format: one JSON header line
// followed by the gzip-compressed application data.
func Encode(p Payload, appVersion string) ([]byte, Info, error) {
	if p.SessionKeyHash == "" {
		return nil, Info{}, errors.New("payload session key hash is required")
	}
	if len(p.Data) == 0 {
		return nil, Info{}, errors.New("payload data is empty")
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	header := Header{
		Format:         formatName,
		FormatVersion:  formatVersion,
		SchemaVersion:  SchemaVersion,
		AppVersion:     appVersion,
		SessionKeyHash: p.SessionKeyHash,
		SessionLabel:   p.SessionLabel,
		Reason:         p.Reason,
		CreatedAt:      createdAt.UTC(),
	}

	var buf bytes.Buffer
	headerLine, err := json.Marshal(header)
	if err != nil {
		return nil, Info{}, fmt.Errorf("marshal snapshot header: %w", err)
	}
	buf.Write(headerLine)
	buf.WriteByte('\n')

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(p.Data); err != nil {
		return nil, Info{}, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, Info{}, fmt.Errorf("finish snapshot compression: %w", err)
	}

	blob := buf.Bytes()
	info := Info{
		Checksum:       Checksum(blob),
		CompressedSize: int64(len(blob)),
		SchemaVersion:  SchemaVersion,
		AppVersion:     appVersion,
	}
	return blob, info, nil
}

// Decode parses a blob back into a payload, migrating older schemas forward.
// Callers verify the checksum against the manifest entry first; Decode only
// guards against structural damage and unsupported schemas.
func Decode(blob []byte) (Payload, Header, error) {
	reader := bufio.NewReader(bytes.NewReader(blob))
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return Payload{}, Header{}, fmt.Errorf("%w: missing header line", ErrMalformed)
	}

	var header Header
	if err := json.Unmarshal(headerLine, &header); err != nil {
		return Payload{}, Header{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if header.Format != formatName {
		return Payload{}, Header{}, fmt.Errorf("%w: unexpected format %q", ErrMalformed, header.Format)
	}
	if header.SchemaVersion > SchemaVersion || header.SchemaVersion < minSchemaVersion {
		return Payload{}, header, fmt.Errorf("%w: schema %d, supported %d..%d",
			ErrIncompatibleSchema, header.SchemaVersion, minSchemaVersion, SchemaVersion)
	}

	zr, err := gzip.NewReader(reader)
	if err != nil {
		return Payload{}, header, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return Payload{}, header, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	data, err = migrate(data, header.SchemaVersion)
	if err != nil {
		return Payload{}, header, err
	}

	return Payload{
		SessionKeyHash: header.SessionKeyHash,
		SessionLabel:   header.SessionLabel,
		CreatedAt:      header.CreatedAt,
		Reason:         header.Reason,
		Data:           data,
	}, header, nil
}

// Checksum returns the hex sha256 over the exact blob bytes. The same bytes
// are written to storage, so the manifest checksum can be recomputed from a
// read-back without re-encoding.
func Checksum(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the blob checksum and compares it to the expected value.
func Verify(blob []byte, expected string) error {
	if Checksum(blob) != expected {
		return ErrChecksumMismatch
	}
	return nil
}
