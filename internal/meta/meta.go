// Package meta derives content meta and infohashes for files shared over the swarm.
package meta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Meta is the self-describing record advertised for a file.
type Meta struct {
	Filename    string   `json:"filename"`
	Size        int64    `json:"size"`
	PieceSize   int64    `json:"piece_size"`
	PieceHashes []string `json:"piece_hashes"`
}

// TotalPieces returns len(PieceHashes), the canonical piece count for this meta.
func (m Meta) TotalPieces() int {
	return len(m.PieceHashes)
}

// PieceLength returns the exact byte length of piece idx, accounting for a
// shorter final piece.
func (m Meta) PieceLength(idx int) (int64, error) {
	n := m.TotalPieces()
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("meta: piece index %d out of range (total=%d)", idx, n)
	}
	if idx < n-1 {
		return m.PieceSize, nil
	}
	rem := m.Size % m.PieceSize
	if rem == 0 {
		return m.PieceSize, nil
	}
	return rem, nil
}

// BuildMeta reads filePath in strict piece-sized chunks from offset 0,
// hashing each chunk with SHA-256, and returns the derived infohash and Meta.
func BuildMeta(filePath string, pieceSize int64) (string, Meta, error) {
	if pieceSize <= 0 {
		return "", Meta{}, fmt.Errorf("meta: piece size must be positive, got %d", pieceSize)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", Meta{}, fmt.Errorf("meta: open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", Meta{}, fmt.Errorf("meta: stat %s: %w", filePath, err)
	}

	m := Meta{
		Filename:  info.Name(),
		Size:      info.Size(),
		PieceSize: pieceSize,
	}

	buf := make([]byte, pieceSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			sum := sha256.Sum256(buf[:n])
			m.PieceHashes = append(m.PieceHashes, hex.EncodeToString(sum[:]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", Meta{}, fmt.Errorf("meta: read %s: %w", filePath, err)
		}
		if n < len(buf) {
			break
		}
	}

	ih, err := Infohash(m)
	if err != nil {
		return "", Meta{}, err
	}
	return ih, m, nil
}

// CanonicalJSON serializes m with lexicographically sorted object keys,
// shortest numeric form, and UTF-8 — the canonical form infohashes are
// derived from.
func CanonicalJSON(m Meta) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("meta: marshal: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("meta: unmarshal for canonicalization: %w", err)
	}

	return marshalCanonical(generic)
}

// Infohash returns the SHA-256 hex digest of m's canonical JSON form.
func Infohash(m Meta) (string, error) {
	canon, err := CanonicalJSON(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// marshalCanonical re-marshals a generic json.Unmarshal result with object
// keys sorted recursively. encoding/json already emits map keys sorted when
// marshaling map[string]any, but we walk explicitly so the guarantee holds
// regardless of how the value was produced.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf []byte
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []any:
		var buf []byte
		buf = append(buf, '[')
		for i, e := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(val)
	}
}
