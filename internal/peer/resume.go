package peer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/willf/bitset"

	"github.com/p2pswarm/p2pswarm/internal/meta"
)

// resumeState is the on-disk sidecar recording which pieces of a partial
// download have already been verified. In-flight block buffers are never
// persisted: on resume, any piece not yet complete is simply re-fetched in
// full from whichever owner answers first.
type resumeState struct {
	Infohash  string        `json:"infohash"`
	Meta      meta.Meta     `json:"meta"`
	Completed *bitset.BitSet `json:"completed"`
}

func resumeSidecarPath(destPath string) string {
	return destPath + ".resume.json"
}

func partPath(destPath string) string {
	return destPath + ".part"
}

// saveResume persists state to destPath's sidecar via a temp-file-and-rename
// so a crash mid-write never leaves a corrupt sidecar behind.
func saveResume(destPath string, state resumeState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("peer: marshal resume state: %w", err)
	}

	dir := filepath.Dir(destPath)
	tmp := filepath.Join(dir, fmt.Sprintf(".resume-%s.tmp", uuid.NewString()))
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("peer: write resume temp file: %w", err)
	}
	if err := os.Rename(tmp, resumeSidecarPath(destPath)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("peer: rename resume sidecar: %w", err)
	}
	return nil
}

// loadResume reads destPath's sidecar, if any. A sidecar whose recorded
// infohash doesn't match the expected one is treated as stale and ignored —
// the download starts over from piece 0.
func loadResume(destPath, wantInfohash string) (resumeState, bool) {
	raw, err := os.ReadFile(resumeSidecarPath(destPath))
	if err != nil {
		return resumeState{}, false
	}

	var state resumeState
	if err := json.Unmarshal(raw, &state); err != nil {
		return resumeState{}, false
	}
	if state.Infohash != wantInfohash {
		return resumeState{}, false
	}
	return state, true
}

func removeResumeSidecar(destPath string) {
	os.Remove(resumeSidecarPath(destPath))
}
