package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/alexjbarnes/chatsync/internal/codec"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before running a
// semantic cleanup pass.
const diffCleanupThreshold = 2

// contentTokenPrefix marks tokens derived from a document that was
// published without a sync id.
const contentTokenPrefix = "content-"

// tokenOf returns the sync token of a remote document. Documents
// published without one get a stable token derived from their content.
func tokenOf(doc []byte) string {
	if id := codec.PeekSyncID(doc); id != "" {
		return id
	}

	sum := sha256.Sum256(doc)

	return contentTokenPrefix + hex.EncodeToString(sum[:16])
}

// diffSummary describes how far the remote document is from the local
// export, ignoring sync tokens.
func diffSummary(local, remote []byte) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(codec.Unstamped(remote)), string(codec.Unstamped(local)), false)

	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	var ins, del int

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			ins += len(d.Text)
		case diffmatchpatch.DiffDelete:
			del += len(d.Text)
		}
	}

	if ins == 0 && del == 0 {
		return "contents identical"
	}

	return fmt.Sprintf("local has %d characters not in remote, remote has %d not in local", ins, del)
}
