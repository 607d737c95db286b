package hosterr

import (
	"strings"

	"github.com/cryguy/dualstd/internal/core"
)

// MiniGame native error codes.
const (
	CodeNoSuchFile    = 1300002
	CodeAlreadyExists = 1301005
)

// rule matches either a lowercase message substring or a native code.
type rule struct {
	substr string
	code   int
	kind   Kind
	exists bool // the already-exists condition, not a kind
}

// patterns is the one place native message text is interpreted. Rules are
// tried in order; the first match wins.
var patterns = map[core.Runtime][]rule{
	core.RuntimeWeb: {
		{substr: "abort", kind: KindAbort},
		{substr: "context canceled", kind: KindAbort},
		{substr: "timeout", kind: KindTimeout},
		{substr: "timed out", kind: KindTimeout},
		{substr: "deadline exceeded", kind: KindTimeout},
		{substr: "no such file or directory", kind: KindNotFound},
		{substr: "data not found", kind: KindNotFound},
		{substr: "already exists", exists: true},
		{substr: "file exists", exists: true},
	},
	core.RuntimeMiniGame: {
		{code: CodeNoSuchFile, kind: KindNotFound},
		{code: CodeAlreadyExists, exists: true},
		{substr: "abort", kind: KindAbort},
		{substr: "timeout", kind: KindTimeout},
		{substr: "no such file or directory", kind: KindNotFound},
		{substr: "data not found", kind: KindNotFound},
		{substr: "already exists", exists: true},
	},
}

func classify(rt core.Runtime, msg string, code int) (Kind, bool) {
	lower := strings.ToLower(msg)
	for _, r := range patterns[rt] {
		if r.code != 0 {
			if r.code != code {
				continue
			}
		} else if !strings.Contains(lower, r.substr) {
			continue
		}
		return r.kind, r.exists
	}
	return KindGeneric, false
}
