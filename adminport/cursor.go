package adminport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/prataprc/collatejson"
)

// cursorCodec turns a (enqueued_at, uid) pagination position into an opaque,
// order-preserving token for task-listing paging: two tokens compare in the
// same order as the positions they encode, without the caller ever decoding
// one, the same trick used for turning structured values into comparable
// secondary-index key bytes.
var cursorCodec = collatejson.NewCodec(8)

type cursorPosition struct {
	EnqueuedAtNanos int64  `json:"e"`
	UID             uint32 `json:"u"`
}

// encodeCursor produces the opaque "next page" token for a get_tasks
// response whose last row sits at (enqueuedAtNanos, uid).
func encodeCursor(enqueuedAtNanos int64, uid uint32) (string, error) {
	raw, err := json.Marshal(cursorPosition{EnqueuedAtNanos: enqueuedAtNanos, UID: uid})
	if err != nil {
		return "", err
	}
	ordered, err := cursorCodec.Encode(raw, nil)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(ordered), nil
}

// decodeCursor reverses encodeCursor; callers pass the result as an
// exclusive after-bound of an Enqueued TimeRange combined with an exclusive
// lower uid bound.
func decodeCursor(token string) (cursorPosition, error) {
	var pos cursorPosition
	ordered, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return pos, fmt.Errorf("malformed cursor: %w", err)
	}
	raw, err := cursorCodec.Decode(ordered, nil)
	if err != nil {
		return pos, fmt.Errorf("decoding cursor: %w", err)
	}
	if err := json.Unmarshal(raw, &pos); err != nil {
		return pos, fmt.Errorf("malformed cursor payload: %w", err)
	}
	return pos, nil
}
