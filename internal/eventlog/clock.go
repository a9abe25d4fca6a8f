package eventlog

import (
	"time"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// nowMillis is the only place eventlog touches the wall clock: the reducer
// and tests never call time.Now directly (§4.2 requires determinism), but
// the log itself — the durable record of "when" — must stamp real time.
func nowMillis() types.Timestamp {
	return types.Timestamp(time.Now().UnixMilli())
}
