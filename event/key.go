package event

import (
	"encoding/json"
	"hash/fnv"
	"strconv"

	"github.com/tidwall/sjson"
)

// Key returns a deterministic dedup key built from the event's semantic
// fields. Timestamps filled in from the clock are left out so the same
// payload received twice yields the same key; thinking deltas keep theirs
// because identical tokens legitimately repeat.
func Key(ev Event) string {
	if ev == nil {
		return ""
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return ev.Name()
	}
	if _, isDelta := ev.(SubagentThinkingDelta); !isDelta && inferred(ev) {
		if stripped, err := sjson.DeleteBytes(raw, "timestamp"); err == nil {
			raw = stripped
		}
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(ev.Name()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(raw)
	return ev.Name() + ":" + strconv.FormatUint(h.Sum64(), 16)
}

func inferred(ev Event) bool {
	type metaCarrier interface{ meta() Meta }
	if mc, ok := ev.(metaCarrier); ok {
		return mc.meta().Inferred
	}
	return false
}

func (m Meta) meta() Meta { return m }
