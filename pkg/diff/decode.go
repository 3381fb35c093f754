package diff

import "fmt"

// wire names as sent by the bridge; the stream uses camelCase tags.
var wireKinds = map[string]Kind{
	"append":    KindAppend,
	"insert":    KindInsert,
	"remove":    KindRemove,
	"set":       KindSet,
	"pushFront": KindPushFront,
	"pushBack":  KindPushBack,
	"popFront":  KindPopFront,
	"popBack":   KindPopBack,
	"truncate":  KindTruncate,
	"clear":     KindClear,
	"reset":     KindReset,
}

// Decode turns one already-deserialized diff object from the bridge stream
// into a Diff over raw values. The caller projects values into domain types
// with Map afterwards.
func Decode(raw map[string]any) (Diff[any], error) {
	kindStr, _ := raw["kind"].(string)
	kind, ok := wireKinds[kindStr]
	if !ok {
		return Diff[any]{}, fmt.Errorf("%w: %q", ErrUnknownKind, kindStr)
	}

	d := Diff[any]{Kind: kind}

	switch kind {
	case KindInsert, KindSet:
		d.Index = intField(raw, "index")
		d.Value = raw["value"]
	case KindRemove:
		d.Index = intField(raw, "index")
	case KindPushFront, KindPushBack:
		d.Value = raw["value"]
	case KindTruncate:
		d.Length = intField(raw, "length")
	case KindAppend, KindReset:
		if values, ok := raw["values"].([]any); ok {
			d.Values = values
		}
	}

	return d, nil
}

// JSON numbers arrive as float64, a re-encoded batch may carry int.
func intField(raw map[string]any, key string) int {
	switch n := raw[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	}
	return 0
}
