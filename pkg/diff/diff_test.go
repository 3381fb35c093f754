package diff

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		desc  string
		start []string
		d     Diff[string]
		want  []string
	}{
		{"append to empty", nil, Append("a", "b"), []string{"a", "b"}},
		{"append", []string{"a"}, Append("b"), []string{"a", "b"}},
		{"insert front", []string{"b"}, Insert(0, "a"), []string{"a", "b"}},
		{"insert middle", []string{"a", "c"}, Insert(1, "b"), []string{"a", "b", "c"}},
		{"insert at length", []string{"a"}, Insert(1, "b"), []string{"a", "b"}},
		{"remove", []string{"a", "b", "c"}, Remove[string](1), []string{"a", "c"}},
		{"set", []string{"a", "b"}, Set(1, "x"), []string{"a", "x"}},
		{"push front", []string{"b"}, PushFront("a"), []string{"a", "b"}},
		{"push back", []string{"a"}, PushBack("b"), []string{"a", "b"}},
		{"pop front", []string{"a", "b"}, PopFront[string](), []string{"b"}},
		{"pop back", []string{"a", "b"}, PopBack[string](), []string{"a"}},
		{"truncate", []string{"a", "b", "c"}, Truncate[string](1), []string{"a"}},
		{"truncate to zero", []string{"a"}, Truncate[string](0), []string{}},
		{"clear", []string{"a", "b"}, Clear[string](), []string{}},
		{"reset", []string{"a"}, Reset("x", "y"), []string{"x", "y"}},
		{"reset to empty", []string{"a"}, Reset[string](), []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := Apply(tc.start, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestApplyOutOfBounds(t *testing.T) {
	tests := []struct {
		desc  string
		start []string
		d     Diff[string]
	}{
		{"insert past length", []string{"a"}, Insert(2, "b")},
		{"insert negative", []string{"a"}, Insert(-1, "b")},
		{"remove past end", []string{"a"}, Remove[string](1)},
		{"remove from empty", nil, Remove[string](0)},
		{"set past end", []string{"a"}, Set(1, "x")},
		{"pop front empty", nil, PopFront[string]()},
		{"pop back empty", nil, PopBack[string]()},
		{"truncate past length", []string{"a"}, Truncate[string](2)},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Apply(tc.start, tc.d)
			assert.ErrorIs(t, err, ErrIndexOutOfBounds)
		})
	}
}

func TestApplyUnknownKind(t *testing.T) {
	_, err := Apply([]string{"a"}, Diff[string]{Kind: "swap"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	start := []string{"a", "b", "c"}
	_, err := Apply(start, Set(1, "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, start)
}

func testSequence() []Diff[string] {
	return []Diff[string]{
		Reset("a", "b", "c"),
		Insert(1, "x"),
		Remove[string](0),
		PushFront("f"),
		Append("y", "z"),
		Set(2, "m"),
		PopBack[string](),
		Truncate[string](4),
	}
}

// Batch boundaries must not affect the folded result.
func TestApplyAllBatchingInvariant(t *testing.T) {
	diffs := testSequence()

	whole, err := ApplyAll(nil, diffs)
	require.NoError(t, err)

	for split := 0; split <= len(diffs); split++ {
		first, err := ApplyAll(nil, diffs[:split])
		require.NoError(t, err)
		got, err := ApplyAll(first, diffs[split:])
		require.NoError(t, err)
		assert.Equal(t, whole, got, "split at %d", split)
	}
}

// Mapping diffs then folding must equal folding then mapping elements.
func TestMapCommutesWithFold(t *testing.T) {
	f := func(s string) string { return s + s }

	diffs := testSequence()
	mapped := make([]Diff[string], len(diffs))
	for i, d := range diffs {
		mapped[i] = Map(d, f)
	}

	foldedMapped, err := ApplyAll(nil, mapped)
	require.NoError(t, err)

	folded, err := ApplyAll(nil, diffs)
	require.NoError(t, err)
	mappedFolded := make([]string, len(folded))
	for i, v := range folded {
		mappedFolded[i] = f(v)
	}

	assert.Equal(t, mappedFolded, foldedMapped)
}

func TestMapChangesType(t *testing.T) {
	d := Map(Append("1", "2"), func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	})
	assert.Equal(t, KindAppend, d.Kind)
	assert.Equal(t, []int{1, 2}, d.Values)
}

func TestMapPassesIndexKindsThrough(t *testing.T) {
	d := Map(Remove[string](3), func(s string) int { return 0 })
	assert.Equal(t, KindRemove, d.Kind)
	assert.Equal(t, 3, d.Index)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		desc string
		raw  map[string]any
		want Diff[any]
	}{
		{
			"insert",
			map[string]any{"kind": "insert", "index": float64(2), "value": "v"},
			Diff[any]{Kind: KindInsert, Index: 2, Value: "v"},
		},
		{
			"remove",
			map[string]any{"kind": "remove", "index": float64(0)},
			Diff[any]{Kind: KindRemove},
		},
		{
			"push front",
			map[string]any{"kind": "pushFront", "value": "v"},
			Diff[any]{Kind: KindPushFront, Value: "v"},
		},
		{
			"truncate",
			map[string]any{"kind": "truncate", "length": float64(5)},
			Diff[any]{Kind: KindTruncate, Length: 5},
		},
		{
			"reset",
			map[string]any{"kind": "reset", "values": []any{"a", "b"}},
			Diff[any]{Kind: KindReset, Values: []any{"a", "b"}},
		},
		{
			"clear",
			map[string]any{"kind": "clear"},
			Diff[any]{Kind: KindClear},
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := Decode(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(map[string]any{"kind": "swap"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode(map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
