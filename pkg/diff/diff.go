// Package diff applies ordered-collection diffs as delivered by the sync
// bridge. The interpreter knows nothing about event semantics; it only
// splices slices.
package diff

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAppend    Kind = "append"
	KindInsert    Kind = "insert"
	KindRemove    Kind = "remove"
	KindSet       Kind = "set"
	KindPushFront Kind = "push_front"
	KindPushBack  Kind = "push_back"
	KindPopFront  Kind = "pop_front"
	KindPopBack   Kind = "pop_back"
	KindTruncate  Kind = "truncate"
	KindClear     Kind = "clear"
	KindReset     Kind = "reset"
)

var (
	// ErrIndexOutOfBounds means the remote sent an index that doesn't fit the
	// collection we hold. Local and remote state have diverged; the owning
	// subscription has to be failed, never clamped.
	ErrIndexOutOfBounds = errors.New("diff: index out of bounds")
	// ErrUnknownKind means a diff kind outside the closed set, which is an
	// implementation bug rather than a data error.
	ErrUnknownKind = errors.New("diff: unknown kind")
)

// Diff is one incremental operation over an ordered collection. Index is only
// meaningful for insert/remove/set, Length only for truncate, Value only for
// the single-value kinds and Values only for append/reset.
type Diff[T any] struct {
	Kind   Kind
	Index  int
	Length int
	Value  T
	Values []T
}

func Append[T any](values ...T) Diff[T]  { return Diff[T]{Kind: KindAppend, Values: values} }
func Insert[T any](i int, v T) Diff[T]   { return Diff[T]{Kind: KindInsert, Index: i, Value: v} }
func Remove[T any](i int) Diff[T]        { return Diff[T]{Kind: KindRemove, Index: i} }
func Set[T any](i int, v T) Diff[T]      { return Diff[T]{Kind: KindSet, Index: i, Value: v} }
func PushFront[T any](v T) Diff[T]       { return Diff[T]{Kind: KindPushFront, Value: v} }
func PushBack[T any](v T) Diff[T]        { return Diff[T]{Kind: KindPushBack, Value: v} }
func PopFront[T any]() Diff[T]           { return Diff[T]{Kind: KindPopFront} }
func PopBack[T any]() Diff[T]            { return Diff[T]{Kind: KindPopBack} }
func Truncate[T any](length int) Diff[T] { return Diff[T]{Kind: KindTruncate, Length: length} }
func Clear[T any]() Diff[T]              { return Diff[T]{Kind: KindClear} }
func Reset[T any](values ...T) Diff[T]   { return Diff[T]{Kind: KindReset, Values: values} }

// Apply returns a new collection with d applied to list. The input slice is
// never mutated, so callers can hand out the previous snapshot safely.
func Apply[T any](list []T, d Diff[T]) ([]T, error) {
	switch d.Kind {
	case KindAppend:
		out := make([]T, 0, len(list)+len(d.Values))
		out = append(out, list...)
		return append(out, d.Values...), nil
	case KindInsert:
		if d.Index < 0 || d.Index > len(list) {
			return nil, fmt.Errorf("%w: insert at %d, length %d", ErrIndexOutOfBounds, d.Index, len(list))
		}
		out := make([]T, 0, len(list)+1)
		out = append(out, list[:d.Index]...)
		out = append(out, d.Value)
		return append(out, list[d.Index:]...), nil
	case KindRemove:
		if d.Index < 0 || d.Index >= len(list) {
			return nil, fmt.Errorf("%w: remove at %d, length %d", ErrIndexOutOfBounds, d.Index, len(list))
		}
		out := make([]T, 0, len(list)-1)
		out = append(out, list[:d.Index]...)
		return append(out, list[d.Index+1:]...), nil
	case KindSet:
		if d.Index < 0 || d.Index >= len(list) {
			return nil, fmt.Errorf("%w: set at %d, length %d", ErrIndexOutOfBounds, d.Index, len(list))
		}
		out := make([]T, len(list))
		copy(out, list)
		out[d.Index] = d.Value
		return out, nil
	case KindPushFront:
		out := make([]T, 0, len(list)+1)
		out = append(out, d.Value)
		return append(out, list...), nil
	case KindPushBack:
		out := make([]T, 0, len(list)+1)
		out = append(out, list...)
		return append(out, d.Value), nil
	case KindPopFront:
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: pop_front on empty collection", ErrIndexOutOfBounds)
		}
		out := make([]T, len(list)-1)
		copy(out, list[1:])
		return out, nil
	case KindPopBack:
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: pop_back on empty collection", ErrIndexOutOfBounds)
		}
		out := make([]T, len(list)-1)
		copy(out, list[:len(list)-1])
		return out, nil
	case KindTruncate:
		if d.Length < 0 || d.Length > len(list) {
			return nil, fmt.Errorf("%w: truncate to %d, length %d", ErrIndexOutOfBounds, d.Length, len(list))
		}
		out := make([]T, d.Length)
		copy(out, list[:d.Length])
		return out, nil
	case KindClear:
		return []T{}, nil
	case KindReset:
		out := make([]T, len(d.Values))
		copy(out, d.Values)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
}

// ApplyAll left-folds diffs over list in delivery order. Order is significant:
// callers must not reorder or coalesce batches before handing them in.
func ApplyAll[T any](list []T, diffs []Diff[T]) ([]T, error) {
	var err error
	for _, d := range diffs {
		list, err = Apply(list, d)
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Map projects a diff's payload values through f without touching its
// structural kind, so applying the mapped diff commutes with mapping the
// folded collection. Index-only kinds pass through unchanged.
func Map[T, R any](d Diff[T], f func(T) R) Diff[R] {
	out := Diff[R]{Kind: d.Kind, Index: d.Index, Length: d.Length}
	switch d.Kind {
	case KindInsert, KindSet, KindPushFront, KindPushBack:
		out.Value = f(d.Value)
	case KindAppend, KindReset:
		out.Values = make([]R, len(d.Values))
		for i, v := range d.Values {
			out.Values[i] = f(v)
		}
	}
	return out
}
