package shadow

import (
	"reflect"
	"testing"
)

func TestMerge_EmptyChangesIsIdentity(t *testing.T) {
	base := mustDoc(t, map[string]any{
		"a": 1,
		"b": map[string]any{"c": 2},
	})

	for _, changes := range []Document{nil, {}} {
		got := Merge(base, changes)
		if !reflect.DeepEqual(got, base) {
			t.Errorf("Merge(base, %v) = %v, want %v", changes, got, base)
		}
	}
}

func TestMerge_PreservesUntouchedFields(t *testing.T) {
	base := mustDoc(t, map[string]any{
		"a": 1,
		"b": "keep",
		"c": map[string]any{"d": true},
	})
	changes := mustDoc(t, map[string]any{"a": 9})

	got := Merge(base, changes)

	want := mustDoc(t, map[string]any{
		"a": 9,
		"b": "keep",
		"c": map[string]any{"d": true},
	})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

func TestMerge_NestedDocumentsMergeRecursively(t *testing.T) {
	// The canonical foreign-change scenario: only b.c changes, a survives.
	base := mustDoc(t, map[string]any{
		"a": 1,
		"b": map[string]any{"c": 2},
	})
	changes := mustDoc(t, map[string]any{
		"b": map[string]any{"c": 3},
	})

	got := Merge(base, changes)

	want := mustDoc(t, map[string]any{
		"a": 1,
		"b": map[string]any{"c": 3},
	})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

func TestMerge_NestedKeysNotWholesaleReplaced(t *testing.T) {
	base := mustDoc(t, map[string]any{
		"b": map[string]any{"c": 2, "keep": "yes"},
	})
	changes := mustDoc(t, map[string]any{
		"b": map[string]any{"c": 3},
	})

	got := Merge(base, changes)

	want := mustDoc(t, map[string]any{
		"b": map[string]any{"c": 3, "keep": "yes"},
	})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

func TestMerge_ScalarOverwritesDocumentAndViceVersa(t *testing.T) {
	base := mustDoc(t, map[string]any{
		"a": map[string]any{"x": 1},
		"b": 5,
	})
	changes := mustDoc(t, map[string]any{
		"a": 7,
		"b": map[string]any{"y": 2},
	})

	got := Merge(base, changes)

	want := mustDoc(t, map[string]any{
		"a": 7,
		"b": map[string]any{"y": 2},
	})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

func TestMerge_SequencesReplaceWholesale(t *testing.T) {
	base := mustDoc(t, map[string]any{
		"modes": []any{"eco", "boost", "away"},
	})
	changes := mustDoc(t, map[string]any{
		"modes": []any{"eco"},
	})

	got := Merge(base, changes)

	want := mustDoc(t, map[string]any{
		"modes": []any{"eco"},
	})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := mustDoc(t, map[string]any{
		"a": 1,
		"b": map[string]any{"c": 2},
	})
	changes := mustDoc(t, map[string]any{
		"b": map[string]any{"c": 3},
		"d": 4,
	})

	baseBefore := mustDoc(t, base.Any())
	changesBefore := mustDoc(t, changes.Any())

	_ = Merge(base, changes)

	if !reflect.DeepEqual(base, baseBefore) {
		t.Errorf("base mutated: %v, want %v", base, baseBefore)
	}
	if !reflect.DeepEqual(changes, changesBefore) {
		t.Errorf("changes mutated: %v, want %v", changes, changesBefore)
	}
}

func TestMerge_NullOverwritesField(t *testing.T) {
	base := mustDoc(t, map[string]any{"a": 1})
	changes := mustDoc(t, map[string]any{"a": nil})

	got := Merge(base, changes)

	if _, ok := got["a"].(Null); !ok {
		t.Errorf("got[a] = %#v, want Null", got["a"])
	}
}

func TestMerge_IntoEmptyBase(t *testing.T) {
	changes := mustDoc(t, map[string]any{
		"nested": map[string]any{"x": 5},
	})

	got := Merge(nil, changes)

	if !reflect.DeepEqual(got, changes) {
		t.Errorf("Merge(nil, changes) = %v, want %v", got, changes)
	}
}
