package graph

import "testing"

func TestReducer_ReplaceSemantics(t *testing.T) {
	reducer := Reducer[counterState](func(prev, delta counterState) counterState {
		if delta.Count != 0 {
			prev.Count = delta.Count
		}
		return prev
	})

	got := reducer(counterState{Count: 1}, counterState{Count: 0})
	if got.Count != 1 {
		t.Errorf("zero delta should leave prev unchanged, got %d", got.Count)
	}

	got = reducer(counterState{Count: 1}, counterState{Count: 5})
	if got.Count != 5 {
		t.Errorf("non-zero delta should replace, got %d", got.Count)
	}
}

func TestReducer_AccumulateSemantics(t *testing.T) {
	reducer := Reducer[counterState](func(prev, delta counterState) counterState {
		prev.Count += delta.Count
		return prev
	})

	got := reducer(counterState{Count: 2}, counterState{Count: 3})
	if got.Count != 5 {
		t.Errorf("accumulate reducer = %d, want 5", got.Count)
	}
}
