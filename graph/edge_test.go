package graph

import "testing"

func TestEdge_UnconditionalMatches(t *testing.T) {
	e := Edge[counterState]{From: "a", To: "b"}
	if e.When != nil {
		t.Fatal("zero-value edge should have nil predicate")
	}
}

func TestEdge_PredicateEvaluation(t *testing.T) {
	e := Edge[counterState]{
		From: "a",
		To:   "b",
		When: func(s counterState) bool { return s.Count > 5 },
	}

	if e.When(counterState{Count: 3}) {
		t.Error("predicate should not match Count=3")
	}
	if !e.When(counterState{Count: 10}) {
		t.Error("predicate should match Count=10")
	}
}
