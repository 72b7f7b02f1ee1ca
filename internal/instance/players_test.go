package instance

import (
	"reflect"
	"testing"
)

func TestPresenceSet(t *testing.T) {
	set := NewPresenceSet()

	if !set.Add("Steve") {
		t.Fatalf("first add reported no change")
	}
	if set.Add("Steve") {
		t.Fatalf("duplicate add reported a change")
	}
	set.Add("Alex")
	set.Add("Herobrine")

	if set.Count() != 3 {
		t.Fatalf("expected 3 players, got %d", set.Count())
	}
	want := []string{"Alex", "Herobrine", "Steve"}
	if got := set.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected sorted list %v, got %v", want, got)
	}

	if set.Remove("Nobody") {
		t.Fatalf("removing an absent player reported a change")
	}
	if !set.Remove("Steve") {
		t.Fatalf("remove reported no change")
	}
	if set.Count() != 2 {
		t.Fatalf("expected 2 players, got %d", set.Count())
	}

	set.Clear()
	if set.Count() != 0 {
		t.Fatalf("clear left players behind")
	}
}
