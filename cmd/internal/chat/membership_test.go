package chat

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestOnlineMembersOfIntersectsPresence(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(1, "ann")
	store.addUser(2, "ben")
	store.addUser(3, "cai")
	store.addGroup(10, 1, "gophers", 1, 2)

	registry := NewRegistry()
	registry.Register("c-ann", 1)
	registry.Register("c-cai", 3) // online but not a member

	view := NewMembershipView(store, registry)

	names, err := view.OnlineMembersOf(context.Background(), 10)
	if err != nil {
		t.Fatalf("OnlineMembersOf: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"ann"}) {
		t.Fatalf("names = %v, want [ann]", names)
	}
}

func TestOnlineMembersOfSortsNames(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(1, "zoe")
	store.addUser(2, "abe")
	store.addGroup(10, 1, "pair", 1, 2)

	registry := NewRegistry()
	registry.Register("c1", 1)
	registry.Register("c2", 2)

	view := NewMembershipView(store, registry)
	names, err := view.OnlineMembersOf(context.Background(), 10)
	if err != nil {
		t.Fatalf("OnlineMembersOf: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"abe", "zoe"}) {
		t.Fatalf("names = %v, want sorted [abe zoe]", names)
	}
}

func TestOnlineMembersOfUnknownGroup(t *testing.T) {
	t.Parallel()

	view := NewMembershipView(newFakeStore(), NewRegistry())
	if _, err := view.OnlineMembersOf(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
