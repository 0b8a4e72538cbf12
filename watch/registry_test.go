package watch

import (
	"reflect"
	"testing"
)

func TestRegistry_AddCreatesEntryOnFirst(t *testing.T) {
	r := NewRegistry()
	cb := func(string, any) {}

	first, added := r.Add("org.foo", cb, "ctx1")
	if !first || !added {
		t.Fatalf("Add = (first=%v, added=%v), want (true, true)", first, added)
	}
	if !r.Find("org.foo") {
		t.Fatal("entry for org.foo should exist")
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}

	first, added = r.Add("org.foo", cb, "ctx2")
	if first || !added {
		t.Errorf("second Add = (first=%v, added=%v), want (false, true)", first, added)
	}
	if got := r.CallbackCount("org.foo"); got != 2 {
		t.Errorf("CallbackCount = %d, want 2", got)
	}
}

func TestRegistry_DuplicatePairIgnored(t *testing.T) {
	r := NewRegistry()
	cb := func(string, any) {}

	r.Add("org.foo", cb, "ctx")
	first, added := r.Add("org.foo", cb, "ctx")
	if first || added {
		t.Errorf("duplicate Add = (first=%v, added=%v), want (false, false)", first, added)
	}
	if got := r.CallbackCount("org.foo"); got != 1 {
		t.Errorf("CallbackCount = %d, want 1", got)
	}
}

func TestRegistry_SameFuncDifferentContextIsIndependent(t *testing.T) {
	r := NewRegistry()
	cb := func(string, any) {}

	r.Add("org.foo", cb, "a")
	r.Add("org.foo", cb, "b")
	if got := r.CallbackCount("org.foo"); got != 2 {
		t.Fatalf("CallbackCount = %d, want 2", got)
	}

	// Removing one context leaves the other registered.
	found, last := r.Remove("org.foo", cb, "a")
	if !found || last {
		t.Errorf("Remove = (found=%v, last=%v), want (true, false)", found, last)
	}
	if got := r.CallbackCount("org.foo"); got != 1 {
		t.Errorf("CallbackCount after remove = %d, want 1", got)
	}
}

func TestRegistry_RemoveLastDestroysEntry(t *testing.T) {
	r := NewRegistry()
	cb := func(string, any) {}

	r.Add("org.foo", cb, nil)
	found, last := r.Remove("org.foo", cb, nil)
	if !found || !last {
		t.Fatalf("Remove = (found=%v, last=%v), want (true, true)", found, last)
	}
	if r.Find("org.foo") {
		t.Error("entry should be gone after last removal")
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len = %d, want 0", got)
	}
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := NewRegistry()
	cb := func(string, any) {}

	if found, _ := r.Remove("org.missing", cb, nil); found {
		t.Error("Remove of unknown name should report not found")
	}

	r.Add("org.foo", cb, "ctx")
	if found, _ := r.Remove("org.foo", cb, "other"); found {
		t.Error("Remove with unknown context should report not found")
	}
	if got := r.CallbackCount("org.foo"); got != 1 {
		t.Errorf("CallbackCount = %d, want 1", got)
	}
}

func TestRegistry_TakePreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	record := func(name string, ctx any) {
		order = append(order, ctx.(string))
	}

	// Same function, distinct contexts: three independent
	// registrations that must fire in registration order.
	r.Add("org.foo", record, "a")
	r.Add("org.foo", record, "b")
	r.Add("org.foo", record, "c")

	callbacks, found := r.Take("org.foo")
	if !found {
		t.Fatal("Take should find the entry")
	}
	if r.Find("org.foo") {
		t.Error("entry should be destroyed by Take")
	}
	for _, cb := range callbacks {
		cb.fn("org.foo", cb.ctx)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("invocation order = %v, want %v", order, want)
	}
}

func TestRegistry_TakeUnknownName(t *testing.T) {
	r := NewRegistry()
	if _, found := r.Take("org.missing"); found {
		t.Error("Take of unknown name should report not found")
	}
}

func TestRegistry_NamesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	cb := func(string, any) {}

	r.Add("org.c", cb, nil)
	r.Add("org.a", cb, nil)
	r.Add("org.b", cb, nil)

	if got, want := r.Names(), []string{"org.c", "org.a", "org.b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}

	r.RemoveEntry("org.a")
	if got, want := r.Names(), []string{"org.c", "org.b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names after RemoveEntry = %v, want %v", got, want)
	}
}
