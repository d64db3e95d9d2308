package testutil

import "testing"

// Given, When, Then and And nest subtests so a workflow walkthrough reads as
// a scenario in `go test -v` output. A failed step stops its own subtree only.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Then", desc, fn)
}

// And continues the previous clause.
func And(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "And", desc, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(keyword+" "+desc, fn)
}
