package simerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrors_AsThroughWrapping(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("build: %w", &SpeciesInstantiationError{SpeciesID: "hivebot", Err: base})

	var sie *SpeciesInstantiationError
	if !errors.As(err, &sie) {
		t.Fatalf("errors.As failed for %v", err)
	}
	if sie.SpeciesID != "hivebot" || !errors.Is(err, base) {
		t.Fatalf("unexpected unwrap result: %+v", sie)
	}
}

func TestErrors_MessagesCarryContext(t *testing.T) {
	cases := []struct {
		err  error
		want []string
	}{
		{Config("population", 0, "must be positive"), []string{"population", "0", "positive"}},
		{&MapLoadError{MapID: "diamond", Line: 3, Err: errors.New("bad symbol")}, []string{"diamond", "line 3", "bad symbol"}},
		{&MapLoadError{MapID: "open", Err: errors.New("x")}, []string{"map open: x"}},
		{&UnrecognizedActionError{SpeciesID: "rogue", AgentIndex: 4, Round: 9, Action: 42}, []string{"round 9", "agent 4", "rogue", "42"}},
	}
	for _, tc := range cases {
		msg := tc.err.Error()
		for _, w := range tc.want {
			if !strings.Contains(msg, w) {
				t.Fatalf("%q missing %q", msg, w)
			}
		}
	}
}
