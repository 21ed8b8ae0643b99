package board

import "testing"

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    Stage
		to      Stage
		force   bool
		wantErr bool
	}{
		{"briefings to ready", StageBriefings, StageReady, false, false},
		{"ready to testing", StageReady, StageTesting, false, false},
		{"testing to implementing", StageTesting, StageImplementing, false, false},
		{"testing to blocked", StageTesting, StageBlocked, false, false},
		{"implementing to review", StageImplementing, StageReview, false, false},
		{"review to probing", StageReview, StageProbing, false, false},
		{"review to implementing (reject)", StageReview, StageImplementing, false, false},
		{"probing to done", StageProbing, StageDone, false, false},
		{"briefings to testing skips a stage", StageBriefings, StageTesting, false, true},
		{"done is terminal", StageDone, StageImplementing, false, true},
		{"blocked requires force", StageBlocked, StageTesting, false, true},
		{"blocked to anything with force", StageBlocked, StageTesting, true, false},
		{"invalid target stage", StageBriefings, Stage("nonsense"), false, true},
		{"invalid target stage even forced", StageBriefings, Stage("nonsense"), true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateTransition(c.from, c.to, c.force)
			if c.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateTransitionErrorDetails(t *testing.T) {
	err := ValidateTransition(StageTesting, StageReview, false)
	te, ok := err.(*TransitionError)
	if !ok {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if te.From != StageTesting || te.To != StageReview {
		t.Fatalf("unexpected from/to: %+v", te)
	}
	wantAllowed := []Stage{StageImplementing, StageBlocked}
	if len(te.Allowed) != len(wantAllowed) {
		t.Fatalf("allowed = %v, want %v", te.Allowed, wantAllowed)
	}
	for i, s := range wantAllowed {
		if te.Allowed[i] != s {
			t.Fatalf("allowed[%d] = %s, want %s", i, te.Allowed[i], s)
		}
	}
}

func TestCheckWIP(t *testing.T) {
	limit := 2

	if err := CheckWIP(StageTesting, &limit, 1); err != nil {
		t.Fatalf("moving the 2nd item into a limit-2 stage should succeed: %v", err)
	}
	if err := CheckWIP(StageTesting, &limit, 2); err == nil {
		t.Fatalf("expected WIPError moving a 3rd item into a limit-2 stage")
	} else if wipErr, ok := err.(*WIPError); !ok {
		t.Fatalf("expected *WIPError, got %T", err)
	} else if wipErr.Limit != 2 || wipErr.Current != 2 || wipErr.Stage != StageTesting {
		t.Fatalf("unexpected WIPError fields: %+v", wipErr)
	}
	if err := CheckWIP(StageTesting, nil, 1000); err != nil {
		t.Fatalf("nil limit should never refuse a move: %v", err)
	}
}

func TestAllowedTransitionsIsACopy(t *testing.T) {
	a := AllowedTransitions(StageTesting)
	a[0] = StageDone
	b := AllowedTransitions(StageTesting)
	if b[0] == StageDone {
		t.Fatalf("mutating the result of AllowedTransitions leaked into the matrix")
	}
}
