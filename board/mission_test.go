package board

import "testing"

func TestValidMissionTransition(t *testing.T) {
	cases := []struct {
		from, to MissionState
		want     bool
	}{
		{MissionInitializing, MissionPrechecking, true},
		{MissionInitializing, MissionRunning, false},
		{MissionPrechecking, MissionRunning, true},
		{MissionPrechecking, MissionFailed, true},
		{MissionRunning, MissionPostchecking, true},
		{MissionRunning, MissionArchived, false},
		{MissionPostchecking, MissionCompleted, true},
		{MissionPostchecking, MissionRunning, false},
		{MissionCompleted, MissionArchived, true},
		{MissionFailed, MissionArchived, true},
		{MissionArchived, MissionInitializing, false},
	}
	for _, c := range cases {
		got := ValidMissionTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("ValidMissionTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestMissionArchivedIsAbsorbing(t *testing.T) {
	for _, s := range []MissionState{
		MissionInitializing, MissionPrechecking, MissionRunning,
		MissionPostchecking, MissionCompleted, MissionFailed, MissionArchived,
	} {
		if ValidMissionTransition(MissionArchived, s) {
			t.Errorf("archived should have no outgoing transitions, got one to %s", s)
		}
	}
}
