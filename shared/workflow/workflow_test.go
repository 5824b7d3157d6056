package workflow

import "testing"

func TestEventTypeForTransition(t *testing.T) {
	cases := []struct {
		kind Kind
		from string
		to   string
		want string
	}{
		{KindLocation, StateActive, StateInactive, EventLocationDeactivated},
		{KindLocation, StateInactive, StateActive, EventLocationActivated},
		{KindDevice, StateEnabled, StateDisabled, EventDeviceDisabled},
		{KindDailyMenu, StateDisabled, StateEnabled, EventDailyMenuEnabled},
		{KindDailyMenu, StateDisabled, StateDisabled, ""},
		{KindDailyMenu, "bogus", StateEnabled, ""},
	}
	for _, tc := range cases {
		if got := EventTypeForTransition(tc.kind, tc.from, tc.to); got != tc.want {
			t.Fatalf("%s %s -> %s: got %q want %q", tc.kind, tc.from, tc.to, got, tc.want)
		}
	}
}

func TestToggleState(t *testing.T) {
	if ToggleState(KindLocation, false) != StateInactive {
		t.Fatalf("unexpected location state")
	}
	if ToggleState(KindDailyMenu, true) != StateEnabled {
		t.Fatalf("unexpected menu state")
	}
}
