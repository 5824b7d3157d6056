package workflow

import "strings"

// Kind names a two-state toggle owned by an aggregate.
type Kind string

const (
	KindLocation  Kind = "location"
	KindDevice    Kind = "device"
	KindDailyMenu Kind = "dailymenu"
)

const (
	StateActive   = "active"
	StateInactive = "inactive"
	StateEnabled  = "enabled"
	StateDisabled = "disabled"
)

const (
	EventLocationActivated   = "LocationActivated"
	EventLocationDeactivated = "LocationDeactivated"
	EventDeviceEnabled       = "DeviceEnabled"
	EventDeviceDisabled      = "DeviceDisabled"
	EventDailyMenuEnabled    = "DailyMenuEnabled"
	EventDailyMenuDisabled   = "DailyMenuDisabled"
)

var transitions = map[Kind]map[string]map[string]string{
	KindLocation: {
		StateActive:   {StateInactive: EventLocationDeactivated},
		StateInactive: {StateActive: EventLocationActivated},
	},
	KindDevice: {
		StateEnabled:  {StateDisabled: EventDeviceDisabled},
		StateDisabled: {StateEnabled: EventDeviceEnabled},
	},
	KindDailyMenu: {
		StateEnabled:  {StateDisabled: EventDailyMenuDisabled},
		StateDisabled: {StateEnabled: EventDailyMenuEnabled},
	},
}

func NormalizeState(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

// ToggleState maps a boolean flag onto the state names of kind.
func ToggleState(kind Kind, on bool) string {
	if kind == KindLocation {
		if on {
			return StateActive
		}
		return StateInactive
	}
	if on {
		return StateEnabled
	}
	return StateDisabled
}

// EventTypeForTransition returns "" when the transition is a no-op or unknown.
func EventTypeForTransition(kind Kind, fromState string, toState string) string {
	fromState = NormalizeState(fromState)
	toState = NormalizeState(toState)
	if fromState == toState {
		return ""
	}
	return transitions[kind][fromState][toState]
}
