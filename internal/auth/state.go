package auth

// State is a step of the login flow.
type State int

const (
	StateStart State = iota
	StateEnteringIdentifier
	StateEnteringPassword
	StateChallengePhone
	StateChallengeUnknown
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateEnteringIdentifier:
		return "entering_identifier"
	case StateEnteringPassword:
		return "entering_password"
	case StateChallengePhone:
		return "challenge_phone"
	case StateChallengeUnknown:
		return "challenge_unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the flow ends in s.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// Trigger is what the page showed after a step.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerIdentifierPrompt
	TriggerPhonePrompt
	TriggerPasswordPrompt
	TriggerHome
	TriggerLoginError
	TriggerUnknownChallenge
)

func (t Trigger) String() string {
	switch t {
	case TriggerNone:
		return "none"
	case TriggerIdentifierPrompt:
		return "identifier_prompt"
	case TriggerPhonePrompt:
		return "phone_prompt"
	case TriggerPasswordPrompt:
		return "password_prompt"
	case TriggerHome:
		return "home"
	case TriggerLoginError:
		return "login_error"
	case TriggerUnknownChallenge:
		return "unknown_challenge"
	default:
		return "unknown"
	}
}

// transitions is the legal state graph. A trigger missing from a state's
// row is an unexpected prompt.
var transitions = map[State]map[Trigger]State{
	StateStart: {
		TriggerIdentifierPrompt: StateEnteringIdentifier,
		TriggerHome:             StateAuthenticated,
		TriggerUnknownChallenge: StateChallengeUnknown,
	},
	StateEnteringIdentifier: {
		TriggerPhonePrompt:      StateChallengePhone,
		TriggerPasswordPrompt:   StateEnteringPassword,
		TriggerIdentifierPrompt: StateEnteringIdentifier,
		TriggerLoginError:       StateFailed,
		TriggerUnknownChallenge: StateChallengeUnknown,
	},
	StateChallengePhone: {
		TriggerPasswordPrompt:   StateEnteringPassword,
		TriggerPhonePrompt:      StateChallengePhone,
		TriggerHome:             StateAuthenticated,
		TriggerLoginError:       StateFailed,
		TriggerUnknownChallenge: StateChallengeUnknown,
	},
	StateEnteringPassword: {
		TriggerHome:             StateAuthenticated,
		TriggerPhonePrompt:      StateChallengePhone,
		TriggerPasswordPrompt:   StateEnteringPassword,
		TriggerLoginError:       StateEnteringPassword,
		TriggerUnknownChallenge: StateChallengeUnknown,
	},
}

// next looks up the transition for trigger from s.
func next(s State, t Trigger) (State, bool) {
	to, ok := transitions[s][t]
	return to, ok
}
