package tts

// StateType represents the current state of a playback session.
type StateType int

const (
	// StateIdle indicates no session is active.
	StateIdle StateType = iota
	// StateResolving indicates the spoken text is being resolved and aligned.
	StateResolving
	// StatePlaying indicates the provider is speaking.
	StatePlaying
	// StatePaused indicates playback is paused.
	StatePaused
	// StateCompleted indicates the provider finished the utterance.
	StateCompleted
	// StateStopped indicates the session was stopped or superseded.
	StateStopped
	// StateErrored indicates the session failed.
	StateErrored
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsActive returns true if a session owns the provider in this state.
func (s StateType) IsActive() bool {
	return s == StateResolving || s == StatePlaying || s == StatePaused
}

// IsTerminal returns true for the transient end states that lead back to idle.
func (s StateType) IsTerminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateErrored
}

// StateMachine manages playback state transitions.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
	onExit      map[StateType]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:      {StateResolving},
			StateResolving: {StatePlaying, StateStopped, StateErrored},
			StatePlaying:   {StatePaused, StateCompleted, StateStopped, StateErrored},
			StatePaused:    {StatePlaying, StateStopped, StateErrored},
			StateCompleted: {StateIdle},
			StateStopped:   {StateIdle},
			StateErrored:   {StateIdle},
		},
		onEnter: make(map[StateType]func()),
		onExit:  make(map[StateType]func()),
	}
}

// CanTransition reports whether moving to the given state is allowed.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}

	if exitFn, ok := sm.onExit[sm.current]; ok && exitFn != nil {
		exitFn()
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for exiting a state.
func (sm *StateMachine) OnExit(state StateType, fn func()) {
	sm.onExit[state] = fn
}
