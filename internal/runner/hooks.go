package runner

// StepStartEvent fires before the backend is invoked for a step.
type StepStartEvent struct {
	Step    int
	RootID  string
	IssueID string
	Role    string
	Title   string
}

// BackendLineEvent fires for every line the backend streams.
type BackendLineEvent struct {
	IssueID string
	Line    string
}

// StepEndEvent fires once a step's outcome has been recorded.
type StepEndEvent struct {
	Step     int
	IssueID  string
	Outcome  StepOutcome
	ElapsedS float64
	ExitCode int
}

// Hooks are the pluggable observation callbacks every implementation must
// expose (spec §4.2 "Step events"). Any hook left nil is simply not called.
type Hooks struct {
	OnStepStart   func(StepStartEvent)
	OnBackendLine func(BackendLineEvent)
	OnStepEnd     func(StepEndEvent)
}

func (h Hooks) stepStart(ev StepStartEvent) {
	if h.OnStepStart != nil {
		h.OnStepStart(ev)
	}
}

func (h Hooks) backendLine(ev BackendLineEvent) {
	if h.OnBackendLine != nil {
		h.OnBackendLine(ev)
	}
}

func (h Hooks) stepEnd(ev StepEndEvent) {
	if h.OnStepEnd != nil {
		h.OnStepEnd(ev)
	}
}
