package models

// Message names shared by control surfaces, the coordinator and agents.
const (
	MsgGetState                = "getState"
	MsgStartRecording          = "startRecording"
	MsgStopRecording           = "stopRecording"
	MsgActionRecorded          = "actionRecorded"
	MsgExecuteScript           = "executeScript"
	MsgEnterSelectionMode      = "enterSelectionMode"
	MsgTargetSelected          = "targetSelected"
	MsgSelectionCancelled      = "selectionCancelled"
	MsgStartAutoClicker        = "startAutoClicker"
	MsgStopAutoClicker         = "stopAutoClicker"
	MsgAutoClickerStateChanged = "autoClickerStateChanged"
	MsgStateChanged            = "stateChanged"
)

// Event is a fire-and-forget notification fanned out to control surfaces.
type Event struct {
	Name    string           `json:"action"`
	PageID  PageID           `json:"pageId,omitempty"`
	State   *AutomationState `json:"state,omitempty"`
	Step    *Action          `json:"newAction,omitempty"`
	Line    string           `json:"line,omitempty"`
	Target  *Target          `json:"target,omitempty"`
	Running *bool            `json:"running,omitempty"`
}

// Request is a control-surface request in message form.
type Request struct {
	ID      string            `json:"id,omitempty"`
	Action  string            `json:"action"`
	PageID  PageID            `json:"pageId,omitempty"`
	Actions []Action          `json:"actions,omitempty"`
	Script  string            `json:"script,omitempty"`
	Variant SelectionVariant  `json:"variant,omitempty"`
	Options *AutoClickOptions `json:"options,omitempty"`
}

// Response answers a Request. Status is "success" or "error".
type Response struct {
	ID      string           `json:"id,omitempty"`
	Status  string           `json:"status"`
	Kind    ErrorKind        `json:"kind,omitempty"`
	Message string           `json:"message,omitempty"`
	State   *AutomationState `json:"state,omitempty"`
	Actions []Action         `json:"actions,omitempty"`
	Outcome *Outcome         `json:"outcome,omitempty"`
}

func OKResponse() Response {
	return Response{Status: OutcomeSuccess}
}

func ErrorResponse(err error) Response {
	return Response{Status: OutcomeError, Kind: KindOf(err), Message: err.Error()}
}
