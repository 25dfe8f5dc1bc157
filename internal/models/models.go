package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type BaseModel struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// PageID identifies a browser tab (the DevTools target id).
type PageID string

type ActionType string

const (
	ActionClick ActionType = "click"
	ActionInput ActionType = "type"
	ActionWait  ActionType = "wait"
)

// Action is one replayable step. Selector is used by click and type, Value by
// type, Ms by wait.
type Action struct {
	Type     ActionType `json:"type"`
	Selector string     `json:"selector,omitempty"`
	Value    string     `json:"value,omitempty"`
	Ms       int64      `json:"ms,omitempty"`
}

func Click(selector string) Action {
	return Action{Type: ActionClick, Selector: selector}
}

func Type(selector, value string) Action {
	return Action{Type: ActionInput, Selector: selector, Value: value}
}

func Wait(ms int64) Action {
	return Action{Type: ActionWait, Ms: ms}
}

func (a Action) Validate() error {
	switch a.Type {
	case ActionClick, ActionInput:
		if a.Selector == "" {
			return fmt.Errorf("%w: %s action without selector", ErrInvalidRequest, a.Type)
		}
	case ActionWait:
		if a.Ms < 0 {
			return fmt.Errorf("%w: negative wait %d", ErrInvalidRequest, a.Ms)
		}
	default:
		return fmt.Errorf("%w: unsupported action type %q", ErrInvalidRequest, a.Type)
	}
	return nil
}

func ValidateActions(actions []Action) error {
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
	}
	return nil
}

// Target is what the auto-clicker aims at. Element targets carry a selector and
// the element centre in viewport coordinates; point targets carry page
// coordinates picked with the coordinate picker.
type Target struct {
	Selector string
	X        float64
	Y        float64
	IsPoint  bool
}

func ElementTarget(selector string, centerX, centerY float64) Target {
	return Target{Selector: selector, X: centerX, Y: centerY}
}

func PointTarget(x, y float64) Target {
	return Target{X: x, Y: y, IsPoint: true}
}

type elementTargetJSON struct {
	Selector string  `json:"selector"`
	CenterX  float64 `json:"centerX"`
	CenterY  float64 `json:"centerY"`
}

type pointTargetJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (t Target) MarshalJSON() ([]byte, error) {
	if t.IsPoint {
		return json.Marshal(pointTargetJSON{X: t.X, Y: t.Y})
	}
	return json.Marshal(elementTargetJSON{Selector: t.Selector, CenterX: t.X, CenterY: t.Y})
}

func (t *Target) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw["centerX"]; ok {
		var e elementTargetJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		*t = ElementTarget(e.Selector, e.CenterX, e.CenterY)
		return nil
	}
	if _, ok := raw["x"]; ok {
		var p pointTargetJSON
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*t = PointTarget(p.X, p.Y)
		return nil
	}
	return fmt.Errorf("%w: target needs centerX/centerY or x/y", ErrInvalidRequest)
}

// AutomationState is the canonical state owned by the coordinator.
type AutomationState struct {
	Recording          bool    `json:"recording"`
	RecordingPageID    PageID  `json:"recordingPageId,omitempty"`
	AutoClicking       bool    `json:"autoClicking"`
	AutoClickingPageID PageID  `json:"autoClickingPageId,omitempty"`
	SelectedTarget     *Target `json:"selectedTarget,omitempty"`
}

func (s AutomationState) Validate() error {
	if s.Recording && s.RecordingPageID == "" {
		return fmt.Errorf("recording without a page")
	}
	if s.AutoClicking && s.AutoClickingPageID == "" {
		return fmt.Errorf("auto-clicking without a page")
	}
	return nil
}

// Clone returns a copy that shares nothing with s.
func (s AutomationState) Clone() AutomationState {
	if s.SelectedTarget != nil {
		t := *s.SelectedTarget
		s.SelectedTarget = &t
	}
	return s
}

type SelectionVariant string

const (
	VariantElement    SelectionVariant = "element"
	VariantCoordinate SelectionVariant = "coordinate"
)

func (v SelectionVariant) Validate() error {
	switch v {
	case VariantElement, VariantCoordinate:
		return nil
	}
	return fmt.Errorf("%w: unknown selection variant %q", ErrInvalidRequest, v)
}

// AutoClickOptions are expressed in milliseconds and CSS pixels on the wire.
type AutoClickOptions struct {
	Target      *Target `json:"target,omitempty"`
	Radius      float64 `json:"radius"`
	MinInterval int64   `json:"minInterval"`
	MaxInterval int64   `json:"maxInterval"`
	Duration    int64   `json:"duration"`
}

func (o AutoClickOptions) Validate() error {
	switch {
	case o.Target == nil:
		return fmt.Errorf("%w: no auto-click target selected", ErrInvalidRequest)
	case o.Radius < 0:
		return fmt.Errorf("%w: radius must not be negative", ErrInvalidRequest)
	case o.MinInterval < 0 || o.MaxInterval < 0:
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidRequest)
	case o.MinInterval > o.MaxInterval:
		return fmt.Errorf("%w: minInterval %d exceeds maxInterval %d", ErrInvalidRequest, o.MinInterval, o.MaxInterval)
	case o.Duration < 0:
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidRequest)
	}
	return nil
}

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Outcome is the result of a replay run.
type Outcome struct {
	Status    string    `json:"status"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Selector  string    `json:"selector,omitempty"`
	StepIndex int       `json:"stepIndex"`
	Duration  int64     `json:"duration"` // milliseconds
	Logs      []StepLog `json:"logs,omitempty"`
}

func (o Outcome) OK() bool { return o.Status == OutcomeSuccess }

// FailedOutcome builds an error outcome from err without running anything.
func FailedOutcome(err error) Outcome {
	return Outcome{Status: OutcomeError, Kind: KindOf(err), Message: err.Error(), StepIndex: -1}
}

type StepLog struct {
	Timestamp   time.Time  `json:"timestamp"`
	Level       string     `json:"level"`
	Message     string     `json:"message"`
	StepIndex   int        `json:"step_index"`
	StepType    ActionType `json:"step_type,omitempty"`
	StepStatus  string     `json:"step_status,omitempty"` // success, failed, running
	Selector    string     `json:"selector,omitempty"`
	Value       string     `json:"value,omitempty"`
	Duration    int64      `json:"duration,omitempty"` // milliseconds
	ErrorDetail string     `json:"error_detail,omitempty"`
}

// Script is a named, persisted script in codec text form.
type Script struct {
	BaseModel
	Name string `json:"name" gorm:"uniqueIndex;size:200;not null"`
	Text string `json:"text" gorm:"type:longtext"`
}

// Schedule replays a named script on a page following a cron expression.
type Schedule struct {
	ID             string    `json:"id"`
	ScriptName     string    `json:"script_name"`
	PageID         PageID    `json:"page_id"`
	CronExpression string    `json:"cron_expression"`
	CreatedAt      time.Time `json:"created_at"`
	NextRun        time.Time `json:"next_run,omitempty"`
}

// PageInfo describes a browser tab.
type PageInfo struct {
	ID    PageID `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}
