package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-mock/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionBookmark Action = "bookmark"
	ActionFinish   Action = "finish"
	ActionPing     Action = "ping"
)

// RequestPayload carries every client action. QuestionKey is set for
// answer and bookmark, Value only for answer.
type RequestPayload struct {
	Action      Action          `json:"action"`
	QuestionKey string          `json:"question_key,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventResult Event = "result"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// StateResponse is pushed every tick and after each accepted action.
type StateResponse struct {
	Event Event                 `json:"event"`
	State model.SectionSnapshot `json:"state"`
}

// ResultResponse answers a finish action that scored the attempt.
type ResultResponse struct {
	Event  Event                   `json:"event"`
	Result *model.SubmissionResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
