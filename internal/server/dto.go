package server

import (
	"encoding/json"

	"orgchart/internal/domain"
	"orgchart/internal/hierarchy"
)

// Request payloads

type CreateAuthorRequest struct {
	Username string  `json:"username" minLength:"1"`
	Name     string  `json:"name" minLength:"1"`
	Age      int     `json:"age" minimum:"0"`
	Height   float64 `json:"height" minimum:"0"`
	// Boss accepts "id:<n>", "account:<username>" or a display name. Omit it to create the root.
	Boss string `json:"boss,omitempty"`
}

type ReassignBossRequest struct {
	Boss string `json:"boss" minLength:"1"`
}

type CreateTaskRequest struct {
	Headline string   `json:"headline" minLength:"1"`
	Content  string   `json:"content,omitempty"`
	Date     string   `json:"date,omitempty" example:"2024-05-01"`
	State    string   `json:"state,omitempty" enum:"new,in_progress,finished,delayed,canceled"`
	Owners   []string `json:"owners" minItems:"1"`
}

type UpdateTaskStateRequest struct {
	Headline string `json:"headline" minLength:"1"`
	State    string `json:"state"`
}

type UpdateTaskStateByIDRequest struct {
	State string `json:"state"`
}

type CreatePostRequest struct {
	Headline string `json:"headline" minLength:"1"`
	Content  string `json:"content,omitempty"`
	Author   string `json:"author" minLength:"1"`
}

type CreateCommentRequest struct {
	Content string `json:"content" minLength:"1"`
	Author  string `json:"author" minLength:"1"`
	TaskID  int64  `json:"task_id,omitempty"`
	PostID  int64  `json:"post_id,omitempty"`
}

// Responses

// ClosestLeadResponse carries either the lead's username or the reason none exists.
type ClosestLeadResponse struct {
	ClosestLead string `json:"closest_lead,omitempty"`
	Failed      string `json:"failed,omitempty"`
}

type TaskStateResponse struct {
	Success bool        `json:"success"`
	Task    domain.Task `json:"task"`
}

type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Authors int    `json:"authors"`
	Mode    string `json:"mode"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind" enum:"author,task,post,comment"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type TreeResponse = hierarchy.Node

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
