package domain

import (
	"fmt"
	"strings"
)

type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Author is a node of the organization tree. BossID is nil only for the root.
type Author struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Age       int     `json:"age"`
	Height    float64 `json:"height"`
	BossID    *int64  `json:"boss_id,omitempty"`
	AccountID int64   `json:"account_id"`
	Username  string  `json:"username"`
}

type Task struct {
	ID           int64     `json:"id"`
	Headline     string    `json:"headline"`
	Content      string    `json:"content"`
	Date         *string   `json:"date,omitempty" format:"date-time"`
	CreationDate string    `json:"creation_date" format:"date-time"`
	State        TaskState `json:"state" enum:"new,in_progress,finished,delayed,canceled"`
	OwnerIDs     []int64   `json:"owner_ids,omitempty"`
}

type Post struct {
	ID       int64     `json:"id"`
	Headline string    `json:"headline"`
	Content  string    `json:"content"`
	AuthorID int64     `json:"author_id"`
	Comments []Comment `json:"comments,omitempty"`
}

// Comment belongs to exactly one of a task or a post.
type Comment struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	TaskID     *int64 `json:"task_id,omitempty"`
	PostID     *int64 `json:"post_id,omitempty"`
	AuthorID   int64  `json:"author_id"`
	AuthorName string `json:"author,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Subordinate is one row of a bounded subordinate search.
type Subordinate struct {
	Name     string `json:"name"`
	ID       int64  `json:"id"`
	BossName string `json:"boss"`
	BossID   int64  `json:"boss_id"`
	Distance int    `json:"distance"`
}

// TaskRow is a task denormalized against one of its owners.
type TaskRow struct {
	TaskID       int64     `json:"task_id"`
	Headline     string    `json:"headline"`
	Content      string    `json:"content"`
	Date         *string   `json:"date,omitempty" format:"date-time"`
	CreationDate string    `json:"creation_date" format:"date-time"`
	State        TaskState `json:"state" enum:"new,in_progress,finished,delayed,canceled"`
	AuthorID     int64     `json:"author_id"`
	Author       string    `json:"author"`
	Username     string    `json:"username"`
	Comments     []Comment `json:"comments,omitempty"`
}

type TaskState string

const (
	StateNew        TaskState = "new"
	StateInProgress TaskState = "in_progress"
	StateFinished   TaskState = "finished"
	StateDelayed    TaskState = "delayed"
	StateCanceled   TaskState = "canceled"
)

// TaskStates lists every valid state in lifecycle order.
var TaskStates = []TaskState{StateNew, StateInProgress, StateFinished, StateDelayed, StateCanceled}

// ParseTaskState accepts the five state names, case-insensitively.
func ParseTaskState(s string) (TaskState, error) {
	v := TaskState(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range TaskStates {
		if v == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task state %q", s)
}

// Terminal reports whether no transition leaves the state.
func (s TaskState) Terminal() bool {
	return s == StateFinished || s == StateCanceled
}
