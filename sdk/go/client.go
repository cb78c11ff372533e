package orgchartsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal orgchart HTTP API client.
type Client struct {
	BaseURL string
	// BasePath defaults to /v0.
	BasePath   string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Ref helpers build the author reference syntax accepted by the API.
func ByID(id int64) string       { return "id:" + strconv.FormatInt(id, 10) }
func ByUsername(u string) string { return "account:" + u }

type Author struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Age       int     `json:"age"`
	Height    float64 `json:"height"`
	BossID    *int64  `json:"boss_id,omitempty"`
	AccountID int64   `json:"account_id"`
	Username  string  `json:"username"`
}

type Subordinate struct {
	Name     string `json:"name"`
	ID       int64  `json:"id"`
	BossName string `json:"boss"`
	BossID   int64  `json:"boss_id"`
	Distance int    `json:"distance"`
}

type Task struct {
	ID           int64   `json:"id"`
	Headline     string  `json:"headline"`
	Content      string  `json:"content"`
	Date         *string `json:"date,omitempty"`
	CreationDate string  `json:"creation_date"`
	State        string  `json:"state"`
	OwnerIDs     []int64 `json:"owner_ids,omitempty"`
}

type Comment struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	TaskID     *int64 `json:"task_id,omitempty"`
	PostID     *int64 `json:"post_id,omitempty"`
	AuthorID   int64  `json:"author_id"`
	AuthorName string `json:"author,omitempty"`
}

// TaskRow is a task paired with one of its owners.
type TaskRow struct {
	TaskID       int64     `json:"task_id"`
	Headline     string    `json:"headline"`
	Content      string    `json:"content"`
	Date         *string   `json:"date,omitempty"`
	CreationDate string    `json:"creation_date"`
	State        string    `json:"state"`
	AuthorID     int64     `json:"author_id"`
	Author       string    `json:"author"`
	Username     string    `json:"username"`
	Comments     []Comment `json:"comments,omitempty"`
}

type Post struct {
	ID       int64     `json:"id"`
	Headline string    `json:"headline"`
	Content  string    `json:"content"`
	AuthorID int64     `json:"author_id"`
	Comments []Comment `json:"comments,omitempty"`
}

// TreeNode is an author with its direct reports.
type TreeNode struct {
	Author
	Children []TreeNode `json:"children,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// ErrNoCommonAncestor is returned by ClosestLead when the server reports failure.
var ErrNoCommonAncestor = errors.New("no common ancestor")

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Subordinates lists authors between startLevel and endLevel below ref.
func (c *Client) Subordinates(ctx context.Context, ref string, startLevel, endLevel int) ([]Subordinate, error) {
	q := url.Values{}
	q.Set("name", ref)
	q.Set("start_level", strconv.Itoa(startLevel))
	q.Set("end_level", strconv.Itoa(endLevel))
	var resp []Subordinate
	err := c.do(ctx, http.MethodGet, "view/subordinates?"+q.Encode(), nil, &resp)
	return resp, err
}

// Ancestors returns the names of ref's bosses, root last.
func (c *Client) Ancestors(ctx context.Context, ref string) ([]string, error) {
	var resp []string
	err := c.do(ctx, http.MethodGet, "view/ancestors?"+url.Values{"name": {ref}}.Encode(), nil, &resp)
	return resp, err
}

// ClosestLead returns the username of the closest common boss of two authors.
func (c *Client) ClosestLead(ctx context.Context, first, second string) (string, error) {
	var resp struct {
		ClosestLead string `json:"closest_lead"`
		Failed      string `json:"failed"`
	}
	q := url.Values{"first": {first}, "second": {second}}
	if err := c.do(ctx, http.MethodGet, "view/closest-lead?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if resp.Failed != "" {
		return "", fmt.Errorf("%w: %s", ErrNoCommonAncestor, resp.Failed)
	}
	return resp.ClosestLead, nil
}

func (c *Client) Peers(ctx context.Context, ref string) ([]Author, error) {
	var resp []Author
	err := c.do(ctx, http.MethodGet, "view/peers?"+url.Values{"name": {ref}}.Encode(), nil, &resp)
	return resp, err
}

// Tree returns the hierarchy below root, or below the organization root when root is empty.
func (c *Client) Tree(ctx context.Context, root string) (TreeNode, error) {
	endpoint := "view/tree"
	if root != "" {
		endpoint += "?" + url.Values{"root": {root}}.Encode()
	}
	var resp TreeNode
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Tasks returns task rows for the named authors, or every task when names is empty.
func (c *Client) Tasks(ctx context.Context, names []string, withComments bool) ([]TaskRow, error) {
	q := url.Values{}
	if len(names) > 0 {
		q.Set("author", strings.Join(names, ","))
	}
	if withComments {
		q.Set("comments", "true")
	}
	endpoint := "view/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []TaskRow
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) SubtreeTasks(ctx context.Context, username string, startLevel, endLevel int, withComments bool) ([]TaskRow, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("start_level", strconv.Itoa(startLevel))
	q.Set("end_level", strconv.Itoa(endLevel))
	if withComments {
		q.Set("comments", "true")
	}
	var resp []TaskRow
	err := c.do(ctx, http.MethodGet, "view/subtree-tasks?"+q.Encode(), nil, &resp)
	return resp, err
}

// CreateAuthor creates an author. An empty boss creates the root.
func (c *Client) CreateAuthor(ctx context.Context, username, name string, age int, height float64, boss string) (Author, error) {
	body := map[string]any{
		"username": username,
		"name":     name,
		"age":      age,
		"height":   height,
	}
	if boss != "" {
		body["boss"] = boss
	}
	var resp Author
	err := c.do(ctx, http.MethodPost, "authors", body, &resp)
	return resp, err
}

func (c *Client) ReassignBoss(ctx context.Context, authorID int64, boss string) (Author, error) {
	var resp Author
	endpoint := fmt.Sprintf("authors/%d/boss", authorID)
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"boss": boss}, &resp)
	return resp, err
}

// CreateTask creates a task owned by the given author refs.
func (c *Client) CreateTask(ctx context.Context, headline, content string, owners []string) (Task, error) {
	body := map[string]any{
		"headline": headline,
		"content":  content,
		"owners":   owners,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// UpdateTaskState sets the state of the task with the given headline.
func (c *Client) UpdateTaskState(ctx context.Context, headline, state string) (Task, error) {
	var resp struct {
		Success bool `json:"success"`
		Task    Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPatch, "tasks/state", map[string]any{"headline": headline, "state": state}, &resp)
	return resp.Task, err
}

func (c *Client) CreatePost(ctx context.Context, headline, content, author string) (Post, error) {
	var resp Post
	err := c.do(ctx, http.MethodPost, "posts", map[string]any{
		"headline": headline,
		"content":  content,
		"author":   author,
	}, &resp)
	return resp, err
}

// Comment adds a comment to a task (taskID > 0) or a post.
func (c *Client) Comment(ctx context.Context, content, author string, taskID, postID int64) (Comment, error) {
	body := map[string]any{"content": content, "author": author}
	if taskID > 0 {
		body["task_id"] = taskID
	}
	if postID > 0 {
		body["post_id"] = postID
	}
	var resp Comment
	err := c.do(ctx, http.MethodPost, "comments", body, &resp)
	return resp, err
}

func (c *Client) Posts(ctx context.Context, ref string) ([]Post, error) {
	var resp []Post
	err := c.do(ctx, http.MethodGet, "authors/"+url.PathEscape(ref)+"/posts", nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int, evtType string) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if evtType != "" {
		q.Set("type", evtType)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
