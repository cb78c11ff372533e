package hierarchy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	idPrefix      = "id:"
	accountPrefix = "account:"
)

// Ref identifies an author by id, by account username or by display name.
// Exactly one field is set.
type Ref struct {
	ID       int64
	Username string
	Name     string
}

func ByID(id int64) Ref       { return Ref{ID: id} }
func ByUsername(u string) Ref { return Ref{Username: u} }
func ByName(name string) Ref  { return Ref{Name: name} }
func (r Ref) IsZero() bool    { return r.ID == 0 && r.Username == "" && r.Name == "" }

// Reserved reports whether s starts with a prefix ParseRef treats specially.
// Such strings cannot be stored as usernames or display names.
func Reserved(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, idPrefix) || strings.HasPrefix(s, accountPrefix)
}

// ParseRef reads "id:<n>", "account:<username>" or a plain display name.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Ref{}, errors.New("author reference is required")
	case strings.HasPrefix(s, idPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, idPrefix), 10, 64)
		if err != nil || id <= 0 {
			return Ref{}, fmt.Errorf("invalid author id in %q", s)
		}
		return ByID(id), nil
	case strings.HasPrefix(s, accountPrefix):
		u := strings.TrimSpace(strings.TrimPrefix(s, accountPrefix))
		if u == "" {
			return Ref{}, fmt.Errorf("empty username in %q", s)
		}
		return ByUsername(u), nil
	default:
		return ByName(s), nil
	}
}

func (r Ref) String() string {
	switch {
	case r.ID != 0:
		return idPrefix + strconv.FormatInt(r.ID, 10)
	case r.Username != "":
		return accountPrefix + r.Username
	default:
		return r.Name
	}
}
