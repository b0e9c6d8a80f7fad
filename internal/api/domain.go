package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors shared across services. Handlers map these to HTTP status
// codes; repositories and services wrap them with %w.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrBadRequest      = errors.New("invalid request")
)

// ValidationError collects every failing field of a request at once, so the
// caller can fix all of them in a single round trip. It unwraps to
// ErrBadRequest.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrBadRequest }

// Role is a named permission grouping from a closed set.
type Role struct {
	ID       int64  `json:"id"`
	RoleName string `json:"roleName"`
}

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// RoleInfo is the read-only shape of a Role returned to callers; internal-only
// fields never leave the store.
type RoleInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is an account that owns blogs and carries roles.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	Roles     []RoleInfo `json:"roles,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TagType groups tags into categories such as "language" or "topic".
type TagType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a label attached to blogs; every tag belongs to exactly one TagType.
type Tag struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	TagType *TagType `json:"tagType,omitempty"`
}

// Blog is a post owned by exactly one user, carrying a set of tags and a
// unique URL slug for public lookup.
type Blog struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Slug      string    `json:"slug"`
	Published bool      `json:"published"`
	User      *User     `json:"user,omitempty"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BlogPageParams carries the filter, sort and pagination inputs of a blog
// search. Zero values mean "filter absent".
type BlogPageParams struct {
	CurrentPage int     `json:"currentPage"`
	Limit       int     `json:"limit"`
	SortBy      string  `json:"sortBy,omitempty"`
	SortOrder   string  `json:"sortOrder,omitempty"`
	Tags        []int64 `json:"tags,omitempty"`
	Title       string  `json:"title,omitempty"`
}

// BlogPage is one page of a filtered blog listing. Total counts every match
// before pagination was applied.
type BlogPage struct {
	Items       []Blog `json:"items"`
	CurrentPage int    `json:"currentPage"`
	Limit       int    `json:"limit"`
	Total       int64  `json:"total"`
}

// CreateBlogParams holds the scalar fields of a blog create or update; tag ids
// travel separately so the service can resolve them first.
type CreateBlogParams struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Slug      string `json:"slug"`
	Published bool   `json:"published"`
}

// CreateTagParams is the body of a tag create or update.
type CreateTagParams struct {
	Name      string `json:"name"`
	TagTypeID int64  `json:"tagTypeId"`
}

// CreateUserParams is the body of a user registration. Roles are optional
// names; absent means the USER role.
type CreateUserParams struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

// UpdateUserRolesParams replaces a user's role set wholesale.
type UpdateUserRolesParams struct {
	Username string  `json:"username"`
	RoleIDs  []int64 `json:"roleIds"`
}

// UpdatePasswordParams carries a password change request.
type UpdatePasswordParams struct {
	OldPassword string `json:"oldPassword"`
	Password    string `json:"password"`
}
