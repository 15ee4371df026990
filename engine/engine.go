// Package engine holds the issue feed and social-interaction core: the
// contracts for issue storage, the upvote ledger, the comment log, geo
// filtered feed aggregation, and stats rollups. Two implementations
// exist, engine/mongostore for production and engine/memstore for local
// runs and tests.
package engine

import (
	"context"
	"time"

	"civicfeed-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Identity is the authenticated caller as supplied by the auth
// collaborator. The engine never inspects credentials, only the ID and
// role.
type Identity struct {
	UserID primitive.ObjectID
	Role   string
}

func (id Identity) IsAdmin() bool { return id.Role == models.RoleAdmin }

// CreateIssueInput carries everything needed to create an issue. Images
// are references to media already held by the upload collaborator.
type CreateIssueInput struct {
	Title       string
	Description string
	Category    models.IssueCategory
	Priority    models.IssuePriority
	Latitude    float64
	Longitude   float64
	Address     string
	City        string
	State       string
	Pincode     string
	Visibility  models.Visibility
	Tags        []string
	Images      []models.ImageRef
}

// IssuePatch is the allow-listed mutable surface for owner/admin
// updates. Status and assignee changes go through TransitionStatus.
type IssuePatch struct {
	Title       *string
	Description *string
	Category    *models.IssueCategory
	Priority    *models.IssuePriority
	Visibility  *models.Visibility
	Tags        *[]string
}

func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.Visibility == nil && p.Tags == nil
}

// TransitionInput drives the privileged status path. AssignedTo and the
// admin-only note fields ride along with the status change.
type TransitionInput struct {
	Status                  models.IssueStatus
	AssignedTo              *primitive.ObjectID
	AdminNotes              *string
	EstimatedResolutionDate *time.Time
}

// ToggleResult is the post-toggle ledger state for one (issue, user).
type ToggleResult struct {
	Upvoted     bool `json:"upvoted"`
	UpvoteCount int  `json:"upvoteCount"`
}

// Reporter is the minimal projection of an issue author exposed on feed
// items. Never includes credentials or internal fields.
type Reporter struct {
	ID     primitive.ObjectID `json:"id"`
	Name   string             `json:"name"`
	Avatar string             `json:"avatar,omitempty"`
}

// FeedItem is one issue decorated with caller-relative fields. The
// stored issue is never mutated to produce it.
type FeedItem struct {
	models.Issue
	UpvoteCount    int       `json:"upvoteCount"`
	CommentCount   int       `json:"commentCount"`
	UserHasUpvoted bool      `json:"userHasUpvoted"`
	IsUserIssue    bool      `json:"isUserIssue"`
	Reporter       *Reporter `json:"reporter,omitempty"`
}

// CommentView pairs a comment with its author projection for the detail
// view.
type CommentView struct {
	models.Comment
	Author *Reporter `json:"author,omitempty"`
}

// IssueDetail is the fully populated single-issue view.
type IssueDetail struct {
	FeedItem
	CommentViews []CommentView `json:"commentDetails"`
	Upvoters     []Reporter    `json:"upvoters"`
}

// Pagination is the page metadata attached to every listing response.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// Page is one slice of a listing plus its metadata. Total is always
// computed over the same predicate as the slice.
type Page struct {
	Items      []FeedItem `json:"issues"`
	Pagination Pagination `json:"pagination"`
}

// GeoFilter is an optional radius restriction. Latitude/Longitude are
// pointers so "no geo filter" is distinguishable from the origin.
type GeoFilter struct {
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
}

func (g GeoFilter) Enabled() bool { return g.Latitude != nil && g.Longitude != nil }

// FeedQuery is the default feed view: recency-ranked open issues within
// an optional radius.
type FeedQuery struct {
	Page            int
	Limit           int
	Geo             GeoFilter
	Category        string
	IncludeResolved bool
}

// ListQuery is the broader listing with search and explicit sort.
type ListQuery struct {
	Page      int
	Limit     int
	Category  string
	Status    string
	Priority  string
	Geo       GeoFilter
	Search    string
	SortBy    string
	SortOrder string
	MyIssues  bool
}

// MyIssuesQuery lists the caller's own issues, both visibilities.
type MyIssuesQuery struct {
	Page      int
	Limit     int
	Status    string
	Category  string
	SortBy    string
	SortOrder string
}

// CategoryCount is one row of the by-category rollup.
type CategoryCount struct {
	Category string `json:"name"`
	Count    int64  `json:"value"`
}

// StatsSummary is the dashboard rollup. Latest-observed consistency.
type StatsSummary struct {
	Total      int64           `json:"total"`
	Open       int64           `json:"open"`
	InProgress int64           `json:"inProgress"`
	Resolved   int64           `json:"resolved"`
	Closed     int64           `json:"closed"`
	Categories []CategoryCount `json:"categories"`
}

// IssueStore owns the canonical issue records.
type IssueStore interface {
	CreateIssue(ctx context.Context, caller Identity, in CreateIssueInput) (*models.Issue, error)
	GetIssue(ctx context.Context, caller Identity, id primitive.ObjectID) (*IssueDetail, error)
	UpdateIssue(ctx context.Context, caller Identity, id primitive.ObjectID, patch IssuePatch) (*models.Issue, error)
	TransitionStatus(ctx context.Context, caller Identity, id primitive.ObjectID, in TransitionInput) (*models.Issue, error)
	DeleteIssue(ctx context.Context, caller Identity, id primitive.ObjectID) error
}

// UpvoteLedger enforces at-most-one-vote-per-user. Toggle is a single
// atomic set-membership flip, never a read-then-write pair.
type UpvoteLedger interface {
	ToggleUpvote(ctx context.Context, id, user primitive.ObjectID) (ToggleResult, error)
	UpvoteCount(ctx context.Context, id primitive.ObjectID) (int, error)
	HasUpvoted(ctx context.Context, id, user primitive.ObjectID) (bool, error)
}

// CommentLog is the append-only per-issue comment sequence.
type CommentLog interface {
	AppendComment(ctx context.Context, id, author primitive.ObjectID, text string) (*models.Comment, error)
	CommentCount(ctx context.Context, id primitive.ObjectID) (int, error)
}

// FeedReader answers the feed, listing, and my-issues queries.
type FeedReader interface {
	Feed(ctx context.Context, caller Identity, q FeedQuery) (*Page, error)
	ListIssues(ctx context.Context, caller Identity, q ListQuery) (*Page, error)
	MyIssues(ctx context.Context, caller Identity, q MyIssuesQuery) (*Page, error)
}

// StatsReader serves dashboard rollups.
type StatsReader interface {
	StatsSummary(ctx context.Context) (*StatsSummary, error)
}

// UserDirectory is the user surface the auth collaborator works
// against. It also backs reporter projections.
type UserDirectory interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Engine is the full feed and social-interaction core.
type Engine interface {
	IssueStore
	UpvoteLedger
	CommentLog
	FeedReader
	StatsReader
	UserDirectory
}

// MediaReleaser is notified when a deleted issue's image references
// must be released by the media collaborator.
type MediaReleaser interface {
	Release(ctx context.Context, images []models.ImageRef) error
}

// NoopMediaReleaser discards release requests. Used when no media
// collaborator is wired.
type NoopMediaReleaser struct{}

func (NoopMediaReleaser) Release(context.Context, []models.ImageRef) error { return nil }
