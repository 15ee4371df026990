package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueCategory enum
type IssueCategory string

const (
	CategoryInfrastructure IssueCategory = "INFRASTRUCTURE"
	CategorySanitation     IssueCategory = "SANITATION"
	CategoryTraffic        IssueCategory = "TRAFFIC"
	CategoryEnvironment    IssueCategory = "ENVIRONMENT"
	CategoryUtilities      IssueCategory = "UTILITIES"
	CategorySafety         IssueCategory = "SAFETY"
	CategoryTransport      IssueCategory = "TRANSPORT"
	CategoryCleanliness    IssueCategory = "CLEANLINESS"
	CategoryGovernance     IssueCategory = "GOVERNANCE"
	CategoryOther          IssueCategory = "OTHER"
)

var validCategories = map[IssueCategory]bool{
	CategoryInfrastructure: true,
	CategorySanitation:     true,
	CategoryTraffic:        true,
	CategoryEnvironment:    true,
	CategoryUtilities:      true,
	CategorySafety:         true,
	CategoryTransport:      true,
	CategoryCleanliness:    true,
	CategoryGovernance:     true,
	CategoryOther:          true,
}

func (c IssueCategory) Valid() bool { return validCategories[c] }

// Categories lists every category in declaration order.
func Categories() []IssueCategory {
	return []IssueCategory{
		CategoryInfrastructure, CategorySanitation, CategoryTraffic,
		CategoryEnvironment, CategoryUtilities, CategorySafety,
		CategoryTransport, CategoryCleanliness, CategoryGovernance,
		CategoryOther,
	}
}

// IssuePriority enum
type IssuePriority string

const (
	PriorityLow      IssuePriority = "LOW"
	PriorityMedium   IssuePriority = "MEDIUM"
	PriorityHigh     IssuePriority = "HIGH"
	PriorityUrgent   IssuePriority = "URGENT"
	PriorityCritical IssuePriority = "CRITICAL"
)

var validPriorities = map[IssuePriority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityUrgent:   true,
	PriorityCritical: true,
}

func (p IssuePriority) Valid() bool { return validPriorities[p] }

// IssueStatus enum
type IssueStatus string

const (
	StatusOpen       IssueStatus = "OPEN"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusResolved   IssueStatus = "RESOLVED"
	StatusClosed     IssueStatus = "CLOSED"
)

var validStatuses = map[IssueStatus]bool{
	StatusOpen:       true,
	StatusInProgress: true,
	StatusResolved:   true,
	StatusClosed:     true,
}

func (s IssueStatus) Valid() bool { return validStatuses[s] }

// Visibility enum
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Location is a GeoJSON point plus optional free-text address fields.
// Coordinates are [longitude, latitude] in WGS-84 degrees.
type Location struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	City        string    `bson:"city,omitempty" json:"city,omitempty"`
	State       string    `bson:"state,omitempty" json:"state,omitempty"`
	Pincode     string    `bson:"pincode,omitempty" json:"pincode,omitempty"`
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) != 2 {
		return 0
	}
	return l.Coordinates[0]
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) != 2 {
		return 0
	}
	return l.Coordinates[1]
}

// HasCoordinates reports whether the point carries a usable coordinate
// pair. Issues without one are skipped by radius queries.
func (l Location) HasCoordinates() bool {
	return len(l.Coordinates) == 2
}

// ImageRef references media held by the external upload service. The
// engine stores references only, never file bytes.
type ImageRef struct {
	Filename     string    `bson:"filename" json:"filename"`
	OriginalName string    `bson:"originalName,omitempty" json:"originalName,omitempty"`
	Mimetype     string    `bson:"mimetype" json:"mimetype"`
	Size         int64     `bson:"size" json:"size"`
	UploadDate   time.Time `bson:"uploadDate" json:"uploadDate"`
}

// Upvote is one voter's support marker. At most one per (issue, user).
type Upvote struct {
	User      primitive.ObjectID `bson:"user" json:"user"`
	UpvotedAt time.Time          `bson:"upvotedAt" json:"upvotedAt"`
}

// Comment is an append-only entry; never edited or deleted on its own.
type Comment struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	User        primitive.ObjectID `bson:"user" json:"user"`
	Comment     string             `bson:"comment" json:"comment"`
	CommentedAt time.Time          `bson:"commentedAt" json:"commentedAt"`
}

// Issue represents a civic issue reported by a user
type Issue struct {
	ID                      primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title                   string              `bson:"title" json:"title"`
	Description             string              `bson:"description" json:"description"`
	Category                IssueCategory       `bson:"category" json:"category"`
	Priority                IssuePriority       `bson:"priority" json:"priority"`
	Status                  IssueStatus         `bson:"status" json:"status"`
	Location                Location            `bson:"location" json:"location"`
	Images                  []ImageRef          `bson:"images" json:"images"`
	ReportedBy              primitive.ObjectID  `bson:"reportedBy" json:"reportedBy"`
	AssignedTo              *primitive.ObjectID `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	Upvotes                 []Upvote            `bson:"upvotes" json:"upvotes"`
	Comments                []Comment           `bson:"comments" json:"comments"`
	Visibility              Visibility          `bson:"visibility" json:"visibility"`
	Tags                    []string            `bson:"tags" json:"tags"`
	AdminNotes              string              `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	ResolvedAt              *time.Time          `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	EstimatedResolutionDate *time.Time          `bson:"estimatedResolutionDate,omitempty" json:"estimatedResolutionDate,omitempty"`
	CreatedAt               time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt               time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (i *Issue) UpvoteCount() int  { return len(i.Upvotes) }
func (i *Issue) CommentCount() int { return len(i.Comments) }

// HasUpvoted reports whether the given user currently supports the issue.
func (i *Issue) HasUpvoted(user primitive.ObjectID) bool {
	for _, u := range i.Upvotes {
		if u.User == user {
			return true
		}
	}
	return false
}

// IsAssignee reports whether the given user is the current assignee.
func (i *Issue) IsAssignee(user primitive.ObjectID) bool {
	return i.AssignedTo != nil && *i.AssignedTo == user
}
