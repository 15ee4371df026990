package engine

import (
	"strings"
	"unicode/utf8"

	"civicfeed-be/models"
)

// Field and listing bounds. Lengths are code points, not bytes.
const (
	TitleMaxLen       = 100
	DescriptionMaxLen = 1000
	CommentMaxLen     = 500
	MaxImages         = 5
	MaxImageSize      = 10 << 20
	MaxPageLimit      = 100
	DefaultPageLimit  = 10
	DefaultFeedLimit  = 20
)

// ValidateCreate normalizes and checks a create request in place.
// Returns the first offending field as a ValidationError, coordinate
// problems as InvalidLocationError.
func ValidateCreate(in *CreateIssueInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return NewValidationError("title", "title is required")
	}
	if utf8.RuneCountInString(in.Title) > TitleMaxLen {
		return NewValidationError("title", "title cannot exceed 100 characters")
	}
	if in.Description == "" {
		return NewValidationError("description", "description is required")
	}
	if utf8.RuneCountInString(in.Description) > DescriptionMaxLen {
		return NewValidationError("description", "description cannot exceed 1000 characters")
	}
	if !in.Category.Valid() {
		return NewValidationError("category", "invalid category")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return NewValidationError("priority", "invalid priority")
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if !in.Visibility.Valid() {
		return NewValidationError("visibility", "invalid visibility")
	}
	if err := ValidateLocation(in.Latitude, in.Longitude); err != nil {
		return err
	}
	if err := validateImages(in.Images); err != nil {
		return err
	}
	in.Tags = NormalizeTags(in.Tags)
	return nil
}

func validateImages(images []models.ImageRef) error {
	if len(images) > MaxImages {
		return NewValidationError("images", "at most 5 images per issue")
	}
	for _, img := range images {
		if img.Filename == "" {
			return NewValidationError("images", "image filename is required")
		}
		if !strings.HasPrefix(img.Mimetype, "image/") {
			return NewValidationError("images", "only image files are allowed")
		}
		if img.Size <= 0 || img.Size > MaxImageSize {
			return NewValidationError("images", "image size out of range")
		}
	}
	return nil
}

// ValidatePatch checks the allow-listed update surface.
func ValidatePatch(p *IssuePatch) error {
	if p.Empty() {
		return NewValidationError("", "no updatable fields in request")
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return NewValidationError("title", "title is required")
		}
		if utf8.RuneCountInString(t) > TitleMaxLen {
			return NewValidationError("title", "title cannot exceed 100 characters")
		}
		*p.Title = t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if d == "" {
			return NewValidationError("description", "description is required")
		}
		if utf8.RuneCountInString(d) > DescriptionMaxLen {
			return NewValidationError("description", "description cannot exceed 1000 characters")
		}
		*p.Description = d
	}
	if p.Category != nil && !p.Category.Valid() {
		return NewValidationError("category", "invalid category")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return NewValidationError("priority", "invalid priority")
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		return NewValidationError("visibility", "invalid visibility")
	}
	if p.Tags != nil {
		*p.Tags = NormalizeTags(*p.Tags)
	}
	return nil
}

// ValidateComment trims and bounds comment text.
func ValidateComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewValidationError("comment", "comment is required")
	}
	if utf8.RuneCountInString(text) > CommentMaxLen {
		return "", NewValidationError("comment", "comment cannot exceed 500 characters")
	}
	return text, nil
}

// NormalizeTags trims entries and drops empties.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NormalizePage bounds page/limit. Non-positive values are client
// errors; oversized limits are clamped to keep aggregation cost bounded.
func NormalizePage(page, limit, defaultLimit int) (int, int, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	if page < 1 {
		return 0, 0, NewValidationError("page", "page must be a positive integer")
	}
	if limit < 1 {
		return 0, 0, NewValidationError("limit", "limit must be a positive integer")
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit, nil
}

// NewPagination derives page metadata from a total computed over the
// same predicate as the page slice.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// Sortable fields for the list and my-issues views.
var sortableFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"title":     true,
	"category":  true,
	"priority":  true,
	"status":    true,
}

// NormalizeSort whitelists the sort field and resolves direction.
// Returns the field name and -1 (desc) or 1 (asc).
func NormalizeSort(sortBy, sortOrder string) (string, int, error) {
	if sortBy == "" {
		sortBy = "createdAt"
	}
	if !sortableFields[sortBy] {
		return "", 0, NewValidationError("sortBy", "unsupported sort field")
	}
	switch sortOrder {
	case "", "desc":
		return sortBy, -1, nil
	case "asc":
		return sortBy, 1, nil
	default:
		return "", 0, NewValidationError("sortOrder", "sort order must be asc or desc")
	}
}

// Status transition table. RESOLVED may be reopened; CLOSED is terminal
// except for an explicit admin reopen, which TransitionAllowed handles
// separately.
var statusTransitions = map[models.IssueStatus][]models.IssueStatus{
	models.StatusOpen:       {models.StatusInProgress, models.StatusResolved, models.StatusClosed},
	models.StatusInProgress: {models.StatusResolved, models.StatusClosed},
	models.StatusResolved:   {models.StatusClosed, models.StatusOpen},
	models.StatusClosed:     {},
}

// TransitionAllowed reports whether from→to is legal for the caller.
func TransitionAllowed(from, to models.IssueStatus, admin bool) bool {
	if from == to {
		return false
	}
	if from == models.StatusClosed {
		return admin && to == models.StatusOpen
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
