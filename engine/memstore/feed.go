package memstore

import (
	"context"
	"sort"
	"strings"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// predicate is one named filter over an issue. Queries combine
// predicates with AND semantics; each is independently testable.
type predicate func(*models.Issue) bool

func and(preds ...predicate) predicate {
	return func(doc *models.Issue) bool {
		for _, p := range preds {
			if !p(doc) {
				return false
			}
		}
		return true
	}
}

func categoryIs(category string) predicate {
	return func(doc *models.Issue) bool {
		return string(doc.Category) == category
	}
}

func statusIs(status string) predicate {
	return func(doc *models.Issue) bool {
		return string(doc.Status) == status
	}
}

func priorityIs(priority string) predicate {
	return func(doc *models.Issue) bool {
		return string(doc.Priority) == priority
	}
}

// activeOnly drops RESOLVED and CLOSED issues from the default feed.
func activeOnly() predicate {
	return func(doc *models.Issue) bool {
		return doc.Status != models.StatusResolved && doc.Status != models.StatusClosed
	}
}

// notClosed keeps CLOSED issues out of the feed even when resolved ones
// are readmitted. CLOSED is terminal and never feed-worthy.
func notClosed() predicate {
	return func(doc *models.Issue) bool {
		return doc.Status != models.StatusClosed
	}
}

// visibleTo restricts to PUBLIC issues plus the caller's own PRIVATE
// ones. Admins see everything, matching the detail view gate.
func visibleTo(caller engine.Identity) predicate {
	return func(doc *models.Issue) bool {
		return doc.Visibility == models.VisibilityPublic || doc.ReportedBy == caller.UserID || caller.IsAdmin()
	}
}

func publicOnly() predicate {
	return func(doc *models.Issue) bool {
		return doc.Visibility == models.VisibilityPublic
	}
}

func ownedBy(caller engine.Identity) predicate {
	return func(doc *models.Issue) bool {
		return doc.ReportedBy == caller.UserID
	}
}

// inGeoSet keeps issues present in a withinRadius result set.
func inGeoSet(ids map[primitive.ObjectID]bool) predicate {
	return func(doc *models.Issue) bool {
		return ids[doc.ID]
	}
}

// matchesSearch is a case-insensitive substring match over title,
// description, and tags.
func matchesSearch(term string) predicate {
	term = strings.ToLower(term)
	return func(doc *models.Issue) bool {
		if strings.Contains(strings.ToLower(doc.Title), term) {
			return true
		}
		if strings.Contains(strings.ToLower(doc.Description), term) {
			return true
		}
		for _, tag := range doc.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				return true
			}
		}
		return false
	}
}

// Feed serves the default radius- and recency-ranked view.
func (s *Store) Feed(ctx context.Context, caller engine.Identity, q engine.FeedQuery) (*engine.Page, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	page, limit, err := engine.NormalizePage(q.Page, q.Limit, engine.DefaultFeedLimit)
	if err != nil {
		return nil, err
	}

	preds := []predicate{visibleTo(caller)}
	if q.IncludeResolved {
		preds = append(preds, notClosed())
	} else {
		preds = append(preds, activeOnly())
	}
	if q.Category != "" && !strings.EqualFold(q.Category, "all") {
		preds = append(preds, categoryIs(q.Category))
	}
	if q.Geo.Enabled() {
		if err := engine.ValidateLocation(*q.Geo.Latitude, *q.Geo.Longitude); err != nil {
			return nil, err
		}
		if err := engine.ValidateRadius(q.Geo.RadiusKm); err != nil {
			return nil, err
		}
		preds = append(preds, inGeoSet(s.geo.withinRadius(*q.Geo.Latitude, *q.Geo.Longitude, q.Geo.RadiusKm)))
	}

	return s.runQuery(caller, and(preds...), feedOrder, page, limit), nil
}

// ListIssues serves the broader listing with search and explicit sort.
func (s *Store) ListIssues(ctx context.Context, caller engine.Identity, q engine.ListQuery) (*engine.Page, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	page, limit, err := engine.NormalizePage(q.Page, q.Limit, engine.DefaultPageLimit)
	if err != nil {
		return nil, err
	}
	sortBy, dir, err := engine.NormalizeSort(q.SortBy, q.SortOrder)
	if err != nil {
		return nil, err
	}

	var preds []predicate
	if q.MyIssues {
		preds = append(preds, ownedBy(caller))
	} else {
		preds = append(preds, publicOnly())
	}
	if q.Category != "" && !strings.EqualFold(q.Category, "all") {
		preds = append(preds, categoryIs(q.Category))
	}
	if q.Status != "" && !strings.EqualFold(q.Status, "all") {
		preds = append(preds, statusIs(q.Status))
	}
	if q.Priority != "" && !strings.EqualFold(q.Priority, "all") {
		preds = append(preds, priorityIs(q.Priority))
	}
	if q.Search != "" {
		preds = append(preds, matchesSearch(q.Search))
	}
	if q.Geo.Enabled() {
		if err := engine.ValidateLocation(*q.Geo.Latitude, *q.Geo.Longitude); err != nil {
			return nil, err
		}
		if err := engine.ValidateRadius(q.Geo.RadiusKm); err != nil {
			return nil, err
		}
		preds = append(preds, inGeoSet(s.geo.withinRadius(*q.Geo.Latitude, *q.Geo.Longitude, q.Geo.RadiusKm)))
	}

	return s.runQuery(caller, and(preds...), fieldOrder(sortBy, dir), page, limit), nil
}

// MyIssues lists the caller's own issues across both visibilities.
func (s *Store) MyIssues(ctx context.Context, caller engine.Identity, q engine.MyIssuesQuery) (*engine.Page, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	page, limit, err := engine.NormalizePage(q.Page, q.Limit, engine.DefaultPageLimit)
	if err != nil {
		return nil, err
	}
	sortBy, dir, err := engine.NormalizeSort(q.SortBy, q.SortOrder)
	if err != nil {
		return nil, err
	}

	preds := []predicate{ownedBy(caller)}
	if q.Status != "" && !strings.EqualFold(q.Status, "all") {
		preds = append(preds, statusIs(q.Status))
	}
	if q.Category != "" && !strings.EqualFold(q.Category, "all") {
		preds = append(preds, categoryIs(q.Category))
	}

	return s.runQuery(caller, and(preds...), fieldOrder(sortBy, dir), page, limit), nil
}

// ordering compares two issues for a stable sort.
type ordering func(a, b *models.Issue) bool

// feedOrder ranks by recency, then current upvote count, then ID so
// pages are deterministic under ties.
func feedOrder(a, b *models.Issue) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if len(a.Upvotes) != len(b.Upvotes) {
		return len(a.Upvotes) > len(b.Upvotes)
	}
	return a.ID.Hex() < b.ID.Hex()
}

// fieldOrder sorts by a whitelisted field and direction, ID ascending
// as the tiebreak.
func fieldOrder(field string, dir int) ordering {
	asc := dir > 0
	return func(a, b *models.Issue) bool {
		av, bv := sortKey(a, field), sortKey(b, field)
		if av != bv {
			if asc {
				return av < bv
			}
			return av > bv
		}
		return a.ID.Hex() < b.ID.Hex()
	}
}

func sortKey(doc *models.Issue, field string) string {
	switch field {
	case "createdAt":
		return doc.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000")
	case "updatedAt":
		return doc.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000000000")
	case "title":
		return strings.ToLower(doc.Title)
	case "category":
		return string(doc.Category)
	case "priority":
		return string(doc.Priority)
	case "status":
		return string(doc.Status)
	}
	return ""
}

// runQuery filters a snapshot, computes the total over that same
// predicate, then sorts and slices the requested page. Snapshot, total,
// and slice come from one pass so the metadata always matches the
// items.
func (s *Store) runQuery(caller engine.Identity, pred predicate, order ordering, page, limit int) *engine.Page {
	var matched []models.Issue
	for _, doc := range s.snapshot() {
		if pred(&doc) {
			matched = append(matched, doc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return order(&matched[i], &matched[j])
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	items := make([]engine.FeedItem, 0, end-start)
	for _, doc := range matched[start:end] {
		items = append(items, s.feedItem(doc, caller))
	}

	return &engine.Page{
		Items:      items,
		Pagination: engine.NewPagination(page, limit, total),
	}
}

// feedItem decorates one issue copy with caller-relative fields.
func (s *Store) feedItem(doc models.Issue, caller engine.Identity) engine.FeedItem {
	return engine.FeedItem{
		Issue:          doc,
		UpvoteCount:    len(doc.Upvotes),
		CommentCount:   len(doc.Comments),
		UserHasUpvoted: doc.HasUpvoted(caller.UserID),
		IsUserIssue:    doc.ReportedBy == caller.UserID,
		Reporter:       s.reporter(doc.ReportedBy),
	}
}

func sortedCategoryCounts(byCat map[string]int64) []engine.CategoryCount {
	out := make([]engine.CategoryCount, 0, len(byCat))
	for cat, n := range byCat {
		out = append(out, engine.CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}
