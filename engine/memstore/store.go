// Package memstore is the in-process implementation of engine.Engine.
// It backs local runs without MongoDB and the test suite. All documents
// live in maps guarded by a store-level RWMutex; each issue record
// additionally carries its own lock so ledger toggles and comment
// appends are single atomic flips rather than read-then-write pairs.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type issueRecord struct {
	mu      sync.Mutex
	doc     models.Issue
	deleted bool
}

// Store implements engine.Engine in memory.
type Store struct {
	mu     sync.RWMutex
	issues map[primitive.ObjectID]*issueRecord
	users  map[primitive.ObjectID]models.User
	emails map[string]primitive.ObjectID
	geo    *geoIndex
	media  engine.MediaReleaser
	now    func() time.Time
}

var _ engine.Engine = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMediaReleaser wires the media collaborator notified on delete.
func WithMediaReleaser(m engine.MediaReleaser) Option {
	return func(s *Store) { s.media = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		issues: make(map[primitive.ObjectID]*issueRecord),
		users:  make(map[primitive.ObjectID]models.User),
		emails: make(map[string]primitive.ObjectID),
		geo:    newGeoIndex(),
		media:  engine.NoopMediaReleaser{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &engine.StoreUnavailableError{Err: err}
	}
	return nil
}

// record returns the live record for id, or NotFoundError.
func (s *Store) record(id primitive.ObjectID) (*issueRecord, error) {
	s.mu.RLock()
	rec, ok := s.issues[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &engine.NotFoundError{Resource: "issue"}
	}
	return rec, nil
}

// CreateIssue validates the input and inserts a new OPEN issue.
func (s *Store) CreateIssue(ctx context.Context, caller engine.Identity, in engine.CreateIssueInput) (*models.Issue, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	if err := engine.ValidateCreate(&in); err != nil {
		return nil, err
	}

	now := s.now()
	images := make([]models.ImageRef, len(in.Images))
	copy(images, in.Images)
	for i := range images {
		if images[i].UploadDate.IsZero() {
			images[i].UploadDate = now
		}
	}

	doc := models.Issue{
		ID:          primitive.NewObjectID(),
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Priority:    in.Priority,
		Status:      models.StatusOpen,
		Location: models.Location{
			Type:        "Point",
			Coordinates: []float64{in.Longitude, in.Latitude},
			Address:     in.Address,
			City:        in.City,
			State:       in.State,
			Pincode:     in.Pincode,
		},
		Images:     images,
		ReportedBy: caller.UserID,
		Upvotes:    []models.Upvote{},
		Comments:   []models.Comment{},
		Visibility: in.Visibility,
		Tags:       in.Tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.issues[doc.ID] = &issueRecord{doc: doc}
	s.mu.Unlock()
	s.geo.upsert(doc.ID, in.Latitude, in.Longitude)

	out := doc
	return &out, nil
}

// GetIssue returns the fully populated detail view, enforcing the
// PRIVATE visibility gate.
func (s *Store) GetIssue(ctx context.Context, caller engine.Identity, id primitive.ObjectID) (*engine.IssueDetail, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	doc, err := s.snapshotIssue(id)
	if err != nil {
		return nil, err
	}
	if doc.Visibility == models.VisibilityPrivate && doc.ReportedBy != caller.UserID && !caller.IsAdmin() {
		return nil, &engine.ForbiddenError{Message: "you are not authorized to view this issue"}
	}

	detail := &engine.IssueDetail{FeedItem: s.feedItem(*doc, caller)}
	detail.CommentViews = make([]engine.CommentView, 0, len(doc.Comments))
	for _, c := range doc.Comments {
		detail.CommentViews = append(detail.CommentViews, engine.CommentView{
			Comment: c,
			Author:  s.reporter(c.User),
		})
	}
	detail.Upvoters = make([]engine.Reporter, 0, len(doc.Upvotes))
	for _, u := range doc.Upvotes {
		if r := s.reporter(u.User); r != nil {
			detail.Upvoters = append(detail.Upvoters, *r)
		}
	}
	return detail, nil
}

// UpdateIssue applies an allow-listed patch as one atomic document
// write. Owner or admin only.
func (s *Store) UpdateIssue(ctx context.Context, caller engine.Identity, id primitive.ObjectID, patch engine.IssuePatch) (*models.Issue, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	if err := engine.ValidatePatch(&patch); err != nil {
		return nil, err
	}
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, &engine.NotFoundError{Resource: "issue"}
	}
	if rec.doc.ReportedBy != caller.UserID && !caller.IsAdmin() {
		return nil, &engine.ForbiddenError{Message: "you are not authorized to update this issue"}
	}

	if patch.Title != nil {
		rec.doc.Title = *patch.Title
	}
	if patch.Description != nil {
		rec.doc.Description = *patch.Description
	}
	if patch.Category != nil {
		rec.doc.Category = *patch.Category
	}
	if patch.Priority != nil {
		rec.doc.Priority = *patch.Priority
	}
	if patch.Visibility != nil {
		rec.doc.Visibility = *patch.Visibility
	}
	if patch.Tags != nil {
		rec.doc.Tags = *patch.Tags
	}
	rec.doc.UpdatedAt = s.now()

	out := cloneIssue(rec.doc)
	return &out, nil
}

// TransitionStatus is the privileged status path: admin or current
// assignee only. resolvedAt is set exactly when entering RESOLVED and
// cleared when leaving it.
func (s *Store) TransitionStatus(ctx context.Context, caller engine.Identity, id primitive.ObjectID, in engine.TransitionInput) (*models.Issue, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, engine.NewValidationError("status", "invalid status")
	}
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, &engine.NotFoundError{Resource: "issue"}
	}
	if !caller.IsAdmin() && !rec.doc.IsAssignee(caller.UserID) {
		return nil, &engine.ForbiddenError{Message: "you are not authorized to change the status of this issue"}
	}
	if !engine.TransitionAllowed(rec.doc.Status, in.Status, caller.IsAdmin()) {
		return nil, engine.NewValidationError("status", "illegal status transition")
	}

	now := s.now()
	rec.doc.Status = in.Status
	if in.Status == models.StatusResolved {
		rec.doc.ResolvedAt = &now
	} else {
		rec.doc.ResolvedAt = nil
	}
	if in.AssignedTo != nil {
		assignee := *in.AssignedTo
		rec.doc.AssignedTo = &assignee
	}
	if in.AdminNotes != nil {
		rec.doc.AdminNotes = strings.TrimSpace(*in.AdminNotes)
	}
	if in.EstimatedResolutionDate != nil {
		d := *in.EstimatedResolutionDate
		rec.doc.EstimatedResolutionDate = &d
	}
	rec.doc.UpdatedAt = now

	out := cloneIssue(rec.doc)
	return &out, nil
}

// DeleteIssue removes the record, its ledger and comment entries, and
// hands the image references to the media collaborator. Late toggles or
// appends racing the delete observe NotFoundError via the deleted flag.
func (s *Store) DeleteIssue(ctx context.Context, caller engine.Identity, id primitive.ObjectID) error {
	if err := s.checkCtx(ctx); err != nil {
		return err
	}
	rec, err := s.record(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return &engine.NotFoundError{Resource: "issue"}
	}
	if rec.doc.ReportedBy != caller.UserID && !caller.IsAdmin() {
		rec.mu.Unlock()
		return &engine.ForbiddenError{Message: "you are not authorized to delete this issue"}
	}
	rec.deleted = true
	images := rec.doc.Images
	rec.mu.Unlock()

	s.mu.Lock()
	delete(s.issues, id)
	s.mu.Unlock()
	s.geo.remove(id)

	if len(images) > 0 {
		return s.media.Release(ctx, images)
	}
	return nil
}

// ToggleUpvote atomically flips the caller's membership in the issue's
// upvote set and returns the post-toggle state. The flip happens under
// the record lock, so concurrent toggles for the same pair serialize
// into strict alternation.
func (s *Store) ToggleUpvote(ctx context.Context, id, user primitive.ObjectID) (engine.ToggleResult, error) {
	if err := s.checkCtx(ctx); err != nil {
		return engine.ToggleResult{}, err
	}
	rec, err := s.record(id)
	if err != nil {
		return engine.ToggleResult{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return engine.ToggleResult{}, &engine.NotFoundError{Resource: "issue"}
	}

	if rec.doc.HasUpvoted(user) {
		kept := make([]models.Upvote, 0, len(rec.doc.Upvotes)-1)
		for _, u := range rec.doc.Upvotes {
			if u.User != user {
				kept = append(kept, u)
			}
		}
		rec.doc.Upvotes = kept
		rec.doc.UpdatedAt = s.now()
		return engine.ToggleResult{Upvoted: false, UpvoteCount: len(kept)}, nil
	}

	rec.doc.Upvotes = append(rec.doc.Upvotes, models.Upvote{User: user, UpvotedAt: s.now()})
	rec.doc.UpdatedAt = s.now()
	return engine.ToggleResult{Upvoted: true, UpvoteCount: len(rec.doc.Upvotes)}, nil
}

func (s *Store) UpvoteCount(ctx context.Context, id primitive.ObjectID) (int, error) {
	doc, err := s.snapshotIssue(id)
	if err != nil {
		return 0, err
	}
	return len(doc.Upvotes), nil
}

func (s *Store) HasUpvoted(ctx context.Context, id, user primitive.ObjectID) (bool, error) {
	doc, err := s.snapshotIssue(id)
	if err != nil {
		return false, err
	}
	return doc.HasUpvoted(user), nil
}

// AppendComment appends one validated entry. Appends on the same issue
// serialize under the record lock, giving a total per-issue order.
func (s *Store) AppendComment(ctx context.Context, id, author primitive.ObjectID, text string) (*models.Comment, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	text, err := engine.ValidateComment(text)
	if err != nil {
		return nil, err
	}
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, &engine.NotFoundError{Resource: "issue"}
	}

	entry := models.Comment{
		ID:          primitive.NewObjectID(),
		User:        author,
		Comment:     text,
		CommentedAt: s.now(),
	}
	rec.doc.Comments = append(rec.doc.Comments, entry)
	rec.doc.UpdatedAt = entry.CommentedAt
	return &entry, nil
}

func (s *Store) CommentCount(ctx context.Context, id primitive.ObjectID) (int, error) {
	doc, err := s.snapshotIssue(id)
	if err != nil {
		return 0, err
	}
	return len(doc.Comments), nil
}

// StatsSummary rolls up totals by status and category.
func (s *Store) StatsSummary(ctx context.Context) (*engine.StatsSummary, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	out := &engine.StatsSummary{}
	byCat := make(map[string]int64)
	for _, doc := range s.snapshot() {
		out.Total++
		switch doc.Status {
		case models.StatusOpen:
			out.Open++
		case models.StatusInProgress:
			out.InProgress++
		case models.StatusResolved:
			out.Resolved++
		case models.StatusClosed:
			out.Closed++
		}
		byCat[string(doc.Category)]++
	}
	out.Categories = sortedCategoryCounts(byCat)
	return out, nil
}

// CreateUser registers a user; email must be unique.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return engine.NewValidationError("email", "user with this email already exists")
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, &engine.NotFoundError{Resource: "user"}
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if err := s.checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, &engine.NotFoundError{Resource: "user"}
	}
	return &u, nil
}

// snapshotIssue copies one live document under its record lock.
func (s *Store) snapshotIssue(id primitive.ObjectID) (*models.Issue, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, &engine.NotFoundError{Resource: "issue"}
	}
	doc := cloneIssue(rec.doc)
	return &doc, nil
}

// snapshot copies every live document. Each copy is taken under its
// record lock, so no half-written document is ever observed.
func (s *Store) snapshot() []models.Issue {
	s.mu.RLock()
	recs := make([]*issueRecord, 0, len(s.issues))
	for _, rec := range s.issues {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	docs := make([]models.Issue, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.deleted {
			docs = append(docs, cloneIssue(rec.doc))
		}
		rec.mu.Unlock()
	}
	return docs
}

func (s *Store) reporter(id primitive.ObjectID) *engine.Reporter {
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return &engine.Reporter{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}

func cloneIssue(doc models.Issue) models.Issue {
	out := doc
	out.Upvotes = append([]models.Upvote(nil), doc.Upvotes...)
	out.Comments = append([]models.Comment(nil), doc.Comments...)
	out.Tags = append([]string(nil), doc.Tags...)
	out.Images = append([]models.ImageRef(nil), doc.Images...)
	return out
}
