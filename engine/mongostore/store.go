// Package mongostore is the MongoDB implementation of engine.Engine.
// Upvote toggles use guarded $push / $pull array updates so membership
// flips atomically inside the server; comment appends ride document
// level atomicity for their per-issue total order.
package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultTimeout = 10 * time.Second

// Store implements engine.Engine over MongoDB collections.
type Store struct {
	issues  *mongo.Collection
	users   *mongo.Collection
	timeout time.Duration
	media   engine.MediaReleaser
	now     func() time.Time
}

var _ engine.Engine = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every store call; expiry surfaces as
// StoreUnavailableError.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithMediaReleaser wires the media collaborator notified on delete.
func WithMediaReleaser(m engine.MediaReleaser) Option {
	return func(s *Store) { s.media = m }
}

func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		issues:  db.Collection("issues"),
		users:   db.Collection("users"),
		timeout: defaultTimeout,
		media:   engine.NoopMediaReleaser{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the 2dsphere and query indexes. Called once at
// startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	issueIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "reportedBy", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	if _, err := s.issues.Indexes().CreateMany(ctx, issueIndexes); err != nil {
		return err
	}

	emailIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := s.users.Indexes().CreateOne(ctx, emailIndex)
	return err
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// mapErr translates driver errors into the engine taxonomy.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return &engine.NotFoundError{Resource: "issue"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return &engine.StoreUnavailableError{Err: err}
	default:
		return err
	}
}

// CreateIssue validates the input and inserts a new OPEN issue.
func (s *Store) CreateIssue(ctx context.Context, caller engine.Identity, in engine.CreateIssueInput) (*models.Issue, error) {
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

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := s.issues.InsertOne(ctx, doc); err != nil {
		return nil, mapErr(err)
	}
	return &doc, nil
}

// GetIssue returns the populated detail view, enforcing the PRIVATE
// visibility gate.
func (s *Store) GetIssue(ctx context.Context, caller engine.Identity, id primitive.ObjectID) (*engine.IssueDetail, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc models.Issue
	if err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	if doc.Visibility == models.VisibilityPrivate && doc.ReportedBy != caller.UserID && !caller.IsAdmin() {
		return nil, &engine.ForbiddenError{Message: "you are not authorized to view this issue"}
	}

	reporters, err := s.reporters(ctx, participantIDs(&doc))
	if err != nil {
		return nil, err
	}

	detail := &engine.IssueDetail{
		FeedItem: engine.FeedItem{
			Issue:          doc,
			UpvoteCount:    len(doc.Upvotes),
			CommentCount:   len(doc.Comments),
			UserHasUpvoted: doc.HasUpvoted(caller.UserID),
			IsUserIssue:    doc.ReportedBy == caller.UserID,
			Reporter:       reporters[doc.ReportedBy],
		},
	}
	detail.CommentViews = make([]engine.CommentView, 0, len(doc.Comments))
	for _, c := range doc.Comments {
		detail.CommentViews = append(detail.CommentViews, engine.CommentView{
			Comment: c,
			Author:  reporters[c.User],
		})
	}
	detail.Upvoters = make([]engine.Reporter, 0, len(doc.Upvotes))
	for _, u := range doc.Upvotes {
		if r := reporters[u.User]; r != nil {
			detail.Upvoters = append(detail.Upvoters, *r)
		}
	}
	return detail, nil
}

// UpdateIssue applies an allow-listed patch with a single $set. For
// non-admins the ownership check rides the update filter, so a racing
// transfer can never slip an unauthorized write through.
func (s *Store) UpdateIssue(ctx context.Context, caller engine.Identity, id primitive.ObjectID, patch engine.IssuePatch) (*models.Issue, error) {
	if err := engine.ValidatePatch(&patch); err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": s.now()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if patch.Visibility != nil {
		set["visibility"] = *patch.Visibility
	}
	if patch.Tags != nil {
		set["tags"] = *patch.Tags
	}

	filter := bson.M{"_id": id}
	if !caller.IsAdmin() {
		filter["reportedBy"] = caller.UserID
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Issue
	err := s.issues.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either absent or owned by someone else; look once more to
		// report the right failure.
		n, cErr := s.issues.CountDocuments(ctx, bson.M{"_id": id})
		if cErr != nil {
			return nil, mapErr(cErr)
		}
		if n > 0 {
			return nil, &engine.ForbiddenError{Message: "you are not authorized to update this issue"}
		}
		return nil, &engine.NotFoundError{Resource: "issue"}
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &updated, nil
}

// TransitionStatus performs the privileged status change as a CAS on
// the current status, retrying briefly if a concurrent transition wins.
func (s *Store) TransitionStatus(ctx context.Context, caller engine.Identity, id primitive.ObjectID, in engine.TransitionInput) (*models.Issue, error) {
	if !in.Status.Valid() {
		return nil, engine.NewValidationError("status", "invalid status")
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	for attempt := 0; attempt < 3; attempt++ {
		var doc models.Issue
		if err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
			return nil, mapErr(err)
		}
		if !caller.IsAdmin() && !doc.IsAssignee(caller.UserID) {
			return nil, &engine.ForbiddenError{Message: "you are not authorized to change the status of this issue"}
		}
		if !engine.TransitionAllowed(doc.Status, in.Status, caller.IsAdmin()) {
			return nil, engine.NewValidationError("status", "illegal status transition")
		}

		now := s.now()
		set := bson.M{"status": in.Status, "updatedAt": now}
		update := bson.M{"$set": set}
		if in.Status == models.StatusResolved {
			set["resolvedAt"] = now
		} else {
			update["$unset"] = bson.M{"resolvedAt": ""}
		}
		if in.AssignedTo != nil {
			set["assignedTo"] = *in.AssignedTo
		}
		if in.AdminNotes != nil {
			set["adminNotes"] = strings.TrimSpace(*in.AdminNotes)
		}
		if in.EstimatedResolutionDate != nil {
			set["estimatedResolutionDate"] = *in.EstimatedResolutionDate
		}

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var updated models.Issue
		err := s.issues.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": doc.Status}, update, opts).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Status moved underneath us; re-read and re-validate.
			continue
		}
		if err != nil {
			return nil, mapErr(err)
		}
		return &updated, nil
	}
	return nil, &engine.StoreUnavailableError{Err: errors.New("status transition contention")}
}

// DeleteIssue removes the record and signals the media collaborator.
// The ownership condition rides the delete filter for non-admins.
func (s *Store) DeleteIssue(ctx context.Context, caller engine.Identity, id primitive.ObjectID) error {
	filter := bson.M{"_id": id}
	if !caller.IsAdmin() {
		filter["reportedBy"] = caller.UserID
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc models.Issue
	err := s.issues.FindOneAndDelete(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cErr := s.issues.CountDocuments(ctx, bson.M{"_id": id})
		if cErr != nil {
			return mapErr(cErr)
		}
		if n > 0 {
			return &engine.ForbiddenError{Message: "you are not authorized to delete this issue"}
		}
		return &engine.NotFoundError{Resource: "issue"}
	}
	if err != nil {
		return mapErr(err)
	}

	if len(doc.Images) > 0 {
		return s.media.Release(ctx, doc.Images)
	}
	return nil
}

// ToggleUpvote flips set membership with two guarded server-side array
// updates: a $push that matches only when the voter is absent, then a
// $pull. Neither path reads membership first, so concurrent toggles can
// never double-add. Both run as FindOneAndUpdate returning the post
// update document, so the reported count is the cardinality this flip
// produced, not a later state.
func (s *Store) ToggleUpvote(ctx context.Context, id, user primitive.ObjectID) (engine.ToggleResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := s.now()
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}}})

	var state struct {
		Count int `bson:"count"`
	}
	err := s.issues.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "upvotes.user": bson.M{"$ne": user}},
		bson.M{
			"$push": bson.M{"upvotes": models.Upvote{User: user, UpvotedAt: now}},
			"$set":  bson.M{"updatedAt": now},
		}, opts).Decode(&state)
	if err == nil {
		return engine.ToggleResult{Upvoted: true, UpvoteCount: state.Count}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return engine.ToggleResult{}, mapErr(err)
	}

	// The guarded $push matched nothing: the voter is already a member,
	// or the issue is gone. The unguarded $pull distinguishes the two.
	err = s.issues.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$pull": bson.M{"upvotes": bson.M{"user": user}},
			"$set":  bson.M{"updatedAt": now},
		}, opts).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return engine.ToggleResult{}, &engine.NotFoundError{Resource: "issue"}
	}
	if err != nil {
		return engine.ToggleResult{}, mapErr(err)
	}
	return engine.ToggleResult{Upvoted: false, UpvoteCount: state.Count}, nil
}

func (s *Store) UpvoteCount(ctx context.Context, id primitive.ObjectID) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.upvoteCount(ctx, id)
}

// upvoteCount reads the post-toggle cardinality without transferring
// the whole array.
func (s *Store) upvoteCount(ctx context.Context, id primitive.ObjectID) (int, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"_id": id}},
		{"$project": bson.M{"count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}}}},
	}
	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, mapErr(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, mapErr(err)
	}
	if len(rows) == 0 {
		return 0, &engine.NotFoundError{Resource: "issue"}
	}
	return rows[0].Count, nil
}

func (s *Store) HasUpvoted(ctx context.Context, id, user primitive.ObjectID) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.issues.CountDocuments(ctx, bson.M{"_id": id, "upvotes.user": user})
	if err != nil {
		return false, mapErr(err)
	}
	if n == 0 {
		exists, err := s.issues.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return false, mapErr(err)
		}
		if exists == 0 {
			return false, &engine.NotFoundError{Resource: "issue"}
		}
	}
	return n > 0, nil
}

// AppendComment pushes one validated entry; document-level atomicity
// gives appends on the same issue their total order.
func (s *Store) AppendComment(ctx context.Context, id, author primitive.ObjectID, text string) (*models.Comment, error) {
	text, err := engine.ValidateComment(text)
	if err != nil {
		return nil, err
	}

	entry := models.Comment{
		ID:          primitive.NewObjectID(),
		User:        author,
		Comment:     text,
		CommentedAt: s.now(),
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.issues.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"comments": entry},
			"$set":  bson.M{"updatedAt": entry.CommentedAt},
		})
	if err != nil {
		return nil, mapErr(err)
	}
	if res.MatchedCount == 0 {
		return nil, &engine.NotFoundError{Resource: "issue"}
	}
	return &entry, nil
}

func (s *Store) CommentCount(ctx context.Context, id primitive.ObjectID) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipeline := []bson.M{
		{"$match": bson.M{"_id": id}},
		{"$project": bson.M{"count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$comments", bson.A{}}}}}},
	}
	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, mapErr(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, mapErr(err)
	}
	if len(rows) == 0 {
		return 0, &engine.NotFoundError{Resource: "issue"}
	}
	return rows[0].Count, nil
}

// CreateUser inserts a user; the unique email index enforces
// one-account-per-email.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return engine.NewValidationError("email", "user with this email already exists")
	}
	return mapErr(err)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &engine.NotFoundError{Resource: "user"}
		}
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &engine.NotFoundError{Resource: "user"}
		}
		return nil, mapErr(err)
	}
	return &u, nil
}

// participantIDs collects every user referenced by a document.
func participantIDs(doc *models.Issue) []primitive.ObjectID {
	seen := map[primitive.ObjectID]bool{doc.ReportedBy: true}
	ids := []primitive.ObjectID{doc.ReportedBy}
	for _, c := range doc.Comments {
		if !seen[c.User] {
			seen[c.User] = true
			ids = append(ids, c.User)
		}
	}
	for _, u := range doc.Upvotes {
		if !seen[u.User] {
			seen[u.User] = true
			ids = append(ids, u.User)
		}
	}
	if doc.AssignedTo != nil && !seen[*doc.AssignedTo] {
		ids = append(ids, *doc.AssignedTo)
	}
	return ids
}

// reporters fetches the minimal projection for a set of users.
func (s *Store) reporters(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*engine.Reporter, error) {
	opts := options.Find().SetProjection(bson.M{"name": 1, "avatar": 1})
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, mapErr(err)
	}
	out := make(map[primitive.ObjectID]*engine.Reporter, len(users))
	for _, u := range users {
		out[u.ID] = &engine.Reporter{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
	}
	return out, nil
}
