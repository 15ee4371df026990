package mongostore

import (
	"context"
	"strings"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// feedRow is one aggregation result: the issue document inline plus the
// computed caller-relative fields and the looked-up reporter.
type feedRow struct {
	models.Issue   `bson:",inline"`
	UpvoteCount    int          `bson:"upvoteCount"`
	CommentCount   int          `bson:"commentCount"`
	UserHasUpvoted bool         `bson:"userHasUpvoted"`
	IsUserIssue    bool         `bson:"isUserIssue"`
	Reporter       *reporterRow `bson:"reporter"`
}

type reporterRow struct {
	ID     primitive.ObjectID `bson:"_id"`
	Name   string             `bson:"name"`
	Avatar string             `bson:"avatar"`
}

func (r *feedRow) toItem() engine.FeedItem {
	item := engine.FeedItem{
		Issue:          r.Issue,
		UpvoteCount:    r.UpvoteCount,
		CommentCount:   r.CommentCount,
		UserHasUpvoted: r.UserHasUpvoted,
		IsUserIssue:    r.IsUserIssue,
	}
	if r.Reporter != nil {
		item.Reporter = &engine.Reporter{ID: r.Reporter.ID, Name: r.Reporter.Name, Avatar: r.Reporter.Avatar}
	}
	return item
}

// geoWithinFilter converts a radius in kilometers to the $centerSphere
// radian radius using the shared earth-radius constant.
func geoWithinFilter(lat, lon, radiusKm float64) bson.M {
	return bson.M{
		"$geoWithin": bson.M{
			"$centerSphere": bson.A{bson.A{lon, lat}, radiusKm / engine.EarthRadiusKm},
		},
	}
}

func validateGeo(g engine.GeoFilter) error {
	if err := engine.ValidateLocation(*g.Latitude, *g.Longitude); err != nil {
		return err
	}
	return engine.ValidateRadius(g.RadiusKm)
}

func allFilter(value string) bool {
	return value == "" || strings.EqualFold(value, "all")
}

// Feed serves the default radius- and recency-ranked view.
func (s *Store) Feed(ctx context.Context, caller engine.Identity, q engine.FeedQuery) (*engine.Page, error) {
	page, limit, err := engine.NormalizePage(q.Page, q.Limit, engine.DefaultFeedLimit)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if !caller.IsAdmin() {
		filter["$or"] = bson.A{
			bson.M{"visibility": models.VisibilityPublic},
			bson.M{"reportedBy": caller.UserID},
		}
	}
	// CLOSED is terminal and never feed-worthy; includeResolved only
	// readmits RESOLVED issues.
	if q.IncludeResolved {
		filter["status"] = bson.M{"$ne": models.StatusClosed}
	} else {
		filter["status"] = bson.M{"$nin": bson.A{models.StatusResolved, models.StatusClosed}}
	}
	if !allFilter(q.Category) {
		filter["category"] = q.Category
	}
	if q.Geo.Enabled() {
		if err := validateGeo(q.Geo); err != nil {
			return nil, err
		}
		filter["location"] = geoWithinFilter(*q.Geo.Latitude, *q.Geo.Longitude, q.Geo.RadiusKm)
	}

	sortDoc := bson.D{{Key: "createdAt", Value: -1}, {Key: "upvoteCount", Value: -1}, {Key: "_id", Value: 1}}
	return s.runQuery(ctx, caller, filter, sortDoc, page, limit)
}

// ListIssues serves the broader listing with search and explicit sort.
func (s *Store) ListIssues(ctx context.Context, caller engine.Identity, q engine.ListQuery) (*engine.Page, error) {
	page, limit, err := engine.NormalizePage(q.Page, q.Limit, engine.DefaultPageLimit)
	if err != nil {
		return nil, err
	}
	sortBy, dir, err := engine.NormalizeSort(q.SortBy, q.SortOrder)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if q.MyIssues {
		filter["reportedBy"] = caller.UserID
	} else {
		filter["visibility"] = models.VisibilityPublic
	}
	if !allFilter(q.Category) {
		filter["category"] = q.Category
	}
	if !allFilter(q.Status) {
		filter["status"] = q.Status
	}
	if !allFilter(q.Priority) {
		filter["priority"] = q.Priority
	}
	if q.Search != "" {
		regex := bson.M{"$regex": q.Search, "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": regex},
			bson.M{"description": regex},
			bson.M{"tags": regex},
		}
	}
	if q.Geo.Enabled() {
		if err := validateGeo(q.Geo); err != nil {
			return nil, err
		}
		filter["location"] = geoWithinFilter(*q.Geo.Latitude, *q.Geo.Longitude, q.Geo.RadiusKm)
	}

	sortDoc := bson.D{{Key: sortBy, Value: dir}, {Key: "_id", Value: 1}}
	return s.runQuery(ctx, caller, filter, sortDoc, page, limit)
}

// MyIssues lists the caller's own issues across both visibilities.
func (s *Store) MyIssues(ctx context.Context, caller engine.Identity, q engine.MyIssuesQuery) (*engine.Page, error) {
	page, limit, err := engine.NormalizePage(q.Page, q.Limit, engine.DefaultPageLimit)
	if err != nil {
		return nil, err
	}
	sortBy, dir, err := engine.NormalizeSort(q.SortBy, q.SortOrder)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"reportedBy": caller.UserID}
	if !allFilter(q.Status) {
		filter["status"] = q.Status
	}
	if !allFilter(q.Category) {
		filter["category"] = q.Category
	}

	sortDoc := bson.D{{Key: sortBy, Value: dir}, {Key: "_id", Value: 1}}
	return s.runQuery(ctx, caller, filter, sortDoc, page, limit)
}

// runQuery counts and pages over the same filter document, so the
// pagination metadata always matches the slice.
func (s *Store) runQuery(ctx context.Context, caller engine.Identity, filter bson.M, sortDoc bson.D, page, limit int) (*engine.Page, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	total, err := s.issues.CountDocuments(ctx, filter)
	if err != nil {
		return nil, mapErr(err)
	}

	skip := (page - 1) * limit
	pipeline := []bson.M{
		{"$match": filter},
		{"$addFields": bson.M{
			"upvoteCount":    bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}},
			"commentCount":   bson.M{"$size": bson.M{"$ifNull": bson.A{"$comments", bson.A{}}}},
			"userHasUpvoted": bson.M{"$in": bson.A{caller.UserID, bson.M{"$ifNull": bson.A{"$upvotes.user", bson.A{}}}}},
			"isUserIssue":    bson.M{"$eq": bson.A{"$reportedBy", caller.UserID}},
		}},
		{"$lookup": bson.M{
			"from":         "users",
			"localField":   "reportedBy",
			"foreignField": "_id",
			"as":           "reporter",
			"pipeline": []bson.M{
				{"$project": bson.M{"name": 1, "avatar": 1}},
			},
		}},
		{"$unwind": bson.M{"path": "$reporter", "preserveNullAndEmptyArrays": true}},
		{"$sort": sortDoc},
		{"$skip": skip},
		{"$limit": limit},
	}

	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var rows []feedRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, mapErr(err)
	}

	items := make([]engine.FeedItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toItem())
	}
	return &engine.Page{
		Items:      items,
		Pagination: engine.NewPagination(page, limit, total),
	}, nil
}
