package mongostore

import (
	"context"

	"civicfeed-be/engine"

	"go.mongodb.org/mongo-driver/bson"
)

// StatsSummary rolls up totals by status and category with two
// aggregations. Latest-observed consistency is fine here; the two
// pipelines may see slightly different states.
func (s *Store) StatsSummary(ctx context.Context) (*engine.StatsSummary, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	statusPipeline := []bson.M{
		{"$group": bson.M{
			"_id":        nil,
			"total":      bson.M{"$sum": 1},
			"open":       bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", "OPEN"}}, 1, 0}}},
			"inProgress": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", "IN_PROGRESS"}}, 1, 0}}},
			"resolved":   bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", "RESOLVED"}}, 1, 0}}},
			"closed":     bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", "CLOSED"}}, 1, 0}}},
		}},
	}

	cursor, err := s.issues.Aggregate(ctx, statusPipeline)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var totals []struct {
		Total      int64 `bson:"total"`
		Open       int64 `bson:"open"`
		InProgress int64 `bson:"inProgress"`
		Resolved   int64 `bson:"resolved"`
		Closed     int64 `bson:"closed"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, mapErr(err)
	}

	out := &engine.StatsSummary{Categories: []engine.CategoryCount{}}
	if len(totals) > 0 {
		out.Total = totals[0].Total
		out.Open = totals[0].Open
		out.InProgress = totals[0].InProgress
		out.Resolved = totals[0].Resolved
		out.Closed = totals[0].Closed
	}

	categoryPipeline := []bson.M{
		{"$group": bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}},
		{"$sort": bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}},
	}
	catCursor, err := s.issues.Aggregate(ctx, categoryPipeline)
	if err != nil {
		return nil, mapErr(err)
	}
	defer catCursor.Close(ctx)

	var cats []struct {
		Category string `bson:"_id"`
		Count    int64  `bson:"count"`
	}
	if err := catCursor.All(ctx, &cats); err != nil {
		return nil, mapErr(err)
	}
	for _, c := range cats {
		out.Categories = append(out.Categories, engine.CategoryCount{Category: c.Category, Count: c.Count})
	}
	return out, nil
}
