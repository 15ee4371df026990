package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// These tests need a running MongoDB; set MONGODB_URI to enable them.
// The parity and query properties themselves are covered against the
// in-memory engine, this suite checks the translation to real
// collection operations.
func testStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("civicfeed_test_" + primitive.NewObjectID().Hex()[:8])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	s := New(db)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestMongoIssueRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	caller := engine.Identity{UserID: primitive.NewObjectID(), Role: models.RoleCitizen}

	issue, err := s.CreateIssue(ctx, caller, engine.CreateIssueInput{
		Title:       "Water leakage on 4th cross",
		Description: "Pipe burst flooding the footpath.",
		Category:    models.CategoryUtilities,
		Latitude:    12.9716,
		Longitude:   77.5946,
	})
	require.NoError(t, err)

	detail, err := s.GetIssue(ctx, caller, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.ID, detail.ID)
	assert.Equal(t, models.StatusOpen, detail.Status)
	assert.True(t, detail.IsUserIssue)
}

func TestMongoToggleUpvoteParity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	caller := engine.Identity{UserID: primitive.NewObjectID(), Role: models.RoleCitizen}

	issue, err := s.CreateIssue(ctx, caller, engine.CreateIssueInput{
		Title:       "Garbage pileup",
		Description: "Not collected for a week.",
		Category:    models.CategorySanitation,
		Latitude:    12.9716,
		Longitude:   77.5946,
	})
	require.NoError(t, err)

	voter := primitive.NewObjectID()
	for n := 1; n <= 4; n++ {
		res, err := s.ToggleUpvote(ctx, issue.ID, voter)
		require.NoError(t, err)

		wantMember := n%2 == 1
		assert.Equal(t, wantMember, res.Upvoted, "after %d toggles", n)

		// The count travels with the flip itself.
		wantCount := 0
		if wantMember {
			wantCount = 1
		}
		assert.Equal(t, wantCount, res.UpvoteCount, "after %d toggles", n)
	}

	count, err := s.UpvoteCount(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMongoGeoFeed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	caller := engine.Identity{UserID: primitive.NewObjectID(), Role: models.RoleCitizen}

	_, err := s.CreateIssue(ctx, caller, engine.CreateIssueInput{
		Title:       "Pothole near metro",
		Description: "Growing every week.",
		Category:    models.CategoryInfrastructure,
		Latitude:    12.9716,
		Longitude:   77.5946,
	})
	require.NoError(t, err)

	lat, lon := 12.97, 77.59
	page, err := s.Feed(ctx, caller, engine.FeedQuery{
		Geo: engine.GeoFilter{Latitude: &lat, Longitude: &lon, RadiusKm: 5},
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	farLat, farLon := 28.61, 77.20
	page, err = s.Feed(ctx, caller, engine.FeedQuery{
		Geo: engine.GeoFilter{Latitude: &farLat, Longitude: &farLon, RadiusKm: 5},
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
