package memstore

import (
	"sync"

	"civicfeed-be/engine"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// geoIndex is the incrementally maintained spatial index: one point per
// issue, inserted on create and removed on delete. Issues without valid
// coordinates are never indexed, so radius queries silently exclude
// them.
type geoIndex struct {
	mu     sync.RWMutex
	points map[primitive.ObjectID]geoPoint
}

type geoPoint struct {
	lat float64
	lon float64
}

func newGeoIndex() *geoIndex {
	return &geoIndex{points: make(map[primitive.ObjectID]geoPoint)}
}

func (g *geoIndex) upsert(id primitive.ObjectID, lat, lon float64) {
	if !engine.ValidCoordinates(lat, lon) {
		return
	}
	g.mu.Lock()
	g.points[id] = geoPoint{lat: lat, lon: lon}
	g.mu.Unlock()
}

func (g *geoIndex) remove(id primitive.ObjectID) {
	g.mu.Lock()
	delete(g.points, id)
	g.mu.Unlock()
}

// withinRadius returns the set of indexed issue IDs whose point lies
// within radiusKm great-circle kilometers of the center.
func (g *geoIndex) withinRadius(lat, lon, radiusKm float64) map[primitive.ObjectID]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hits := make(map[primitive.ObjectID]bool)
	for id, p := range g.points {
		if engine.Haversine(lat, lon, p.lat, p.lon) <= radiusKm {
			hits[id] = true
		}
	}
	return hits
}
