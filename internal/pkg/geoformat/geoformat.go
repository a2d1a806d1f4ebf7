// Package geoformat encodes posts for GIS consumers: GeoJSON for map
// clients and EWKB for PostGIS columns.
package geoformat

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// SRID of every geometry produced here.
const SRID = 4326

// Point builds a WGS 84 point. GeoJSON and PostGIS order is lng, lat.
func Point(c domain.Coordinate) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat}).SetSRID(SRID)
}

// PostFeature converts a post into a GeoJSON feature.
func PostFeature(p domain.Post) *geojson.Feature {
	props := map[string]interface{}{
		"user_id":      p.OwnerID,
		"object_label": p.ObjectLabel,
		"location":     p.Location,
		"is_public":    p.IsPublic,
		"post_rarity":  p.Rarity,
		"date":         p.CreatedAt,
	}
	if p.ImageID != "" {
		props["img_id"] = p.ImageID
	}
	return &geojson.Feature{
		ID:         p.ID,
		Geometry:   Point(p.Coordinate()),
		Properties: props,
	}
}

// FeatureCollection encodes posts as a GeoJSON FeatureCollection, with a
// bounding box when there is at least one post.
func FeatureCollection(posts []domain.Post) ([]byte, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(posts))}
	if len(posts) > 0 {
		bounds := geom.NewBounds(geom.XY)
		for _, p := range posts {
			f := PostFeature(p)
			bounds.Extend(f.Geometry)
			fc.Features = append(fc.Features, f)
		}
		fc.BBox = bounds
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "geoformat: encode feature collection")
	}
	return data, nil
}

// EncodePoint returns the EWKB encoding of c for a PostGIS geometry column.
func EncodePoint(c domain.Coordinate) ([]byte, error) {
	data, err := ewkb.Marshal(Point(c), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geoformat: encode EWKB")
	}
	return data, nil
}

// DecodePoint reads an EWKB point back into a coordinate.
func DecodePoint(data []byte) (domain.Coordinate, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return domain.Coordinate{}, eris.Wrap(err, "geoformat: decode EWKB")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return domain.Coordinate{}, eris.Errorf("geoformat: expected point, got %T", g)
	}
	return domain.Coordinate{Lat: pt.Y(), Lng: pt.X()}, nil
}
