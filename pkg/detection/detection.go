// Package detection is the boundary to the external person detector and
// tracker. Detection, feature extraction and track association all happen
// behind PersonTracker; this package only moves their output around.
package detection

import (
	"context"
	"image"

	"github.com/teslashibe/tablewatch/pkg/occupancy"
)

// ClassPerson is the COCO class id for people.
const ClassPerson = 0

// Detection is one tracked object in a frame, in pixel coordinates.
type Detection struct {
	TrackID    *int    // Persistent id from the tracker; nil when the tracker lost it
	CenterX    float64 // Box center
	CenterY    float64
	Width      float64
	Height     float64
	Confidence float64 // 0-1
	ClassID    int     // COCO class id
}

// Center returns the center point of the detection.
func (d Detection) Center() (x, y float64) {
	return d.CenterX, d.CenterY
}

// Area returns the area of the bounding box.
func (d Detection) Area() float64 {
	return d.Width * d.Height
}

// Box returns the integer corner-format bounding box.
func (d Detection) Box() image.Rectangle {
	return image.Rect(
		int(d.CenterX-d.Width/2),
		int(d.CenterY-d.Height/2),
		int(d.CenterX+d.Width/2),
		int(d.CenterY+d.Height/2),
	)
}

// Observation converts the detection for the occupancy tracker.
// It returns false when the detection carries no track id.
func (d Detection) Observation() (occupancy.Observation, bool) {
	if d.TrackID == nil {
		return occupancy.Observation{}, false
	}
	return occupancy.Observation{
		TrackID:    *d.TrackID,
		Centroid:   occupancy.Point{X: d.CenterX, Y: d.CenterY},
		Confidence: d.Confidence,
	}, true
}

// ToObservations keeps tracked detections of classID, in input order.
// Confidence filtering is left to the occupancy tracker.
func ToObservations(dets []Detection, classID int) []occupancy.Observation {
	out := make([]occupancy.Observation, 0, len(dets))
	for _, d := range dets {
		if d.ClassID != classID {
			continue
		}
		if o, ok := d.Observation(); ok {
			out = append(out, o)
		}
	}
	return out
}

// PersonTracker detects and tracks people across frames.
// Implementations keep their association state between calls, so frames
// must be passed in order.
type PersonTracker interface {
	// Track returns the detections for one JPEG-encoded frame.
	Track(ctx context.Context, jpeg []byte) ([]Detection, error)

	// Close releases resources.
	Close() error
}

// IntPtr returns a pointer to id, for building detections by hand.
func IntPtr(id int) *int {
	return &id
}
