package detection

import "fmt"

// wireDetection is the JSON shape used by the tracking service and by
// recorded replay files. Box is [center_x, center_y, width, height].
type wireDetection struct {
	TrackID    *int       `json:"track_id"`
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
}

// wireFrame is one frame of tracker output.
type wireFrame struct {
	Frame      int             `json:"frame,omitempty"`
	Detections []wireDetection `json:"detections"`
}

func (w wireDetection) detection() Detection {
	return Detection{
		TrackID:    w.TrackID,
		CenterX:    w.Box[0],
		CenterY:    w.Box[1],
		Width:      w.Box[2],
		Height:     w.Box[3],
		Confidence: w.Confidence,
		ClassID:    w.ClassID,
	}
}

func fromWire(in []wireDetection) ([]Detection, error) {
	out := make([]Detection, 0, len(in))
	for i, w := range in {
		if w.Box[2] < 0 || w.Box[3] < 0 {
			return nil, fmt.Errorf("detection %d: negative box size", i)
		}
		out = append(out, w.detection())
	}
	return out, nil
}

func toWire(d Detection) wireDetection {
	return wireDetection{
		TrackID:    d.TrackID,
		Box:        [4]float64{d.CenterX, d.CenterY, d.Width, d.Height},
		Confidence: d.Confidence,
		ClassID:    d.ClassID,
	}
}
