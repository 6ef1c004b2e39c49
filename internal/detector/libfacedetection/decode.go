// Package libfacedetection detects faces with the CNN from
// github.com/ShiqiYu/libfacedetection through github.com/carck/libfacedetection-go.
// The detector itself needs the libfacedetection build tag; the result
// mapping below is plain Go.
package libfacedetection

import "github.com/dudu/facedetect/internal/detector"

// Name is the registry name of this backend
const Name = "libfacedetection"

// numLandmarks is the number of points facedetect_cnn reports per face:
// eyes, nose tip and mouth corners
const numLandmarks = 5

// face mirrors libfacedetection.Face: a box, a 0..100 confidence and five
// landmarks packed as x0, y0, x1, y1, ...
type face struct {
	X, Y, W, H int
	Confidence int
	Landmarks  [2 * numLandmarks]int
}

// decodeResults converts library faces into detections, in the order the
// library produced them.
func decodeResults(faces []face) []detector.RawDetection {
	out := make([]detector.RawDetection, 0, len(faces))
	for _, f := range faces {
		landmarks := make([]detector.Point, numLandmarks)
		for j := range landmarks {
			landmarks[j] = detector.Point{
				X: float64(f.Landmarks[2*j]),
				Y: float64(f.Landmarks[2*j+1]),
			}
		}

		out = append(out, detector.RawDetection{
			X:          float64(f.X),
			Y:          float64(f.Y),
			Width:      float64(f.W),
			Height:     float64(f.H),
			Confidence: float64(f.Confidence),
			Landmarks:  landmarks,
		})
	}
	return out
}
