package detector

import "image"

// Point represents a 2D point in working-image pixels
type Point struct {
	X, Y float64
}

// RawDetection is one face as reported by a backend, in the coordinates of
// the working image the backend was given. X and Y are the top-left corner.
type RawDetection struct {
	X, Y          float64
	Width, Height float64
	// Confidence uses the backend's own scale (libfacedetection 0-100, scrfd 0-1)
	Confidence float64
	Landmarks  []Point
}

// Right returns the x coordinate of the right edge
func (r RawDetection) Right() float64 {
	return r.X + r.Width
}

// Bottom returns the y coordinate of the bottom edge
func (r RawDetection) Bottom() float64 {
	return r.Y + r.Height
}

// Area returns box area
func (r RawDetection) Area() float64 {
	return r.Width * r.Height
}

// Detection is a face in the caller's original image coordinates.
type Detection struct {
	X, Y          int
	Width, Height int
	Confidence    float64
	Landmarks     []image.Point
}

// Box returns the bounding box as a rectangle
func (d Detection) Box() image.Rectangle {
	return image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
}
