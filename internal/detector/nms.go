package detector

import "sort"

// NMS performs Non-Maximum Suppression, returning the kept detections
// ordered by descending confidence.
func NMS(faces []RawDetection, iouThreshold float64) []RawDetection {
	if len(faces) == 0 {
		return faces
	}

	sorted := make([]RawDetection, len(faces))
	copy(sorted, faces)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	keep := make([]bool, len(sorted))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(sorted); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if !keep[j] {
				continue
			}
			if IoU(sorted[i], sorted[j]) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]RawDetection, 0, len(sorted))
	for i, face := range sorted {
		if keep[i] {
			result = append(result, face)
		}
	}

	return result
}

// IoU calculates Intersection over Union of two boxes
func IoU(a, b RawDetection) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.Right(), b.Right())
	y2 := min(a.Bottom(), b.Bottom())

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}
