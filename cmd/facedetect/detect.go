package main

import (
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pipeline"
	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/pixel/cvmat"
	"github.com/dudu/facedetect/internal/ui"
)

type faceJSON struct {
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Confidence float64  `json:"confidence"`
	Landmarks  [][2]int `json:"landmarks"`
}

type fileJSON struct {
	File     string     `json:"file"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Scale    float64    `json:"scale"`
	Faces    []faceJSON `json:"faces"`
	DetectMS float64    `json:"detect_ms"`
	TotalMS  float64    `json:"total_ms"`
}

func toFaceJSON(faces []detector.Detection) []faceJSON {
	out := make([]faceJSON, 0, len(faces))
	for _, f := range faces {
		lms := make([][2]int, 0, len(f.Landmarks))
		for _, lm := range f.Landmarks {
			lms = append(lms, [2]int{lm.X, lm.Y})
		}
		out = append(out, faceJSON{
			X:          f.X,
			Y:          f.Y,
			Width:      f.Width,
			Height:     f.Height,
			Confidence: f.Confidence,
			Landmarks:  lms,
		})
	}
	return out
}

// decodeFile reads any format registered with package image
func decodeFile(path string) (pixel.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return pixel.Image{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return pixel.Image{}, errors.Wrapf(err, "decode %s", path)
	}
	return pixel.FromImage(img), nil
}

func (a *app) detect(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("detect needs at least one image")
	}
	annotateDir := c.String(flagAnnotate)
	if annotateDir != "" {
		if err := os.MkdirAll(annotateDir, 0o755); err != nil {
			return errors.Wrap(err, "create annotate dir")
		}
	}

	p, closeDetector, err := a.openPipeline()
	if err != nil {
		return err
	}

	var results []fileJSON
	for _, path := range c.Args().Slice() {
		res, err := a.detectFile(p, path, annotateDir)
		if err != nil {
			return multierr.Combine(err, closeDetector())
		}
		results = append(results, res)
	}
	if err := closeDetector(); err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func (a *app) detectFile(p *pipeline.Pipeline, path, annotateDir string) (fileJSON, error) {
	img, err := decodeFile(path)
	if err != nil {
		return fileJSON{}, err
	}

	res, err := p.Run(img)
	if err != nil {
		return fileJSON{}, errors.Wrap(err, path)
	}
	a.logger.Info("detected",
		zap.String("file", path),
		zap.Int("faces", len(res.Detections)),
		zap.Duration("total", res.Timing.Total))

	if annotateDir != "" {
		if err := annotate(img, res.Detections, filepath.Join(annotateDir, annotatedName(path))); err != nil {
			return fileJSON{}, err
		}
	}

	return fileJSON{
		File:     path,
		Width:    img.Width,
		Height:   img.Height,
		Scale:    float64(res.Scale),
		Faces:    toFaceJSON(res.Detections),
		DetectMS: float64(res.Timing.Detection.Microseconds()) / 1000,
		TotalMS:  float64(res.Timing.Total.Microseconds()) / 1000,
	}, nil
}

// annotatedName maps photo.webp to photo_faces.png
func annotatedName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_faces.png"
}

// annotate draws faces on a BGR copy of img and writes it to out.
func annotate(img pixel.Image, faces []detector.Detection, out string) error {
	bgr, err := pixel.Reorder(img, pixel.OrderBGR)
	if err != nil {
		return err
	}
	mat, err := cvmat.ToMat(bgr)
	if err != nil {
		return err
	}
	defer mat.Close()

	ui.DrawDetections(&mat, faces)
	if !gocv.IMWrite(out, mat) {
		return errors.Errorf("failed to write %s", out)
	}
	return nil
}
