// Package scrfd implements the SCRFD face detector on ONNX Runtime.
package scrfd

import (
	"image"
	"math"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/inference"
	"github.com/dudu/facedetect/internal/pixel"
)

// Name is the registry name of this backend
const Name = "scrfd"

// Defaults used when Options leave a field zero.
const (
	DefaultInputSize     = 640
	DefaultConfThreshold = 0.5
	DefaultNMSThreshold  = 0.4
)

func init() {
	detector.Register(Name, func(opts detector.Options) (detector.Detector, error) {
		if err := inference.Initialize(opts.RuntimeLibrary); err != nil {
			return nil, err
		}
		det, err := New(opts)
		if err != nil {
			return nil, multierr.Combine(err, inference.Shutdown())
		}
		det.ownsRuntime = true
		return det, nil
	})
}

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float64
	featureStrides []int
	numAnchors     int
	logger         *zap.Logger
	ownsRuntime    bool
}

// New creates a SCRFD detector. The ONNX Runtime environment must already be initialized.
func New(opts detector.Options) (*SCRFD, error) {
	if opts.ModelPath == "" {
		return nil, errors.New("scrfd needs a model path")
	}
	if opts.InputSize == 0 {
		opts.InputSize = DefaultInputSize
	}
	if opts.InputSize%32 != 0 {
		return nil, errors.Errorf("scrfd input size %d is not a multiple of 32", opts.InputSize)
	}
	if opts.ConfThreshold == 0 {
		opts.ConfThreshold = DefaultConfThreshold
	}
	if opts.NMSThreshold == 0 {
		opts.NMSThreshold = DefaultNMSThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// SCRFD has 1 input and 9 outputs (3 levels × 3 outputs each: score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(opts.ModelPath, inputNames, outputNames, opts.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SCRFD session")
	}

	return &SCRFD{
		session:        session,
		inputSize:      opts.InputSize,
		confThreshold:  float32(opts.ConfThreshold),
		nmsThreshold:   opts.NMSThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
		logger:         opts.Logger,
	}, nil
}

// ChannelOrder reports that the model was trained on RGB input
func (s *SCRFD) ChannelOrder() pixel.ChannelOrder {
	return pixel.OrderRGB
}

// Detect finds faces in the buffer and reports them in buffer pixels.
func (s *SCRFD) Detect(buf *pixel.Buffer) ([]detector.RawDetection, error) {
	if buf.Order() != pixel.OrderRGB || buf.Channels() != 3 {
		return nil, errors.Errorf("scrfd needs a 3-channel RGB buffer, got %d-channel %s", buf.Channels(), buf.Order())
	}

	// The buffer is pinned for the whole call, so the Mat may alias it
	src, err := gocv.NewMatFromBytes(buf.Height(), buf.Width(), gocv.MatTypeCV8UC3, buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap buffer")
	}
	defer src.Close()

	inputBlob, scale := s.preprocess(src)
	defer inputBlob.Close()

	blobData, err := inputBlob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read input blob")
	}
	floatData := make([]float32, len(blobData))
	copy(floatData, blobData)

	inputTensor, err := inference.CreateTensor([]int64{1, 3, int64(s.inputSize), int64(s.inputSize)}, floatData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 9)
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	for i, stride := range s.featureStrides {
		fm := s.inputSize / stride
		numAnchors := int64(fm * fm * s.numAnchors)

		for j, width := range []int64{1, 4, 10} { // score, bbox, keypoints
			t, err := inference.CreateEmptyTensor[float32]([]int64{numAnchors, width})
			if err != nil {
				return nil, errors.Wrap(err, "failed to create output tensor")
			}
			outputs[i+3*j] = t
			outputTensors[i+3*j] = t
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, errors.Wrapf(err, "inference failed on %s", s.session.ModelPath())
	}

	faces := s.postprocess(outputTensors, scale, buf.Width(), buf.Height())
	kept := detector.NMS(faces, s.nmsThreshold)
	s.logger.Debug("scrfd decoded", zap.Int("candidates", len(faces)), zap.Int("kept", len(kept)))
	return kept, nil
}

// preprocess letterboxes the image into the square model input and
// normalizes it to an NCHW float blob. The returned scale maps buffer
// pixels to model pixels.
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))

	newWidth := min(int(math.Round(float64(float32(width)*scale))), s.inputSize)
	newHeight := min(int(math.Round(float64(float32(height)*scale))), s.inputSize)

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	// Create padded image (letterbox, top-left aligned)
	padded := gocv.NewMatWithSize(s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	padded.SetTo(gocv.NewScalar(0, 0, 0, 0))

	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()
	resized.Close()

	// Convert to float and normalize: (x - 127.5) / 128.0
	blob := gocv.NewMat()
	padded.ConvertTo(&blob, gocv.MatTypeCV32FC3)
	padded.Close()

	gocv.AddWeighted(blob, 1.0/128.0, blob, 0, -127.5/128.0, &blob)

	// Convert HWC to CHW (blob format)
	blobNCHW := gocv.BlobFromImage(blob, 1.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	blob.Close()

	return blobNCHW, scale
}

// postprocess decodes model outputs into buffer-pixel detections
func (s *SCRFD) postprocess(outputs []*ort.Tensor[float32], scale float32, width, height int) []detector.RawDetection {
	var faces []detector.RawDetection

	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride

		scoreData := outputs[level].GetData()
		bboxData := outputs[level+3].GetData()
		kpsData := outputs[level+6].GetData()

		anchorIdx := 0
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := scoreData[anchorIdx]
					if score > s.confThreshold {
						faces = append(faces, decode(anchorIdx, x, y, stride, score, bboxData, kpsData, scale, width, height))
					}
					anchorIdx++
				}
			}
		}
	}

	return faces
}

// decode turns one anchor's distance regressions into a detection
func decode(anchorIdx, x, y, stride int, score float32, bboxData, kpsData []float32, scale float32, width, height int) detector.RawDetection {
	st := float32(stride)
	cx := float32(x) * st
	cy := float32(y) * st

	bboxIdx := anchorIdx * 4
	x1 := clamp((cx-bboxData[bboxIdx]*st)/scale, 0, float32(width))
	y1 := clamp((cy-bboxData[bboxIdx+1]*st)/scale, 0, float32(height))
	x2 := clamp((cx+bboxData[bboxIdx+2]*st)/scale, 0, float32(width))
	y2 := clamp((cy+bboxData[bboxIdx+3]*st)/scale, 0, float32(height))

	kpsIdx := anchorIdx * 10
	landmarks := make([]detector.Point, 5)
	for k := range landmarks {
		landmarks[k] = detector.Point{
			X: float64((cx + kpsData[kpsIdx+2*k]*st) / scale),
			Y: float64((cy + kpsData[kpsIdx+2*k+1]*st) / scale),
		}
	}

	return detector.RawDetection{
		X:          float64(x1),
		Y:          float64(y1),
		Width:      float64(x2 - x1),
		Height:     float64(y2 - y1),
		Confidence: float64(score),
		Landmarks:  landmarks,
	}
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	err := s.session.Destroy()
	if s.ownsRuntime {
		s.ownsRuntime = false
		err = multierr.Combine(err, inference.Shutdown())
	}
	return err
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
