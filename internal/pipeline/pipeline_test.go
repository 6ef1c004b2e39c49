package pipeline

import (
	"image"
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/resize"
	"github.com/dudu/facedetect/internal/scale"
)

type fakeDetector struct {
	mu    sync.Mutex
	order pixel.ChannelOrder
	out   []detector.RawDetection
	err   error
	panic any

	calls   int
	width   int
	height  int
	order0  pixel.ChannelOrder
	first   []byte
	lastBuf *pixel.Buffer
}

func (f *fakeDetector) ChannelOrder() pixel.ChannelOrder { return f.order }

func (f *fakeDetector) Detect(buf *pixel.Buffer) ([]detector.RawDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.width, f.height = buf.Width(), buf.Height()
	f.order0 = buf.Order()
	f.first = append([]byte(nil), buf.Bytes()[:3]...)
	f.lastBuf = buf
	if f.panic != nil {
		panic(f.panic)
	}
	return f.out, f.err
}

func (f *fakeDetector) Close() error { return nil }

func solid(w, h int, order pixel.ChannelOrder, c [3]byte) pixel.Image {
	img := pixel.New(w, h, 3, order)
	for p := 0; p < w*h; p++ {
		copy(img.Pix[p*3:], c[:])
	}
	return img
}

func newPipeline(t *testing.T, cfg Config, det detector.Detector) *Pipeline {
	t.Helper()
	p, err := New(cfg, det, WithLogger(zaptest.NewLogger(t)))
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestDetectFacesMapsBoxToOriginal(t *testing.T) {
	det := &fakeDetector{
		order: pixel.OrderBGR,
		out:   []detector.RawDetection{{X: 100, Y: 50, Width: 80, Height: 80, Confidence: 97}},
	}
	p := newPipeline(t, DefaultConfig(), det)

	res, err := p.Run(solid(1600, 1200, pixel.OrderRGB, [3]byte{1, 2, 3}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, float64(res.Scale), test.ShouldEqual, 0.25)
	test.That(t, res.Working, test.ShouldResemble, image.Pt(400, 300))
	test.That(t, det.calls, test.ShouldEqual, 1)
	test.That(t, det.width, test.ShouldEqual, 400)
	test.That(t, det.height, test.ShouldEqual, 300)
	test.That(t, det.order0, test.ShouldEqual, pixel.OrderBGR)

	test.That(t, res.Detections, test.ShouldHaveLength, 1)
	d := res.Detections[0]
	test.That(t, d.X, test.ShouldEqual, 400)
	test.That(t, d.Y, test.ShouldEqual, 200)
	test.That(t, d.Width, test.ShouldEqual, 320)
	test.That(t, d.Height, test.ShouldEqual, 320)
	test.That(t, d.Confidence, test.ShouldEqual, 97.0)
	test.That(t, res.Timing.Total >= res.Timing.Detection, test.ShouldBeTrue)
}

func TestDetectFacesMapsLandmarks(t *testing.T) {
	det := &fakeDetector{
		order: pixel.OrderBGR,
		out: []detector.RawDetection{{
			X: 5, Y: 5, Width: 30, Height: 30,
			Landmarks: []detector.Point{{X: 10, Y: 20}},
		}},
	}
	p := newPipeline(t, DefaultConfig(), det)

	faces, err := p.DetectFaces(solid(800, 600, pixel.OrderRGB, [3]byte{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, faces, test.ShouldHaveLength, 1)
	test.That(t, faces[0].Landmarks, test.ShouldResemble, []image.Point{{X: 20, Y: 40}})
}

func TestDetectFacesReordersForDetector(t *testing.T) {
	src := solid(40, 20, pixel.OrderRGB, [3]byte{10, 100, 200})
	for _, tc := range []struct {
		order pixel.ChannelOrder
		want  []byte
	}{
		{pixel.OrderBGR, []byte{200, 100, 10}},
		{pixel.OrderRGB, []byte{10, 100, 200}},
	} {
		det := &fakeDetector{order: tc.order}
		p := newPipeline(t, Config{WorkingMaxDim: 20, Resampler: resize.Box}, det)
		_, err := p.DetectFaces(src)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, det.order0, test.ShouldEqual, tc.order)
		for i, want := range tc.want {
			test.That(t, math.Abs(float64(det.first[i])-float64(want)), test.ShouldBeLessThanOrEqualTo, 1.0)
		}
	}
}

func TestDetectFacesDropsAlpha(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p := newPipeline(t, DefaultConfig(), det)
	_, err := p.DetectFaces(pixel.New(50, 50, 4, pixel.OrderRGB))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.calls, test.ShouldEqual, 1)
}

func TestDetectFacesEmpty(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p := newPipeline(t, DefaultConfig(), det)
	faces, err := p.DetectFaces(solid(640, 480, pixel.OrderRGB, [3]byte{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, faces, test.ShouldNotBeNil)
	test.That(t, faces, test.ShouldBeEmpty)
}

func TestDetectFacesPreservesOrder(t *testing.T) {
	raw := []detector.RawDetection{
		{X: 1, Confidence: 10},
		{X: 2, Confidence: 90},
		{X: 3, Confidence: 50},
		{X: 4, Confidence: 99},
	}
	det := &fakeDetector{order: pixel.OrderBGR, out: raw}
	p := newPipeline(t, DefaultConfig(), det)

	faces, err := p.DetectFaces(solid(400, 400, pixel.OrderRGB, [3]byte{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, faces, test.ShouldHaveLength, len(raw))
	for i := range raw {
		test.That(t, faces[i].X, test.ShouldEqual, int(raw[i].X))
		test.That(t, faces[i].Confidence, test.ShouldEqual, raw[i].Confidence)
	}
}

func TestDetectFacesMinConfidence(t *testing.T) {
	raw := []detector.RawDetection{{X: 1, Confidence: 10}, {X: 2, Confidence: 90}, {X: 3, Confidence: 70}}
	det := &fakeDetector{order: pixel.OrderBGR, out: raw}
	cfg := DefaultConfig()
	cfg.MinConfidence = 70
	p := newPipeline(t, cfg, det)

	faces, err := p.DetectFaces(solid(400, 400, pixel.OrderRGB, [3]byte{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, faces, test.ShouldHaveLength, 2)
	test.That(t, faces[0].X, test.ShouldEqual, 2)
	test.That(t, faces[1].X, test.ShouldEqual, 3)
}

func TestDetectFacesInvalidImage(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p := newPipeline(t, DefaultConfig(), det)

	for _, img := range []pixel.Image{
		{Width: 0, Height: 100, Channels: 3},
		{Width: 100, Height: 0, Channels: 3},
		{Width: 10, Height: 10, Channels: 1, Pix: make([]byte, 100)},
		{Width: 10, Height: 10, Channels: 3, Pix: make([]byte, 10)},
		{},
	} {
		_, err := p.DetectFaces(img)
		test.That(t, errors.Is(err, ErrInvalidImage), test.ShouldBeTrue)
	}
	test.That(t, det.calls, test.ShouldEqual, 0)
}

func TestDetectFacesDegenerateScale(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p := newPipeline(t, DefaultConfig(), det)

	_, err := p.DetectFaces(solid(4000, 1, pixel.OrderRGB, [3]byte{}))
	test.That(t, errors.Is(err, scale.ErrDegenerateScale), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "compute scale")
	test.That(t, det.calls, test.ShouldEqual, 0)
}

func TestDetectFacesUnknownOrder(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p := newPipeline(t, DefaultConfig(), det)

	_, err := p.DetectFaces(solid(100, 100, pixel.OrderOther, [3]byte{}))
	test.That(t, errors.Is(err, pixel.ErrUnsupportedChannelOrder), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reorder channels")
	test.That(t, det.calls, test.ShouldEqual, 0)
}

func TestDetectFacesDetectorFailure(t *testing.T) {
	cause := errors.New("native detector crashed")
	det := &fakeDetector{
		order: pixel.OrderBGR,
		out:   []detector.RawDetection{{X: 1}},
		err:   cause,
	}
	p := newPipeline(t, DefaultConfig(), det)

	faces, err := p.DetectFaces(solid(100, 100, pixel.OrderRGB, [3]byte{}))
	test.That(t, faces, test.ShouldBeNil)
	test.That(t, errors.Is(err, ErrDetectionFailure), test.ShouldBeTrue)
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
	test.That(t, det.calls, test.ShouldEqual, 1)
	test.That(t, det.lastBuf.Released(), test.ShouldBeTrue)
}

func TestDetectFacesReleasesBuffer(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p := newPipeline(t, DefaultConfig(), det)
	_, err := p.DetectFaces(solid(100, 100, pixel.OrderRGB, [3]byte{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.lastBuf.Released(), test.ShouldBeTrue)
}

type badResizer struct{}

func (badResizer) Resize(img pixel.Image, width, height int) (pixel.Image, error) {
	return pixel.New(width+1, height, 3, img.Order), nil
}

func TestDetectFacesChecksResizedSize(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR}
	p, err := New(DefaultConfig(), det, WithResizer(badResizer{}))
	test.That(t, err, test.ShouldBeNil)

	_, err = p.DetectFaces(solid(100, 100, pixel.OrderRGB, [3]byte{}))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "resize")
	test.That(t, det.calls, test.ShouldEqual, 0)
}

func TestDetectFacesWorkingSizes(t *testing.T) {
	for _, dim := range []int{100, 320, 400, 640} {
		det := &fakeDetector{order: pixel.OrderBGR}
		p := newPipeline(t, Config{WorkingMaxDim: dim}, det)
		_, err := p.DetectFaces(solid(900, 300, pixel.OrderRGB, [3]byte{}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, det.width, test.ShouldEqual, dim)
		test.That(t, det.height, test.ShouldEqual, scale.Forward(300, scale.Factor(float64(dim)/900)))
	}
}

func TestDetectFacesConcurrent(t *testing.T) {
	det := &fakeDetector{
		order: pixel.OrderBGR,
		out:   []detector.RawDetection{{X: 10, Y: 10, Width: 20, Height: 20}},
	}
	p := newPipeline(t, DefaultConfig(), det)

	sizes := []int{200, 300, 500, 640, 800, 1000, 1333, 2000}
	got := make([][]detector.Detection, len(sizes))
	errs := make([]error, len(sizes))
	var wg sync.WaitGroup
	for i, size := range sizes {
		wg.Add(1)
		go func(i, size int) {
			defer wg.Done()
			got[i], errs[i] = p.DetectFaces(solid(size, size, pixel.OrderRGB, [3]byte{}))
		}(i, size)
	}
	wg.Wait()

	for i, size := range sizes {
		test.That(t, errs[i], test.ShouldBeNil)
		test.That(t, got[i], test.ShouldHaveLength, 1)
		s := scale.Factor(400 / float64(size))
		test.That(t, got[i][0].X, test.ShouldEqual, scale.Inverse(10, s))
	}
	test.That(t, det.calls, test.ShouldEqual, 8)
}

func TestRescaleDoesNotAlias(t *testing.T) {
	raw := detector.RawDetection{
		X: 10, Y: 10, Width: 5, Height: 5,
		Landmarks: []detector.Point{{X: 1, Y: 1}},
	}
	d := Rescale(raw, 0.5)
	d.Landmarks[0] = image.Pt(99, 99)
	test.That(t, raw.Landmarks[0], test.ShouldResemble, detector.Point{X: 1, Y: 1})
	test.That(t, d.X, test.ShouldEqual, 20)
}

func TestNewValidates(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(Config{WorkingMaxDim: 0}, &fakeDetector{})
	test.That(t, errors.Is(err, scale.ErrInvalidDimension), test.ShouldBeTrue)

	_, err = New(Config{WorkingMaxDim: 400, Resampler: "nearest"}, &fakeDetector{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDetectFacesDetectorPanic(t *testing.T) {
	det := &fakeDetector{order: pixel.OrderBGR, panic: "index out of range"}
	p := newPipeline(t, DefaultConfig(), det)

	faces, err := p.DetectFaces(solid(100, 100, pixel.OrderRGB, [3]byte{}))
	test.That(t, faces, test.ShouldBeNil)
	test.That(t, errors.Is(err, ErrDetectionFailure), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "index out of range")
	test.That(t, det.calls, test.ShouldEqual, 1)
	test.That(t, det.lastBuf.Released(), test.ShouldBeTrue)
}

type unscoredDetector struct {
	*fakeDetector
}

func (unscoredDetector) Scored() bool { return false }

func TestNewRejectsMinConfidenceForUnscoredDetector(t *testing.T) {
	det := unscoredDetector{&fakeDetector{order: pixel.OrderBGR}}
	cfg := DefaultConfig()
	cfg.MinConfidence = 50

	_, err := New(cfg, det)
	test.That(t, errors.Is(err, ErrUnscoredDetector), test.ShouldBeTrue)

	cfg.MinConfidence = 0
	_, err = New(cfg, det)
	test.That(t, err, test.ShouldBeNil)

	// detectors without Scored are treated as scored
	cfg.MinConfidence = 50
	_, err = New(cfg, &fakeDetector{order: pixel.OrderBGR})
	test.That(t, err, test.ShouldBeNil)
}
