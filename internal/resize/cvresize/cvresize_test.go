package cvresize

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/resize"
)

func TestRegistered(t *testing.T) {
	test.That(t, resize.Names(), test.ShouldContain, Area)
	r, err := resize.New(Area)
	test.That(t, err, test.ShouldBeNil)
	_, ok := r.(OpenCV)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestAreaKeepsSizeAndOrder(t *testing.T) {
	src := pixel.New(160, 120, 3, pixel.OrderRGB)
	for p := 0; p < 160*120; p++ {
		copy(src.Pix[p*3:], []byte{10, 120, 240})
	}

	r, err := resize.New(Area)
	test.That(t, err, test.ShouldBeNil)
	out, err := r.Resize(src, 40, 30)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Width, test.ShouldEqual, 40)
	test.That(t, out.Height, test.ShouldEqual, 30)
	test.That(t, out.Order, test.ShouldEqual, pixel.OrderRGB)
	for c, want := range []byte{10, 120, 240} {
		test.That(t, math.Abs(float64(out.Pix[c])-float64(want)), test.ShouldBeLessThanOrEqualTo, 1.0)
	}

	_, err = r.Resize(src, 0, 30)
	test.That(t, err, test.ShouldNotBeNil)
}
