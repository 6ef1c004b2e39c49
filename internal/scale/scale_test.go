package scale

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestComputeUsesLongerSide(t *testing.T) {
	s, err := Compute(1600, 1200, 400)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, float64(s), test.ShouldEqual, 0.25)

	s, err = Compute(300, 900, 450)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, float64(s), test.ShouldEqual, 0.5)

	s, err = Compute(200, 200, 400)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, float64(s), test.ShouldEqual, 2.0)
}

func TestComputeProperty(t *testing.T) {
	for w := 1; w < 2000; w += 37 {
		for h := 1; h < 2000; h += 41 {
			s, err := Compute(w, h, 400)
			test.That(t, err, test.ShouldBeNil)
			if w >= h {
				test.That(t, float64(s), test.ShouldEqual, 400/float64(w))
			} else {
				test.That(t, float64(s), test.ShouldEqual, 400/float64(h))
			}
		}
	}
}

func TestComputeInvalid(t *testing.T) {
	for _, tc := range [][3]int{{0, 10, 400}, {10, 0, 400}, {-1, 5, 400}, {10, 10, 0}} {
		_, err := Compute(tc[0], tc[1], tc[2])
		test.That(t, errors.Is(err, ErrInvalidDimension), test.ShouldBeTrue)
	}
}

func TestInverseRoundsHalfAwayFromZero(t *testing.T) {
	test.That(t, Inverse(100, 0.25), test.ShouldEqual, 400)
	test.That(t, Inverse(1.25, 0.5), test.ShouldEqual, 3)
	test.That(t, Inverse(-1.25, 0.5), test.ShouldEqual, -3)
	test.That(t, Inverse(1.2, 0.5), test.ShouldEqual, 2)
}

func TestForward(t *testing.T) {
	test.That(t, Forward(1600, 0.25), test.ShouldEqual, 400)
	test.That(t, Forward(1201, 0.25), test.ShouldEqual, 300)
	test.That(t, Forward(1202, 0.25), test.ShouldEqual, 301)
}

func TestRoundTripWithinOneUnit(t *testing.T) {
	for _, s := range []Factor{0.1, 0.25, 0.333, 0.5, 0.77, 1} {
		for x := 0; x <= 400; x++ {
			back := Forward(Inverse(float64(x), s), s)
			test.That(t, math.Abs(float64(back-x)), test.ShouldBeLessThanOrEqualTo, 1.0)
		}
	}
	for _, s := range []Factor{0.5, 0.8, 1, 2} {
		for x := 0; x <= 1000; x++ {
			back := Inverse(float64(Forward(x, s)), s)
			test.That(t, math.Abs(float64(back-x)), test.ShouldBeLessThanOrEqualTo, 1.0)
		}
	}
}

func TestWorking(t *testing.T) {
	w, h, err := Working(1600, 1200, 0.25)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w, test.ShouldEqual, 400)
	test.That(t, h, test.ShouldEqual, 300)

	s, err := Compute(4000, 1, 400)
	test.That(t, err, test.ShouldBeNil)
	_, _, err = Working(4000, 1, s)
	test.That(t, errors.Is(err, ErrDegenerateScale), test.ShouldBeTrue)

	_, _, err = Working(10, 10, 0)
	test.That(t, errors.Is(err, ErrDegenerateScale), test.ShouldBeTrue)
}
