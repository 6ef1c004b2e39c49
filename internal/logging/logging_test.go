package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"INFO":  zapcore.InfoLevel,
		"Warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}

	_, err := ParseLevel("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loud")
}

func TestNew(t *testing.T) {
	logger, err := New("facedetect", "warn", true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.Core().Enabled(zapcore.InfoLevel), test.ShouldBeFalse)
	test.That(t, logger.Core().Enabled(zapcore.WarnLevel), test.ShouldBeTrue)

	_, err = New("facedetect", "verbose", false)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debug("faces detected", zap.Int("faces", 2))

	entries := logs.FilterMessage("faces detected").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["faces"], test.ShouldEqual, int64(2))
}
