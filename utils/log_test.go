package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestParseLevel(t *testing.T) {
	test.That(t, ParseLevel("trace"), test.ShouldEqual, TRACE)
	test.That(t, ParseLevel(" Debug "), test.ShouldEqual, DEBUG)
	test.That(t, ParseLevel("warning"), test.ShouldEqual, WARN)
	test.That(t, ParseLevel("critical"), test.ShouldEqual, CRITICAL)
	test.That(t, ParseLevel("loud"), test.ShouldEqual, INFO)
	test.That(t, LogLevel(42).String(), test.ShouldEqual, "UNKNOWN")
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, WARN)

	log.Debug("hidden %d", 1)
	log.Info("hidden")
	log.Warn("feedback lost for %d ms", 12)
	log.Error("transmit failed")

	out := buf.String()
	test.That(t, strings.Contains(out, "hidden"), test.ShouldBeFalse)
	test.That(t, strings.Contains(out, "[WARN] feedback lost for 12 ms"), test.ShouldBeTrue)
	test.That(t, strings.Contains(out, "[ERROR] transmit failed"), test.ShouldBeTrue)
	test.That(t, strings.Count(out, "\n"), test.ShouldEqual, 2)

	test.That(t, log.Enabled(DEBUG), test.ShouldBeFalse)
	log.SetMinLevel(TRACE)
	test.That(t, log.Enabled(DEBUG), test.ShouldBeTrue)
	test.That(t, log.Close(), test.ShouldBeNil)
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := NewFileLogger(path, INFO, false)
	test.That(t, err, test.ShouldBeNil)
	log.Info("started scenario %s", "hover")
	log.Debug("dropped")
	test.That(t, log.Close(), test.ShouldBeNil)

	// writes after close are discarded
	log.Critical("after close")

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Contains(string(data), "[INFO] started scenario hover"), test.ShouldBeTrue)
	test.That(t, strings.Contains(string(data), "dropped"), test.ShouldBeFalse)
	test.That(t, strings.Contains(string(data), "after close"), test.ShouldBeFalse)
}
