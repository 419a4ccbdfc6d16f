package common

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogOutput(&buf)
	output.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	t.Cleanup(func() {
		SetLogOutput(os.Stderr)
		output.now = time.Now
	})
	return &buf
}

func TestLoggerFormat(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("pool")

	l.Infof("endpoint %s is %s", "a:1", "up")
	l.Warningf("trailing newline\n")

	assert.Equal(t,
		"2024-05-01T12:30:00.000 INF [pool] endpoint a:1 is up\n"+
			"2024-05-01T12:30:00.000 WRN [pool] trailing newline\n",
		buf.String())
}

func TestLoggerLevel(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("rpc")

	l.Debugf("hidden by default")
	assert.Empty(t, buf.String())

	l.SetLevel(logger.DEBUG)
	l.Debugf("shown")
	assert.Contains(t, buf.String(), "DBG [rpc] shown")

	buf.Reset()
	l.SetLevel(logger.ERROR)
	l.Infof("hidden")
	l.Warningf("hidden")
	l.Errorf("boom")
	assert.Equal(t, "2024-05-01T12:30:00.000 ERR [rpc] boom\n", buf.String())
}

func TestLoggerPanicf(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("server")
	l.SetLevel(logger.ERROR)

	assert.PanicsWithValue(t, "broken invariant 7", func() {
		l.Panicf("broken invariant %d", 7)
	})
	assert.Contains(t, buf.String(), "CRT [server] broken invariant 7")
}
