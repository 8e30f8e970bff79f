package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/knot/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger returns a debug level logger writing uncoloured output to a buffer.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New()
	lg.SetOutput(buf)
	lg.SetLevel(slog.LevelDebug)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name       string
		log        func(*logger.Logger)
		goldenName string
	}{
		{
			name:       "debug",
			log:        func(l *logger.Logger) { l.Debug("starting check", "revision", 3) },
			goldenName: "debug_attrs",
		},
		{
			name:       "info",
			log:        func(l *logger.Logger) { l.Info("some message") },
			goldenName: "info_basic",
		},
		{
			name:       "info with attributes",
			log:        func(l *logger.Logger) { l.Info("watching directory", "path", "/ws", "directories", 2) },
			goldenName: "info_attrs",
		},
		{
			name:       "warn",
			log:        func(l *logger.Logger) { l.Warn("ignoring extra search path that is not a directory", "path", "/ws/missing") },
			goldenName: "warn_attrs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			tt.log(lg)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		goldenName string
	}{
		{
			name:       "simple error",
			err:        os.ErrPermission,
			goldenName: "error_simple",
		},
		{
			name: "zerr chain",
			err: zerr.Wrap(
				zerr.Wrap(
					errors.New("database connection failed"),
					"failed to load user data",
				),
				"failed to process request",
			),
			goldenName: "error_chain",
		},
		{
			name: "metadata",
			err: zerr.With(
				zerr.Wrap(errors.New("no such file"), "failed to read configuration file"),
				"path", "/ws/knot.yaml",
			),
			goldenName: "error_metadata",
		},
		{
			name:       "metadata on an empty wrapper",
			err:        zerr.With(errors.Join(errors.New("first"), errors.New("second")), "path", "/a"),
			goldenName: "error_empty_wrapper",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			lg.Error(tt.err)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_ErrorNil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_Verbosity(t *testing.T) {
	tests := []struct {
		count     int
		wantInfo  bool
		wantDebug bool
	}{
		{count: 0, wantInfo: false, wantDebug: false},
		{count: 1, wantInfo: true, wantDebug: false},
		{count: 2, wantInfo: true, wantDebug: true},
		{count: 3, wantInfo: true, wantDebug: true},
	}

	for _, tt := range tests {
		lg, buf := newTestLogger(t)
		lg.SetVerbosity(tt.count)

		lg.Info("info")
		assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info")), "count %d", tt.count)

		buf.Reset()
		lg.Debug("debug")
		assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug")), "count %d", tt.count)

		buf.Reset()
		lg.Warn("warn")
		assert.Contains(t, buf.String(), "warn", "warnings are always written")
	}
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Error(zerr.With(zerr.Wrap(errors.New("boom"), "check failed"), "revision", 4))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "check failed: boom", record["msg"])
	assert.InDelta(t, 4, record["revision"], 0)

	buf.Reset()
	lg.Info("watching directory", "path", "/ws")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "/ws", record["path"])
}

func TestLogger_SetOutputKeepsJSON(t *testing.T) {
	lg, _ := newTestLogger(t)
	lg.SetJSON(true)

	buf := &bytes.Buffer{}
	lg.SetOutput(buf)
	lg.Warn("still json")

	assert.True(t, json.Valid(buf.Bytes()))
}
