package log_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/libs/log"
)

func TestNewDefaultLogger(t *testing.T) {
	testCases := map[string]struct {
		format    string
		level     string
		expectErr bool
	}{
		"invalid format": {
			format:    "foo",
			level:     log.LogLevelInfo,
			expectErr: true,
		},
		"invalid level": {
			format:    log.LogFormatJSON,
			level:     "foo",
			expectErr: true,
		},
		"valid format and level": {
			format:    log.LogFormatJSON,
			level:     log.LogLevelInfo,
			expectErr: false,
		},
		"plain alias": {
			format:    log.LogFormatText,
			level:     log.LogLevelWarn,
			expectErr: false,
		},
	}

	for name, tc := range testCases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			_, err := log.NewDefaultLogger(tc.format, tc.level)
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.NewLogger(log.LogFormatJSON, log.LogLevelInfo, &buf)
	require.NoError(t, err)

	logger.With("module", "state").Warn("rejected tx", "code", 3, "hash", log.Hexadecimal([]byte{0xab, 0x01}))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "state", entry["module"])
	require.Equal(t, "rejected tx", entry["message"])
	require.EqualValues(t, 3, entry["code"])
	require.Equal(t, "ab01", entry["hash"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.NewLogger(log.LogFormatJSON, log.LogLevelError, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Debug("dropped")
	require.Zero(t, buf.Len())

	logger.Error("kept")
	require.NotZero(t, buf.Len())
}

func TestOverrideWithNewLogger(t *testing.T) {
	logger := log.NewNopLogger()
	require.NoError(t, log.OverrideWithNewLogger(logger, log.LogFormatJSON, log.LogLevelDebug))
	require.Error(t, log.OverrideWithNewLogger(logger, "xml", log.LogLevelDebug))
}
