package logsvc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

func TestRollbarLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	l := NewRollbarLogger(NewZapLoggerFrom(zap.New(obs)), &core.Config{Env: "test"})
	t.Cleanup(func() { l.Enable(false) })

	// without a token reporting stays off, entries still reach next
	l.Enable(true)
	assert.False(t, l.hasToken)

	l.Debug("debug")
	l.Info("info", user.User{ID: "u1"})
	l.Warn("warn", map[string]interface{}{"k": "v"})
	l.Error("error", errors.New("boom"))
	l.Close()

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		assert.Equal(t, wantLevels[i], e.Level)
	}
	assert.Equal(t, "u1", entries[1].ContextMap()["user_id"])
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}
