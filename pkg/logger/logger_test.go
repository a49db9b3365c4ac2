package logger_test

import (
	"context"
	"testing"

	"github.com/bfbechlin/appwrite-ctl/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	ylog.SetGlobalLogger(ylog.NewZap(zap.New(core)))
	return logs
}

func TestSink(t *testing.T) {
	logs := observe(t)

	ctx, err := logger.Inject(context.Background(), logger.LogData{RunID: "42", Command: "run"})
	require.NoError(t, err)

	sink := logger.NewSink(ctx, "v3")
	sink.Log("created %d rows", 5)
	sink.Error("plain message with %s verb kept")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "[v3] created 5 rows", entries[0].Message)

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "[v3] plain message with %s verb kept", entries[1].Message)
}

func TestNewSink_NilContext(t *testing.T) {
	logs := observe(t)

	//nolint:staticcheck
	sink := logger.NewSink(nil, "v1")
	assert.NotPanics(t, func() { sink.Log("hello") })
	assert.Equal(t, 1, logs.Len())
}
