package logsvc

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

// ZapLogger writes structured entries through a zap.SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a development logger in debug mode and a JSON production logger otherwise.
func NewZapLogger(conf *core.Config) (*ZapLogger, error) {
	var cfg zap.Config
	if conf.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	sugar := zl.Sugar().With("app", conf.AppName, "env", conf.Env)
	if conf.Build != "" {
		sugar = sugar.With("build", conf.Build)
	}
	return &ZapLogger{sugar: sugar}, nil
}

// NewZapLoggerFrom wraps an existing zap logger.
func NewZapLoggerFrom(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: zl.Sugar()}
}

// Named returns a logger whose entries carry name. An empty name returns l unchanged.
func (l *ZapLogger) Named(name string) *ZapLogger {
	if name == "" {
		return l
	}
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

func (l ZapLogger) Sync() {
	_ = l.sugar.Sync()
}

// keysAndValues flattens the args of core.Logger into zap key-value pairs.
func keysAndValues(args []interface{}) []interface{} {
	kvs := make([]interface{}, 0, len(args)*2)
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			kvs = append(kvs, zap.Error(v))
		case user.User:
			kvs = append(kvs, "user_id", v.ID)
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kvs = append(kvs, k, v[k])
			}
		default:
			kvs = append(kvs, fmt.Sprintf("arg%d", i), v)
		}
	}
	return kvs
}

func (l ZapLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues(args)...)
}

func (l ZapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, keysAndValues(args)...)
}

func (l ZapLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues(args)...)
}

func (l ZapLogger) Error(msg string, args ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues(args)...)
}

func (l ZapLogger) Fatal(msg string, args ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues(args)...)
}

type nopLogger struct{}

// Nop discards every entry.
var Nop core.Logger = nopLogger{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
