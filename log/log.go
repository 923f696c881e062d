package log

import (
	"fmt"
	"os"

	"github.com/coldtoo/saveq/config"
	"github.com/coldtoo/saveq/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// InitLog builds the package-level zap logger from cfg. It must be
// called once before Debug/Info/Warn/Error/Panic/Fatal (or their
// formatted variants) are used.
func InitLog(cfg *config.ZapConfig) {
	if !utils.PathExist(cfg.Director) {
		fmt.Printf("create %v directory\n", cfg.Director)
		_ = os.Mkdir(cfg.Director, os.ModePerm)
	}

	log = zap.New(zapcore.NewTee(getZapCores(cfg)...))

	if cfg.ShowLine {
		log = log.WithOptions(zap.AddCaller())
	}
}

func getZapCores(cfg *config.ZapConfig) []zapcore.Core {
	cores := make([]zapcore.Core, 0, 7)
	for level := cfg.TransportLevel(); level <= zapcore.FatalLevel; level++ {
		writer, err := FileRotatelogs.GetWriteSyncer(level.String(), cfg)
		if err != nil {
			fmt.Printf("get write syncer failed level=%s err=%v\n", level, err)
			continue
		}
		cores = append(cores, zapcore.NewCore(cfg.GetEncoder(), writer, cfg.GetLevelPriority(level)))
	}
	return cores
}

func Debug(msg string) *Fields {
	if log == nil || !log.Core().Enabled(zapcore.DebugLevel) {
		return newFields(zapcore.DebugLevel, "", nil, true)
	}
	return newFields(zapcore.DebugLevel, msg, log, false)
}

func Info(msg string) *Fields {
	if log == nil || !log.Core().Enabled(zapcore.InfoLevel) {
		return newFields(zapcore.InfoLevel, "", nil, true)
	}
	return newFields(zapcore.InfoLevel, msg, log, false)
}

func Warn(msg string) *Fields {
	if log == nil || !log.Core().Enabled(zapcore.WarnLevel) {
		return newFields(zapcore.WarnLevel, "", nil, true)
	}
	return newFields(zapcore.WarnLevel, msg, log, false)
}

func Error(msg string) *Fields {
	if log == nil || !log.Core().Enabled(zapcore.ErrorLevel) {
		return newFields(zapcore.ErrorLevel, "", nil, true)
	}
	return newFields(zapcore.ErrorLevel, msg, log, false)
}

func Panic(msg string) *Fields {
	if log == nil || !log.Core().Enabled(zapcore.PanicLevel) {
		return newFields(zapcore.PanicLevel, "", nil, true)
	}
	return newFields(zapcore.PanicLevel, msg, log, false)
}

func Fatal(msg string) *Fields {
	if log == nil || !log.Core().Enabled(zapcore.FatalLevel) {
		return newFields(zapcore.FatalLevel, "", nil, true)
	}
	return newFields(zapcore.FatalLevel, msg, log, false)
}

// Debugf, Infof, Warnf and Errorf are the formatted counterparts of
// Debug, Info, Warn and Error, recording a single formatted message with
// no extra fields. The save queue itself logs through the Fields chain.
func Debugf(format string, args ...any) { Debug(fmt.Sprintf(format, args...)).Record() }
func Infof(format string, args ...any)  { Info(fmt.Sprintf(format, args...)).Record() }
func Warnf(format string, args ...any)  { Warn(fmt.Sprintf(format, args...)).Record() }
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)).Record() }

type Fields struct {
	level  zapcore.Level
	zap    *zap.Logger
	msg    string
	fields []zapcore.Field
	skip   bool
}

func newFields(level zapcore.Level, msg string, l *zap.Logger, skip bool) *Fields {
	return &Fields{level: level, msg: msg, zap: l, skip: skip}
}

func (f *Fields) Str(key string, val string) *Fields {
	if f.skip {
		return f
	}
	f.fields = append(f.fields, zapcore.Field{Key: key, Type: zapcore.StringType, String: val})
	return f
}

func (f *Fields) Strs(key string, val []string) *Fields {
	if f.skip {
		return f
	}
	f.fields = append(f.fields, zapcore.Field{Key: key, Type: zapcore.StringType, Interface: val})
	return f
}

func (f *Fields) Int(key string, val int) *Fields {
	if f.skip {
		return f
	}
	f.fields = append(f.fields, zapcore.Field{Key: key, Type: zapcore.Int32Type, Integer: int64(val)})
	return f
}

func (f *Fields) Uint64(key string, val uint64) *Fields {
	if f.skip {
		return f
	}
	f.fields = append(f.fields, zapcore.Field{Key: key, Type: zapcore.Uint64Type, Integer: int64(val)})
	return f
}

func (f *Fields) Err(key string, err error) *Fields {
	if err == nil || f.skip {
		return f
	}
	f.fields = append(f.fields, zapcore.Field{Key: key, Type: zapcore.ErrorType, Interface: err})
	return f
}

func (f *Fields) Bool(key string, val bool) *Fields {
	if f.skip {
		return f
	}
	f.fields = append(f.fields, zapcore.Field{Key: key, Type: zapcore.BoolType, Integer: boolToInt64(val)})
	return f
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (f *Fields) Record() {
	if f.skip {
		return
	}
	switch f.level {
	case zapcore.DebugLevel:
		f.zap.Debug(f.msg, f.fields...)
	case zapcore.InfoLevel:
		f.zap.Info(f.msg, f.fields...)
	case zapcore.WarnLevel:
		f.zap.Warn(f.msg, f.fields...)
	case zapcore.ErrorLevel:
		f.zap.Error(f.msg, f.fields...)
	case zapcore.PanicLevel:
		f.zap.Panic(f.msg, f.fields...)
	case zapcore.FatalLevel:
		f.zap.Fatal(f.msg, f.fields...)
	}
}
