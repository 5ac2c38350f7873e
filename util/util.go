package util

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Debug is the highest DPrintf level that is emitted.
var Debug uint64 = 1

var tracer atomic.Pointer[zap.SugaredLogger]

func init() {
	tracer.Store(zap.NewNop().Sugar())
}

// SetLogger routes DPrintf output to l at debug level.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	tracer.Store(l.WithOptions(zap.AddCallerSkip(1)).Sugar())
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= atomic.LoadUint64(&Debug) {
		tracer.Load().Debugf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
