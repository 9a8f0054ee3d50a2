// Package rlog is the logging seam for coordinator lifecycle and drop-path
// diagnostics. None of the cache's externally visible behavior depends on
// it; it exists purely so operators embedding the cache in a storage engine
// can see when the write pipeline is shedding load.
package rlog

import "github.com/golang/glog"

// Logger is the narrow interface blockcache depends on, so a caller can
// swap in their own structured logger instead of glog's global state.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
}

// Glog adapts the package-level glog functions to Logger. This is the
// default used when a Config doesn't supply one.
type Glog struct{}

func (Glog) Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func (Glog) Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }

// Discard is a Logger that drops everything, used in tests and benchmarks
// to avoid spamming glog's global output.
type Discard struct{}

func (Discard) Infof(format string, args ...interface{})    {}
func (Discard) Warningf(format string, args ...interface{}) {}
