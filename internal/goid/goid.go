// Package goid reports the numeric id of the calling goroutine.
//
// Thread affinity in rdsync is asserted, not assumed: a scheduler records the
// goroutine that owns it and every bind compares against it. The runtime does
// not export goroutine ids, so the id is parsed from the stack header.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Current returns the id of the calling goroutine, or 0 if it cannot be parsed.
func Current() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], prefix)

	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
