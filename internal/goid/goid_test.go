package goid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent_StableWithinGoroutine(t *testing.T) {
	a := Current()
	b := Current()
	assert.NotZero(t, a)
	assert.Equal(t, a, b)
}

func TestCurrent_DiffersAcrossGoroutines(t *testing.T) {
	mine := Current()
	other := make(chan int64)
	go func() { other <- Current() }()

	assert.NotEqual(t, mine, <-other)
}
