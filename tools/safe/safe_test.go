package safe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRunRecovers(t *testing.T) {
	log := zaptest.NewLogger(t)
	assert.True(t, Run(log, "fine", func() {}))
	assert.False(t, Run(log, "boom", func() { panic("boom") }))
}

func TestGoRecovers(t *testing.T) {
	done := make(chan struct{})
	Go(zaptest.NewLogger(t), "boom", func() {
		defer close(done)
		panic("boom")
	})
	<-done
}

func TestMustNotNil(t *testing.T) {
	var p *int
	assert.Panics(t, func() { MustNotNil(p, "p") })
	assert.Panics(t, func() { MustNotNil(nil, "nil") })
	assert.NotPanics(t, func() { MustNotNil(3, "int") })
	assert.NotPanics(t, func() { MustNotNil(new(int), "ptr") })
}
