package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	tr.events = append(tr.events, s)
	tr.mu.Unlock()
}

func (tr *trace) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

// blocking starts and waits for Stop, like a server loop.
func blocking(tr *trace, name string, started chan<- struct{}) Service {
	stop := make(chan struct{})
	var once sync.Once
	return &FuncService{
		StartFn: func(context.Context) error {
			tr.add("start " + name)
			started <- struct{}{}
			<-stop
			return nil
		},
		StopFn: func(context.Context) error {
			tr.add("stop " + name)
			once.Do(func() { close(stop) })
			return nil
		},
	}
}

func TestRun_StopsInReverseOrderOnCancel(t *testing.T) {
	tr := &trace{}
	l := New(zaptest.NewLogger(t), time.Second)
	started := make(chan struct{}, 2)
	l.Add("pool", Closer(func() error { tr.add("stop pool"); return nil }))
	l.Add("http", blocking(tr, "http", started))
	l.Add("consumer", blocking(tr, "consumer", started))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	<-started
	<-started
	cancel()
	require.NoError(t, <-done)

	ev := tr.list()
	assert.Equal(t, []string{"stop consumer", "stop http", "stop pool"}, ev[len(ev)-3:])
}

func TestRun_ServiceFailureShutsDown(t *testing.T) {
	tr := &trace{}
	l := New(zaptest.NewLogger(t), time.Second)
	started := make(chan struct{}, 1)
	l.Add("http", blocking(tr, "http", started))
	l.Add("broken", &FuncService{StartFn: func(context.Context) error { return errors.New("bind: address in use") }})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service broken")
	assert.Contains(t, tr.list(), "stop http")
}

func TestRun_StopErrorsAreNotFatal(t *testing.T) {
	tr := &trace{}
	l := New(zaptest.NewLogger(t), time.Second)
	l.Add("a", Closer(func() error { tr.add("stop a"); return nil }))
	l.Add("b", Closer(func() error { tr.add("stop b"); return errors.New("already closed") }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, []string{"stop b", "stop a"}, tr.list())
}
