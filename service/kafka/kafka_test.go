package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PPBridge/global/config"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:               []string{"127.0.0.1:9092"},
		GroupID:               "game-bridge",
		InboundTopic:          "game-assignments",
		OutboundTopic:         "game-assignments",
		Version:               "2.1.0",
		ProducerCompression:   "snappy",
		ConsumerInitialOffset: "oldest",
		ProducerRetries:       3,
		PartitionsPerTopic:    8,
		ReplicationFactor:     1,
	}
}

func TestBuildBaseConfigWith(t *testing.T) {
	cfg, err := BuildBaseConfigWith(testKafkaConfig())
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_1_0_0, cfg.Version)
	assert.Equal(t, sarama.CompressionSnappy, cfg.Producer.Compression)
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.Equal(t, 3, cfg.Producer.Retry.Max)
	assert.True(t, cfg.Producer.Return.Successes)
}

func TestBuildBaseConfigWith_BadVersion(t *testing.T) {
	kc := testKafkaConfig()
	kc.Version = "not-a-version"
	_, err := BuildBaseConfigWith(kc)
	assert.Error(t, err)
}

func TestProducer_PublishSendsPayload(t *testing.T) {
	cfg, err := BuildBaseConfigWith(testKafkaConfig())
	require.NoError(t, err)
	sp := mocks.NewSyncProducer(t, cfg)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"userId":"u1","game":"chess"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewProducerWith(sp, "game-assignments", zaptest.NewLogger(t))
	require.NoError(t, p.Publish(context.Background(), "u1", []byte(`{"userId":"u1","game":"chess"}`)))
	require.NoError(t, p.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(sp, "game-assignments", zaptest.NewLogger(t))
	err := p.Publish(context.Background(), "u1", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

type capturingProducer struct {
	sarama.SyncProducer
	msgs []*sarama.ProducerMessage
}

func (c *capturingProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	c.msgs = append(c.msgs, msg)
	return 0, int64(len(c.msgs)), nil
}

func TestProducer_KeyAndHeaders(t *testing.T) {
	cp := &capturingProducer{}
	p := NewProducerWith(cp, "out", zaptest.NewLogger(t))
	require.NoError(t, p.Publish(context.Background(), "u7", []byte("x")))
	require.NoError(t, p.Publish(context.Background(), "u7", []byte("y")))

	require.Len(t, cp.msgs, 2)
	key, err := cp.msgs[0].Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "u7", string(key))
	assert.Equal(t, "out", cp.msgs[0].Topic)

	require.Len(t, cp.msgs[0].Headers, 1)
	assert.Equal(t, HeaderEventID, string(cp.msgs[0].Headers[0].Key))
	assert.NotEqual(t, cp.msgs[0].Headers[0].Value, cp.msgs[1].Headers[0].Value)
}

func TestProducer_CancelledContext(t *testing.T) {
	cp := &capturingProducer{}
	p := NewProducerWith(cp, "out", zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "u1", []byte("x")), context.Canceled)
	assert.Empty(t, cp.msgs)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MemberID() string         { return "member-1" }
func (s *fakeSession) GenerationID() int32      { return 1 }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func claimOf(msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeClaim{ch: ch}
}

func TestGroupHandler_MarksEveryMessage(t *testing.T) {
	var got []string
	h := &groupHandler{
		log: zaptest.NewLogger(t),
		handle: func(_ context.Context, key, value []byte) error {
			got = append(got, string(value))
			if string(value) == "bad" {
				return errors.New("malformed")
			}
			return nil
		},
	}
	sess := &fakeSession{ctx: context.Background()}
	claim := claimOf(
		&sarama.ConsumerMessage{Offset: 1, Value: []byte("a")},
		&sarama.ConsumerMessage{Offset: 2, Value: []byte("bad")},
		&sarama.ConsumerMessage{Offset: 3, Value: []byte("b")},
	)

	require.NoError(t, h.Setup(sess))
	require.NoError(t, h.ConsumeClaim(sess, claim))
	require.NoError(t, h.Cleanup(sess))

	assert.Equal(t, []string{"a", "bad", "b"}, got)
	assert.Equal(t, []int64{1, 2, 3}, sess.marked)
}

// Two partitions claimed at once still reach handle one message at a time.
func TestGroupHandler_SerializesConcurrentClaims(t *testing.T) {
	var inFlight, overlaps, handled atomic.Int32
	h := &groupHandler{
		log: zaptest.NewLogger(t),
		handle: func(context.Context, []byte, []byte) error {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(200 * time.Microsecond)
			handled.Add(1)
			inFlight.Add(-1)
			return nil
		},
	}
	sess := &fakeSession{ctx: context.Background()}

	claims := make([]*fakeClaim, 2)
	for p := range claims {
		msgs := make([]*sarama.ConsumerMessage, 25)
		for i := range msgs {
			msgs[i] = &sarama.ConsumerMessage{Partition: int32(p), Offset: int64(i), Value: []byte(fmt.Sprintf("p%d-%d", p, i))}
		}
		claims[p] = claimOf(msgs...)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, c := range claims {
		wg.Add(1)
		go func(c *fakeClaim) {
			defer wg.Done()
			<-start
			assert.NoError(t, h.ConsumeClaim(sess, c))
		}(c)
	}
	close(start)
	wg.Wait()

	assert.Zero(t, overlaps.Load(), "handle ran concurrently")
	assert.EqualValues(t, 50, handled.Load())
	assert.Len(t, sess.marked, 50)
}

func TestGroupHandler_StopsOnSessionEnd(t *testing.T) {
	h := &groupHandler{log: zaptest.NewLogger(t), handle: func(context.Context, []byte, []byte) error { return nil }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage)}
	assert.NoError(t, h.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}

// fakeGroup fails its first Consume, then serves msgs once and blocks until
// the context ends.
type fakeGroup struct {
	sarama.ConsumerGroup
	msgs   []*sarama.ConsumerMessage
	errs   chan error
	mu     sync.Mutex
	calls  int
	closed bool
}

func newFakeGroup(msgs ...*sarama.ConsumerMessage) *fakeGroup {
	return &fakeGroup{msgs: msgs, errs: make(chan error)}
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if n == 1 {
		return errors.New("coordinator not available")
	}
	sess := &fakeSession{ctx: ctx}
	if n == 2 {
		_ = handler.Setup(sess)
		_ = handler.ConsumeClaim(sess, claimOf(g.msgs...))
		_ = handler.Cleanup(sess)
	}
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.errs)
	}
	return nil
}

func TestSource_RunRejoinsAndDelivers(t *testing.T) {
	group := newFakeGroup(
		&sarama.ConsumerMessage{Key: []byte("u1"), Value: []byte("one")},
		&sarama.ConsumerMessage{Key: []byte("u1"), Value: []byte("two")},
	)
	src := NewSourceWith(group, []string{"game-assignments"}, zaptest.NewLogger(t))
	src.backoff = 10 * time.Millisecond

	got := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(_ context.Context, key, value []byte) error {
			got <- string(key) + ":" + string(value)
			return nil
		})
	}()

	assert.Equal(t, "u1:one", <-got)
	assert.Equal(t, "u1:two", <-got)
	cancel()
	assert.NoError(t, <-done)
	assert.NoError(t, src.Close())
}

type fakeAdmin struct {
	sarama.ClusterAdmin
	existing map[string]int
	created  map[string]*sarama.TopicDetail
	expanded map[string]int32
	raceOn   string
}

func (a *fakeAdmin) DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error) {
	var out []*sarama.TopicMetadata
	for _, t := range topics {
		n, ok := a.existing[t]
		if !ok {
			out = append(out, &sarama.TopicMetadata{Name: t, Err: sarama.ErrUnknownTopicOrPartition})
			continue
		}
		out = append(out, &sarama.TopicMetadata{Name: t, Partitions: make([]*sarama.PartitionMetadata, n)})
	}
	return out, nil
}

func (a *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	if topic == a.raceOn {
		return &sarama.TopicError{Err: sarama.ErrTopicAlreadyExists}
	}
	a.created[topic] = detail
	return nil
}

func (a *fakeAdmin) CreatePartitions(topic string, count int32, _ [][]int32, _ bool) error {
	a.expanded[topic] = count
	return nil
}

func TestEnsureTopics(t *testing.T) {
	admin := &fakeAdmin{
		existing: map[string]int{"small": 2, "big": 16},
		created:  map[string]*sarama.TopicDetail{},
		expanded: map[string]int32{},
		raceOn:   "racy",
	}
	kc := testKafkaConfig()
	kc.ReplicationFactor = 3

	err := EnsureTopics(admin, kc, []string{"fresh", "small", "big", "racy"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Contains(t, admin.created, "fresh")
	assert.Equal(t, int32(8), admin.created["fresh"].NumPartitions)
	assert.Equal(t, "2", *admin.created["fresh"].ConfigEntries["min.insync.replicas"])
	assert.Equal(t, map[string]int32{"small": 8}, admin.expanded)
	assert.NotContains(t, admin.created, "racy")
}

func TestTopicsOfDeduplicates(t *testing.T) {
	kc := testKafkaConfig()
	assert.Equal(t, []string{"game-assignments"}, topicsOf(kc))
	kc.OutboundTopic = "client-events"
	assert.Equal(t, []string{"game-assignments", "client-events"}, topicsOf(kc))
}
