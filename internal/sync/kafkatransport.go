package sync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"memcore/internal/logging"
)

// KafkaTransport carries sync messages over a Kafka topic. Every tab
// sharing a channel both writes to and reads from the same topic;
// own-message filtering downstream (Broadcaster) keeps a tab from
// reacting to its own posts.
type KafkaTransport struct {
	writer *kafka.Writer
	reader *kafka.Reader
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []chan Message
}

// NewKafkaTransport opens a writer and a reader (its own consumer group,
// so every tab sees every message) against topic on brokers.
func NewKafkaTransport(brokers []string, topic, groupID string) *KafkaTransport {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t := &KafkaTransport{writer: w, reader: r, cancel: cancel}

	go t.readLoop(ctx)
	return t
}

func (t *KafkaTransport) readLoop(ctx context.Context) {
	log := logging.For("sync.kafka")
	for {
		m, err := t.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("fetch sync message failed")
			continue
		}
		var msg Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			log.Warn().Err(err).Msg("decode sync message failed")
		} else {
			t.dispatch(msg)
		}
		if err := t.reader.CommitMessages(ctx, m); err != nil {
			log.Warn().Err(err).Msg("commit sync message failed")
		}
	}
}

func (t *KafkaTransport) dispatch(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (t *KafkaTransport) Post(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.writer.WriteMessages(context.Background(), kafka.Message{Value: data})
}

func (t *KafkaTransport) OnMessage(cb func(Message)) func() {
	ch := make(chan Message, 64)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			cb(msg)
		}
	}()
	return func() {
		t.mu.Lock()
		for i, s := range t.subs {
			if s == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
		close(ch)
		<-done
	}
}

func (t *KafkaTransport) Close() error {
	t.cancel()
	_ = t.reader.Close()
	return t.writer.Close()
}
