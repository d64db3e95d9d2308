package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic receives workflow transition events.
const DefaultTopic = "kycflow.workflow.events"

// KafkaSink publishes notifications as JSON records keyed by workflow ID, so
// events of one workflow stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func NewKafkaSink(client *kgo.Client, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{client: client, topic: topic}
}

func (s *KafkaSink) Send(ctx context.Context, batch []Notification) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, n := range batch {
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(n.WorkflowID.String()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "action", Value: []byte(n.Action)},
			},
		})
	}
	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce notifications: %w", err)
	}
	return nil
}

// EnsureTopic creates the topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
