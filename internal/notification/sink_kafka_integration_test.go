//go:build integration

package notification_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"kycflow/internal/notification"
	id "kycflow/pkg/domain"
	"kycflow/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
}

func (s *KafkaSinkSuite) TestPublishesKeyedJSON() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "kycflow.test." + uuid.NewString()

	producer, err := kgo.NewClient(kgo.SeedBrokers(s.kafka.Brokers...))
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(notification.EnsureTopic(ctx, producer, topic, 1, 1))
	s.Require().NoError(notification.EnsureTopic(ctx, producer, topic, 1, 1), "idempotent")

	workflowID := id.WorkflowID(uuid.New())
	sink := notification.NewKafkaSink(producer, topic)
	s.Require().NoError(sink.Send(ctx, []notification.Notification{
		{WorkflowID: workflowID, Action: "approved", Status: "in_review", Version: 2},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(workflowID.String(), string(records[0].Key))

	var got notification.Notification
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal("approved", got.Action)
	s.Equal(int64(2), got.Version)
}
