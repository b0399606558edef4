//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"whitelist/internal/platform/config"
	audit "whitelist/pkg/platform/audit"
	"whitelist/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	broker string
}

func TestProducerIntegrationSuite(t *testing.T) {
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *ProducerIntegrationSuite) TestAppendProducesRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "whitelist.audit.test"
	producer, err := NewProducer(ctx, config.KafkaConfig{
		Brokers:           []string{s.broker},
		Topic:             topic,
		Partitions:        1,
		ReplicationFactor: 1,
	})
	s.Require().NoError(err)
	defer func() { _ = producer.Close(ctx) }()

	s.Require().NoError(producer.Append(ctx, audit.Event{
		ID:        "evt-1",
		Category:  audit.CategoryCompliance,
		Timestamp: time.Now(),
		Action:    string(audit.EventMemberAdmitted),
		Subject:   "alice",
		Count:     1,
		Capacity:  10,
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())

	var records []*kgo.Record
	fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	s.Require().NotEmpty(records)
	s.Equal("alice", string(records[0].Key))

	var got map[string]any
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal("member_admitted", got["action"])
}

func (s *ProducerIntegrationSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(s.broker))
	s.Require().NoError(err)
	defer client.Close()

	s.Require().NoError(EnsureTopic(ctx, client, "whitelist.audit.twice", 1, 1))
	s.Require().NoError(EnsureTopic(ctx, client, "whitelist.audit.twice", 1, 1))
}
