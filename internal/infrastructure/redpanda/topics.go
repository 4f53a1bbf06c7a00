// Package redpanda carries consultation events over Kafka-compatible
// streaming with franz-go.
package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	TopicConsultationFinalized = "consultation.finalized"
	TopicDeadLetter            = "dead.letter"
)

// TopicSpec describes a topic the services publish to.
type TopicSpec struct {
	Name       string
	Partitions int32
	Replicas   int16
	Retention  time.Duration
}

// Topics lists every topic the services need. Finalized consultations are
// keyed by clinician, so one clinician's events stay ordered in a partition.
func Topics() []TopicSpec {
	return []TopicSpec{
		{Name: TopicConsultationFinalized, Partitions: 6, Replicas: 1, Retention: 7 * 24 * time.Hour},
		{Name: TopicDeadLetter, Partitions: 1, Replicas: 1, Retention: 30 * 24 * time.Hour},
	}
}

func (t TopicSpec) configs() map[string]*string {
	retention := strconv.FormatInt(t.Retention.Milliseconds(), 10)
	policy, compression := "delete", "lz4"
	return map[string]*string{
		"retention.ms":     &retention,
		"cleanup.policy":   &policy,
		"compression.type": &compression,
	}
}

// PartitionLag is the committed-offset lag of one partition for a group.
type PartitionLag struct {
	Topic     string
	Partition int32
	Lag       int64
}

// Admin wraps kadm for topic setup and lag inspection.
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Admin{client: kadm.NewClient(cl), logger: logger}, nil
}

// EnsureTopics creates any topic from Topics that does not exist yet and
// returns the names it created.
func (a *Admin) EnsureTopics(ctx context.Context) ([]string, error) {
	var created []string
	for _, topic := range Topics() {
		resp, err := a.client.CreateTopic(ctx, topic.Partitions, topic.Replicas, topic.configs(), topic.Name)
		switch {
		case errors.Is(err, kerr.TopicAlreadyExists), errors.Is(resp.Err, kerr.TopicAlreadyExists):
			continue
		case err != nil:
			return created, fmt.Errorf("failed to create topic %s: %w", topic.Name, err)
		case resp.Err != nil:
			return created, fmt.Errorf("failed to create topic %s: %w", topic.Name, resp.Err)
		}
		a.logger.Info("topic created", zap.String("topic", topic.Name), zap.Int32("partitions", topic.Partitions))
		created = append(created, topic.Name)
	}
	return created, nil
}

func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := a.client.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	names := topics.Names()
	sort.Strings(names)
	return names, nil
}

// GroupLag reports the lag of every partition a consumer group has
// committed to, ordered by topic then partition.
func (a *Admin) GroupLag(ctx context.Context, groupID string) ([]PartitionLag, error) {
	described, err := a.client.Lag(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer group lag: %w", err)
	}
	lag := make(map[string]map[int32]int64)
	described.Each(func(l kadm.DescribedGroupLag) {
		for topic, partitions := range l.Lag {
			if lag[topic] == nil {
				lag[topic] = make(map[int32]int64)
			}
			for p, m := range partitions {
				lag[topic][p] = m.Lag
			}
		}
	})
	return flattenLag(lag), nil
}

func flattenLag(lag map[string]map[int32]int64) []PartitionLag {
	var out []PartitionLag
	for topic, partitions := range lag {
		for p, l := range partitions {
			out = append(out, PartitionLag{Topic: topic, Partition: p, Lag: l})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Partition < out[j].Partition
	})
	return out
}

func (a *Admin) Close() {
	a.client.Close()
}
