package redpanda

import (
	"context"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	record := &kgo.Record{Topic: TopicConsultationFinalized}
	injectTraceHeaders(ctx, record)

	if got := (headerCarrier{record}).Get("traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("traceparent = %q", got)
	}

	out := trace.SpanContextFromContext(extractTraceContext(context.Background(), record))
	if out.TraceID() != traceID || out.SpanID() != spanID || !out.IsRemote() {
		t.Errorf("extracted span context = %+v", out)
	}
}

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	record := &kgo.Record{}
	c := headerCarrier{record}
	c.Set("k", "a")
	c.Set("k", "b")
	if len(record.Headers) != 1 || c.Get("k") != "b" {
		t.Errorf("headers = %+v", record.Headers)
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Keys() = %v", keys)
	}
	if c.Get("missing") != "" {
		t.Error("Get(missing) not empty")
	}
}

func TestToMessage(t *testing.T) {
	record := &kgo.Record{
		Topic:     TopicConsultationFinalized,
		Partition: 2,
		Offset:    41,
		Key:       []byte("dr-1"),
		Value:     []byte(`{}`),
		Headers:   []kgo.RecordHeader{{Key: "traceparent", Value: []byte("x")}},
	}
	msg := toMessage(record)
	if msg.Partition != 2 || msg.Offset != 41 || string(msg.Key) != "dr-1" || msg.Headers["traceparent"] != "x" {
		t.Errorf("toMessage() = %+v", msg)
	}
}

func TestTopics(t *testing.T) {
	names := map[string]bool{}
	for _, topic := range Topics() {
		if topic.Partitions < 1 || topic.Replicas < 1 {
			t.Errorf("%s: invalid sizing %+v", topic.Name, topic)
		}
		names[topic.Name] = true
	}
	if !names[TopicConsultationFinalized] || !names[TopicDeadLetter] {
		t.Errorf("topics = %v", names)
	}
}

func TestTopicSpec_Configs(t *testing.T) {
	cfg := TopicSpec{Name: "x", Retention: 7 * 24 * time.Hour}.configs()
	if got := *cfg["retention.ms"]; got != "604800000" {
		t.Errorf("retention.ms = %s, want 604800000", got)
	}
	if got := *cfg["cleanup.policy"]; got != "delete" {
		t.Errorf("cleanup.policy = %s", got)
	}
}

func TestFlattenLag_Ordered(t *testing.T) {
	got := flattenLag(map[string]map[int32]int64{
		"b": {1: 5, 0: 2},
		"a": {3: 9},
	})
	want := []PartitionLag{{"a", 3, 9}, {"b", 0, 2}, {"b", 1, 5}}
	if len(got) != len(want) {
		t.Fatalf("flattenLag() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flattenLag()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if flattenLag(nil) != nil {
		t.Error("flattenLag(nil) should be nil")
	}
}
