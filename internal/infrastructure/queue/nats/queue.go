package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/resilience"
)

const queueGroup = "ingest-workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("legal-rag-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Name() string { return "nats" }

// Health is the worse of the connection state and the publish breaker.
func (q *Queue) Health(context.Context) domain.HealthStatus {
	if q.conn == nil {
		return domain.HealthUnreachable
	}
	var conn domain.HealthStatus
	switch q.conn.Status() {
	case nats.CONNECTED:
		conn = domain.HealthHealthy
	case nats.RECONNECTING, nats.CONNECTING, nats.DRAINING_PUBS, nats.DRAINING_SUBS:
		conn = domain.HealthDegraded
	default:
		return domain.HealthUnreachable
	}
	if q.executor == nil || conn != domain.HealthHealthy {
		return conn
	}
	return q.executor.Health(opPublish)
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, event domain.IngestEvent) error {
	data, err := encodeEvent(event)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, opPublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Error("ingest_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Error("ingest_handler_failed", "document_id", event.DocumentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(event domain.IngestEvent) ([]byte, error) {
	if strings.TrimSpace(event.DocumentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode ingest event", errors.New("document id is required"))
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest event: %w", err)
	}
	return data, nil
}

// decodeEvent accepts the JSON envelope and, for older publishers, a bare document id.
func decodeEvent(data []byte) (domain.IngestEvent, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return domain.IngestEvent{}, errors.New("empty ingest event")
	}
	if !strings.HasPrefix(raw, "{") {
		return domain.IngestEvent{DocumentID: raw}, nil
	}
	var event domain.IngestEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return domain.IngestEvent{}, fmt.Errorf("unmarshal ingest event: %w", err)
	}
	if event.DocumentID == "" {
		return domain.IngestEvent{}, errors.New("ingest event without document id")
	}
	return event, nil
}
