package nats

import (
	"context"
	"errors"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const opPublish = "nats.publish"

// The client reconnects in the background, so a retry after these can land.
var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

// Rejected events say nothing about the server.
var eventErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return resilience.ErrorClassification{}
	case errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{RecordFailure: true}
	case resilience.IsCircuitOpen(err), isAny(err, connectionErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, eventErrors):
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, opPublish, err)
	}
	return err
}
