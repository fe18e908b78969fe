// Package consumer provides the shared ack/nack handling for AMQP
// message processing.
package consumer

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler processes one decoded message body. A nil return acks
// the message; an error nacks it without requeue (failed entries are
// retried through the database queue, not the broker).
type MessageHandler interface {
	HandleMessage(body []byte) error
}

// ProcessMessage runs one delivery through the handler and settles it.
func ProcessMessage(logger *zap.Logger, queue string, msg amqp.Delivery, handler MessageHandler) {
	if err := handler.HandleMessage(msg.Body); err != nil {
		logger.Error("failed to process message",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		reject(logger, msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("failed to ack message",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		reject(logger, msg)
	}
}

func reject(logger *zap.Logger, msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		logger.Error("failed to nack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
