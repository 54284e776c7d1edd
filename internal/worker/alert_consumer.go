package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"devicegate/internal/events"
)

const consumerTag = "auth-alert-worker-1"

// AlertWorker consumes failed authentication events and surfaces them as
// alert lines in the server log. It is the simplest downstream of the event
// exchange; richer notifiers would hang off the same queue.
type AlertWorker struct{}

func NewAlertWorker() *AlertWorker {
	return &AlertWorker{}
}

// StartWorker starts the consumer process
// ctx is used for graceful shutdown signal
func (w *AlertWorker) StartWorker(ctx context.Context) error {
	if events.Client == nil {
		return fmt.Errorf("RabbitMQ client not initialized")
	}

	ch := events.Client.Channel
	qName := events.AlertQueueName

	msgs, err := ch.Consume(
		qName,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack (manual ack after processing)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf("Alert worker started, waiting for messages in %s", qName)

	done := make(chan bool)

	go func() {
		for d := range msgs {
			w.processMessage(d)
		}
		done <- true
	}()

	// Wait for context cancellation (Graceful Shutdown)
	<-ctx.Done()
	log.Println("Shutdown signal received, canceling alert consumer...")

	if err := ch.Cancel(consumerTag, false); err != nil {
		log.Printf("Error canceling consumer: %v", err)
	}

	<-done
	return nil
}

func (w *AlertWorker) processMessage(d amqp.Delivery) {
	var event events.AuthEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		log.Printf("Discarding malformed auth event: %v", err)
		// Not requeued: the payload will never parse
		_ = d.Nack(false, false)
		return
	}

	log.Printf("ALERT: auth failure for user %s from %s (device %q): %s",
		event.UserID, event.IP, event.DeviceID, event.Message)

	_ = d.Ack(false)
}
