// Package events publishes authentication outcomes to RabbitMQ for async
// fan-out (alerting, downstream consumers). The whole package is optional:
// when no broker is configured nothing is published, and publish failures
// never affect request handling.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName      = "devicegate.events"
	AlertQueueName    = "auth.alerts"
	RoutingKeySuccess = "auth.success"
	RoutingKeyFailure = "auth.failure"
	ReconnectDelay    = 5 * time.Second
)

type EventsClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	URL     string
}

var Client *EventsClient

// Setup initializes the connection and declares the topology
func Setup(url string) error {
	Client = &EventsClient{
		URL: url,
	}
	return Client.connect()
}

func (c *EventsClient) connect() error {
	var err error

	log.Printf("Attempting to connect to RabbitMQ...")
	c.Conn, err = amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.Channel, err = c.Conn.Channel()
	if err != nil {
		c.Conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := c.declareTopology(); err != nil {
		c.Channel.Close()
		c.Conn.Close()
		return err
	}

	// Watch for errors in background
	go c.watchConnection()

	log.Println("RabbitMQ connected successfully")
	return nil
}

func (c *EventsClient) declareTopology() error {
	err := c.Channel.ExchangeDeclare(
		ExchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Alert queue receives failed authentication events only
	_, err = c.Channel.QueueDeclare(
		AlertQueueName, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare alert queue: %w", err)
	}

	err = c.Channel.QueueBind(
		AlertQueueName,    // queue name
		RoutingKeyFailure, // routing key
		ExchangeName,      // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind alert queue: %w", err)
	}

	return nil
}

func (c *EventsClient) watchConnection() {
	notifyClose := c.Conn.NotifyClose(make(chan *amqp.Error))

	if err := <-notifyClose; err != nil {
		log.Printf("RabbitMQ connection closed: %v. Reconnecting...", err)
		c.reconnect()
	}
}

func (c *EventsClient) reconnect() {
	for {
		time.Sleep(ReconnectDelay)
		if err := c.connect(); err == nil {
			log.Println("RabbitMQ reconnected")
			return
		} else {
			log.Printf("Failed to reconnect to RabbitMQ: %v. Retrying in %v...", err, ReconnectDelay)
		}
	}
}

// Close closes the connection and channel
func Close() {
	if Client != nil {
		if Client.Channel != nil {
			Client.Channel.Close()
		}
		if Client.Conn != nil {
			Client.Conn.Close()
		}
	}
}

// AuthEvent is the published form of one authentication outcome.
type AuthEvent struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	DeviceID  string `json:"deviceId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	IP        string `json:"ip"`
	Success   bool   `json:"success"`
}

// Publisher implements the auth service's outcome fan-out.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishAuthResult publishes one outcome event. Best-effort: every failure
// path logs and returns; the caller never learns about it.
func (p *Publisher) PublishAuthResult(userID, deviceID, message, timestamp, ip string, success bool) {
	if Client == nil || Client.Channel == nil || Client.Channel.IsClosed() {
		return
	}

	event := AuthEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		Message:   message,
		Timestamp: timestamp,
		IP:        ip,
		Success:   success,
	}
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode auth event for %s: %v", userID, err)
		return
	}

	routingKey := RoutingKeyFailure
	if success {
		routingKey = RoutingKeySuccess
	}

	err = Client.Channel.Publish(
		ExchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		log.Printf("Failed to publish auth event for %s: %v", userID, err)
	}
}
