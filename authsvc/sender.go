package authsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
)

// Sender delivers issued codes and reset links to the account holder.
type Sender interface {
	SendCode(ctx context.Context, email, code string) error
	SendResetLink(ctx context.Context, email, link string) error
}

// LogSender writes deliveries to a logger. It is meant for development and
// for the fixture account.
type LogSender struct {
	Logger logrus.FieldLogger
}

func (s LogSender) SendCode(ctx context.Context, email, code string) error {
	s.Logger.WithFields(logrus.Fields{"email": email, "code": code}).Info("otp code issued")
	return nil
}

func (s LogSender) SendResetLink(ctx context.Context, email, link string) error {
	s.Logger.WithFields(logrus.Fields{"email": email, "link": link}).Info("password reset link issued")
	return nil
}

// Publisher is the subset of *nsq.Producer used by NSQSender.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Delivery is the message published for a mailer.
type Delivery struct {
	Kind     string    `json:"kind"`
	Email    string    `json:"email"`
	Code     string    `json:"code,omitempty"`
	Link     string    `json:"link,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// NSQSender publishes deliveries as JSON to NSQ topics.
type NSQSender struct {
	publisher  Publisher
	otpTopic   string
	resetTopic string
}

// NewNSQSender publishes codes to otpTopic and reset links to resetTopic.
func NewNSQSender(p Publisher, otpTopic, resetTopic string) *NSQSender {
	return &NSQSender{publisher: p, otpTopic: otpTopic, resetTopic: resetTopic}
}

// NewNSQProducer connects to nsqd at addr and pings it.
func NewNSQProducer(addr string) (*nsq.Producer, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: create nsq producer: %v", ErrBackendUnavailable, err)
	}
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("%w: ping nsqd: %v", ErrBackendUnavailable, err)
	}
	return producer, nil
}

func (s *NSQSender) SendCode(ctx context.Context, email, code string) error {
	return s.publish(s.otpTopic, Delivery{Kind: "otp", Email: email, Code: code, IssuedAt: time.Now().UTC()})
}

func (s *NSQSender) SendResetLink(ctx context.Context, email, link string) error {
	return s.publish(s.resetTopic, Delivery{Kind: "password_reset", Email: email, Link: link, IssuedAt: time.Now().UTC()})
}

func (s *NSQSender) publish(topic string, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := s.publisher.Publish(topic, body); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrBackendUnavailable, topic, err)
	}
	return nil
}
