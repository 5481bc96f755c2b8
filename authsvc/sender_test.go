package authsvc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMessage struct {
	topic string
	body  []byte
}

type fakePublisher struct {
	messages []recordedMessage
	err      error
}

func (p *fakePublisher) Publish(topic string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, recordedMessage{topic: topic, body: body})
	return nil
}

func TestNSQSenderPublishesToTopics(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNSQSender(pub, "otp_delivery", "password_reset_delivery")

	require.NoError(t, s.SendCode(context.Background(), "a@example.com", "123456"))
	require.NoError(t, s.SendResetLink(context.Background(), "a@example.com", "http://x/reset?token=t"))
	require.Len(t, pub.messages, 2)

	assert.Equal(t, "otp_delivery", pub.messages[0].topic)
	var d Delivery
	require.NoError(t, json.Unmarshal(pub.messages[0].body, &d))
	assert.Equal(t, "otp", d.Kind)
	assert.Equal(t, "a@example.com", d.Email)
	assert.Equal(t, "123456", d.Code)
	assert.Empty(t, d.Link)

	assert.Equal(t, "password_reset_delivery", pub.messages[1].topic)
	require.NoError(t, json.Unmarshal(pub.messages[1].body, &d))
	assert.Equal(t, "password_reset", d.Kind)
	assert.Equal(t, "http://x/reset?token=t", d.Link)
}

func TestNSQSenderWrapsPublishError(t *testing.T) {
	s := NewNSQSender(&fakePublisher{err: errors.New("nsqd gone")}, "otp", "reset")

	err := s.SendCode(context.Background(), "a@example.com", "123456")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestPinnedCode(t *testing.T) {
	next := func(string) (string, error) { return "999999", nil }
	codes := PinnedCode("Test@Example.com", "123456", next)

	code, err := codes("test@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	code, err = codes("other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "999999", code)
}
