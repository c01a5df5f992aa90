package mailer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medshop/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	mu   sync.Mutex
	sent []*gomail.Message
	err  error
	done chan struct{}
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.mu.Lock()
	d.sent = append(d.sent, m...)
	d.mu.Unlock()
	d.done <- struct{}{}
	return d.err
}

func TestSMTPMailerDeliversOnWorker(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Server: "smtp.test", Port: 465, User: "shop@test", From: "shop@test", Workers: 2}, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	fake := &fakeDialer{done: make(chan struct{}, 1)}
	m.dialer = fake

	require.NoError(t, m.Send(context.Background(), Message{To: "staff@test", Subject: "Password Reset", Body: "token"}))

	select {
	case <-fake.done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never delivered")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.sent, 1)
	assert.Equal(t, []string{"staff@test"}, fake.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Password Reset"}, fake.sent[0].GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = fake.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "token")
}

func TestSMTPMailerSwallowsDeliveryErrors(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Server: "smtp.test", Port: 587, Workers: 1}, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	fake := &fakeDialer{done: make(chan struct{}, 1), err: errors.New("connection refused")}
	m.dialer = fake

	assert.NoError(t, m.Send(context.Background(), Message{To: "x@test"}))
	<-fake.done
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(nil).Send(context.Background(), Message{To: "x@test"}))
}
