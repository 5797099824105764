package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

func paidOrder(email string) models.Order {
	settled := int64(10500)
	return models.Order{
		ID:            uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001"),
		SubtotalCents: 10000,
		ShippingCents: 500,
		TotalCents:    10500,
		SettledCents:  &settled,
		Currency:      enums.CurrencyUSD,
		Status:        enums.OrderStatusPaid,
		CustomerEmail: &email,
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$105.00", FormatMoney(10500, enums.CurrencyUSD))
	assert.Equal(t, "$0.05", FormatMoney(5, enums.CurrencyUSD))
	assert.Equal(t, "¥1500", FormatMoney(1500, enums.CurrencyJPY))
	assert.Equal(t, "12.34 XYZ", FormatMoney(1234, enums.Currency("xyz")))
}

func TestConfirmationEmail(t *testing.T) {
	msg, err := ConfirmationEmail(paidOrder("buyer@example.test"), Sender{
		From:    "orders@shop.test",
		ReplyTo: "help@shop.test",
		SiteURL: "https://shop.test/",
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.test", msg.To)
	assert.Equal(t, "Order #3F2A9C1E confirmed", msg.Subject)
	assert.Contains(t, msg.Text, "Total:    $105.00")
	assert.Contains(t, msg.HTML, "https://shop.test/account/orders/3f2a9c1e-0000-4000-8000-000000000001")
	assert.Equal(t, TemplateOrderConfirmation, msg.Template)

	noEmail := paidOrder("")
	_, err = ConfirmationEmail(noEmail, Sender{})
	assert.Error(t, err)
}

type capturePublisher struct {
	topic string
	data  []byte
	attrs map[string]string
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	p.topic, p.data, p.attrs = topic, data, attrs
	return "msg-1", p.err
}

func TestPubSubMailerPublishesEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	mailer, err := NewPubSubMailer(pub, "emails")
	require.NoError(t, err)

	require.NoError(t, mailer.Send(context.Background(), Message{To: "a@b.test", Subject: "hi", Template: "t"}))
	assert.Equal(t, "emails", pub.topic)
	assert.Equal(t, "email.send", pub.attrs["event_type"])

	var env emailEnvelope
	require.NoError(t, json.Unmarshal(pub.data, &env))
	assert.Equal(t, envelopeVersion, env.Version)
	assert.Equal(t, pub.attrs["event_id"], env.EventID)
	assert.Equal(t, "a@b.test", env.Data.To)

	pub.err = errors.New("unavailable")
	assert.Error(t, mailer.Send(context.Background(), Message{To: "a@b.test"}))
	assert.Error(t, mailer.Send(context.Background(), Message{}))

	_, err = NewPubSubMailer(nil, "emails")
	assert.Error(t, err)
}

type recordingMailer struct {
	mu    sync.Mutex
	sent  []Message
	err   error
	block chan struct{}
	ctxs  []context.Context
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	m.ctxs = append(m.ctxs, ctx)
	return m.err
}

func TestDispatchAsyncSendsInBackground(t *testing.T) {
	reg := prometheus.NewRegistry()
	om := metrics.NewOrderMetrics(reg)
	mailer := &recordingMailer{block: make(chan struct{})}
	d := NewDispatcher(DispatcherParams{Mailer: mailer, Metrics: om, Logger: logger.Nop(), Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, paidOrder("buyer@example.test"))
	// the caller returns and its context dies before the mailer runs
	cancel()
	close(mailer.block)

	require.NoError(t, d.Wait(context.Background()))
	require.Len(t, mailer.sent, 1)
	assert.NoError(t, mailer.ctxs[0].Err())
	_, hasDeadline := mailer.ctxs[0].Deadline()
	assert.True(t, hasDeadline)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "email_dispatch_total"))
}

func TestDispatchAsyncSwallowsFailures(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	d := NewDispatcher(DispatcherParams{Mailer: mailer, Logger: logger.Nop()})

	assert.NotPanics(t, func() { d.DispatchAsync(context.Background(), paidOrder("buyer@example.test")) })
	require.NoError(t, d.Wait(context.Background()))
	assert.Len(t, mailer.sent, 1)
}

func TestDispatchAsyncSkipsOrderWithoutEmail(t *testing.T) {
	mailer := &recordingMailer{}
	d := NewDispatcher(DispatcherParams{Mailer: mailer, Logger: logger.Nop()})
	d.DispatchAsync(context.Background(), paidOrder(""))
	require.NoError(t, d.Wait(context.Background()))
	assert.Empty(t, mailer.sent)
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "b***@example.test", maskAddress("buyer@example.test"))
	assert.Equal(t, "***", maskAddress("nope"))
}
