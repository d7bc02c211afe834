package messaging

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiverForTest() *RabbitMQReceiver {
	return &RabbitMQReceiver{
		tasks: make(chan Task),
		stop:  make(chan struct{}),
	}
}

func TestReceiverCloseEndsTaskStream(t *testing.T) {
	receiver := receiverForTest()
	msgs := make(chan amqp.Delivery)
	go receiver.consume(msgs)

	receiver.Close()
	close(msgs) // connection teardown closes the delivery channel

	select {
	case _, open := <-receiver.Tasks():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("task stream not closed after receiver shutdown")
	}
}

func TestReceiverDrainsBeforeClosing(t *testing.T) {
	receiver := receiverForTest()
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{RoutingKey: DeployQueue, Body: []byte(`{}`)}
	go receiver.consume(msgs)

	select {
	case task := <-receiver.Tasks():
		assert.Equal(t, DeployQueue, task.Type())
	case <-time.After(time.Second):
		t.Fatal("pending delivery not forwarded")
	}

	receiver.Close()
	close(msgs)

	select {
	case _, open := <-receiver.Tasks():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("task stream not closed after drain")
	}
}

func TestReceiverKeepsStreamOpenAcrossReconnect(t *testing.T) {
	receiver := receiverForTest()

	// First consumer dies without a shutdown, as on a broker reconnect.
	msgs := make(chan amqp.Delivery)
	done := make(chan struct{})
	go func() {
		receiver.consume(msgs)
		close(done)
	}()
	close(msgs)
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// A fresh consume over the same stream still delivers.
	replacement := make(chan amqp.Delivery, 1)
	replacement <- amqp.Delivery{RoutingKey: DeployQueue}
	go receiver.consume(replacement)

	select {
	case task := <-receiver.Tasks():
		assert.Equal(t, DeployQueue, task.Type())
	case <-time.After(time.Second):
		t.Fatal("task stream closed by reconnect")
	}
}
