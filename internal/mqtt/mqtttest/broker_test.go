package mqtttest

import (
	"context"
	"testing"

	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/topics"
)

func dial(t *testing.T, b *Broker, clientID string) *Conn {
	t.Helper()
	c := Dial(b, mqtt.Options{
		ClientID:      clientID,
		ComponentType: topics.ComponentClient,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c
}

func TestDeliveryAndWildcards(t *testing.T) {
	b := NewBroker()
	pub := dial(t, b, "pub")
	sub := dial(t, b, "sub")

	var got []mqtt.Message
	sub.SetMessageHandler(func(m mqtt.Message) { got = append(got, m) })
	if err := sub.Subscribe(context.Background(), "a/+/c", mqtt.SubscribeOptions{}); err != nil {
		t.Fatal(err)
	}

	pub.Publish(context.Background(), "a/b/c", []byte("hit"), mqtt.PublishOptions{})
	pub.Publish(context.Background(), "a/b/d", []byte("miss"), mqtt.PublishOptions{})

	if len(got) != 1 || string(got[0].Payload) != "hit" {
		t.Errorf("deliveries = %+v, want one hit", got)
	}
	if got[0].Properties[topics.PropMQTTClientID] != "pub" {
		t.Error("identity property not stamped")
	}
}

func TestRetained(t *testing.T) {
	b := NewBroker()
	pub := dial(t, b, "pub")

	pub.Publish(context.Background(), "state/x", []byte("on"), mqtt.PublishOptions{Retain: true})

	// A later subscriber receives the retained message immediately.
	sub := dial(t, b, "sub")
	var got []mqtt.Message
	sub.SetMessageHandler(func(m mqtt.Message) { got = append(got, m) })
	if err := sub.Subscribe(context.Background(), "state/#", mqtt.SubscribeOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0].Payload) != "on" {
		t.Fatalf("retained delivery = %+v", got)
	}

	// An empty retained payload clears the slot and is delivered live.
	pub.Publish(context.Background(), "state/x", nil, mqtt.PublishOptions{Retain: true})
	if _, ok := b.Retained("state/x"); ok {
		t.Error("retained message not cleared by empty payload")
	}
	if len(got) != 2 || len(got[1].Payload) != 0 {
		t.Errorf("clear not delivered live: %+v", got)
	}
}

func TestNoLocal(t *testing.T) {
	b := NewBroker()
	c := dial(t, b, "both")

	var got int
	c.SetMessageHandler(func(mqtt.Message) { got++ })
	if err := c.Subscribe(context.Background(), "rpc/x", mqtt.SubscribeOptions{NoLocal: true}); err != nil {
		t.Fatal(err)
	}

	c.Publish(context.Background(), "rpc/x", []byte("own"), mqtt.PublishOptions{})
	if got != 0 {
		t.Error("own publish delivered despite No-Local")
	}

	other := dial(t, b, "other")
	other.Publish(context.Background(), "rpc/x", []byte("peer"), mqtt.PublishOptions{})
	if got != 1 {
		t.Errorf("peer publish deliveries = %d, want 1", got)
	}
}

func TestWillFiredOnDrop(t *testing.T) {
	b := NewBroker()
	c := Dial(b, mqtt.Options{
		ClientID:      "doomed",
		ComponentType: topics.ComponentServer,
		Will: &mqtt.Will{
			Topic:   "presence/doomed",
			Payload: nil,
			QoS:     1,
			Retain:  true,
		},
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Publish(context.Background(), "presence/doomed", []byte("online"), mqtt.PublishOptions{Retain: true})
	if _, ok := b.Retained("presence/doomed"); !ok {
		t.Fatal("retained online message missing")
	}

	c.Drop()
	if _, ok := b.Retained("presence/doomed"); ok {
		t.Error("will did not clear the retained message")
	}
}

func TestGracefulDisconnectSkipsWill(t *testing.T) {
	b := NewBroker()
	c := Dial(b, mqtt.Options{
		ClientID: "polite",
		Will:     &mqtt.Will{Topic: "presence/polite", Payload: []byte("lost"), QoS: 1},
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if recs := b.Published("presence/polite"); len(recs) != 0 {
		t.Errorf("will fired on graceful disconnect: %+v", recs)
	}
}
