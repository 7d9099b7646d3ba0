package events

import "context"

// Subscriber delivers raw event payloads from the event bus.
type Subscriber interface {
	// Subscribe returns a channel of payloads for topic and a cancel
	// function that unsubscribes and closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// Follow calls fn for every payload published on topic until ctx is done
// or the subscription closes.
func Follow(ctx context.Context, sub Subscriber, topic string, fn func(payload []byte)) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			fn(payload)
		}
	}
}
