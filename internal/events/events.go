package events

import (
	"context"
)

// AddressFormatted is published after a format result has been archived.
type AddressFormatted struct {
	ID          string
	RequestKey  string
	CountryCode string
}

type Publisher interface {
	PublishAddressFormatted(ctx context.Context, evt AddressFormatted)
	SubscribeAddressFormatted() <-chan AddressFormatted
}

type inMemory struct{ ch chan AddressFormatted }

func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{ch: make(chan AddressFormatted, buffer)}
}

// PublishAddressFormatted never blocks; events are dropped when the buffer is full.
func (m *inMemory) PublishAddressFormatted(_ context.Context, evt AddressFormatted) {
	select {
	case m.ch <- evt:
	default:
	}
}

func (m *inMemory) SubscribeAddressFormatted() <-chan AddressFormatted { return m.ch }
