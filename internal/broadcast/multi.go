package broadcast

import "echoclicker/internal/models"

// Multi forwards each event to every sink in order.
type Multi []Sink

func (m Multi) Broadcast(ev models.Event) {
	for _, s := range m {
		s.Broadcast(ev)
	}
}
