package websocket

import (
	"sort"
	"sync"
)

// Subscription is a channel, optionally narrowed to one market.
type Subscription struct {
	Channel string
	Market  string
}

// subscriptions tracks the desired subscriptions so they can be replayed
// after every reconnect.
type subscriptions struct {
	mu      sync.Mutex
	desired map[Subscription]struct{}
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		desired: make(map[Subscription]struct{}),
	}
}

// add returns true if sub was newly added.
func (s *subscriptions) add(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.desired[sub]; exists {
		return false
	}
	s.desired[sub] = struct{}{}
	return true
}

// remove returns true if sub was present.
func (s *subscriptions) remove(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.desired[sub]; !exists {
		return false
	}
	delete(s.desired, sub)
	return true
}

// list returns the desired subscriptions in a stable order.
func (s *subscriptions) list() []Subscription {
	s.mu.Lock()
	result := make([]Subscription, 0, len(s.desired))
	for sub := range s.desired {
		result = append(result, sub)
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Channel != result[j].Channel {
			return result[i].Channel < result[j].Channel
		}
		return result[i].Market < result[j].Market
	})
	return result
}
