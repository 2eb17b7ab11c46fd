package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tacet/internal/interfaces"
)

// Service implements EventBus with an in-process pub/sub pattern
type Service struct {
	subscribers map[interfaces.BusTopic][]interfaces.BusHandler
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event bus
func NewService(logger arbor.ILogger) interfaces.EventBus {
	return &Service{
		subscribers: make(map[interfaces.BusTopic][]interfaces.BusHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for a topic
func (s *Service) Subscribe(topic interfaces.BusTopic, handler interfaces.BusHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[topic] = append(s.subscribers[topic], handler)

	s.logger.Debug().
		Str("topic", string(topic)).
		Int("subscriber_count", len(s.subscribers[topic])).
		Msg("Bus handler subscribed")

	return nil
}

// Publish sends a message to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, msg interfaces.BusMessage) error {
	s.mu.RLock()
	handlers := s.subscribers[msg.Topic]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Debug().
			Str("topic", string(msg.Topic)).
			Msg("No subscribers for topic")
		return nil
	}

	s.logger.Debug().
		Str("topic", string(msg.Topic)).
		Str("entity", msg.Entity).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing message")

	for _, handler := range handlers {
		go func(h interfaces.BusHandler) {
			if err := h(ctx, msg); err != nil {
				s.logger.Error().
					Err(err).
					Str("topic", string(msg.Topic)).
					Msg("Bus handler failed")
			}
		}(handler)
	}

	return nil
}

// PublishSync sends a message to all subscribers and waits for completion
func (s *Service) PublishSync(ctx context.Context, msg interfaces.BusMessage) error {
	s.mu.RLock()
	handlers := s.subscribers[msg.Topic]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.BusHandler) {
			defer wg.Done()
			if err := h(ctx, msg); err != nil {
				s.logger.Error().
					Err(err).
					Str("topic", string(msg.Topic)).
					Msg("Bus handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("bus handlers failed: %d errors", len(errs))
	}

	return nil
}

// Close shuts down the bus
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.BusTopic][]interfaces.BusHandler)
	s.logger.Info().Msg("Event bus closed")

	return nil
}
