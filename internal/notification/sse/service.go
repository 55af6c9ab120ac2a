// Package sse provides Server-Sent Events support for the dispatch board.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"dispatch_backend/platform/httpkit"
	"dispatch_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// bufferSize is the per-client backlog; a slower client misses events.
const bufferSize = 32

// Event represents an SSE event payload
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	userID    uuid.UUID
	companyID uuid.UUID
	events    chan Event
}

// Service manages SSE connections and fans events out per company.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{} // companyID -> clients
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		log:     log,
	}
}

// subscribe registers a client and returns it.
func (s *Service) subscribe(userID, companyID uuid.UUID) *client {
	c := &client{userID: userID, companyID: companyID, events: make(chan Event, bufferSize)}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.clients[companyID]
	if !ok {
		set = make(map[*client]struct{})
		s.clients[companyID] = set
	}
	set[c] = struct{}{}
	return c
}

// Subscribe registers a stream for the company. The returned func ends it.
func (s *Service) Subscribe(userID, companyID uuid.UUID) (<-chan Event, func()) {
	c := s.subscribe(userID, companyID)
	return c.events, func() { s.unsubscribe(c) }
}

// unsubscribe removes a client and closes its channel. Safe to call after Close.
func (s *Service) unsubscribe(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.clients[c.companyID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.clients, c.companyID)
	}
	close(c.events)
}

// PublishToCompany sends an event to every dispatcher connected for the company.
func (s *Service) PublishToCompany(companyID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients[companyID] {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full", "user_id", c.userID.String(), "event", event.Type)
		}
	}
}

// Connected returns the number of open streams for the company.
func (s *Service) Connected(companyID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[companyID])
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := httpkit.MustGetCompanyID(c)
		if !ok {
			return
		}
		userID := httpkit.GetIdentity(c).UserID()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		cl := s.subscribe(userID, companyID)
		defer s.unsubscribe(cl)

		c.SSEvent("connected", gin.H{"userId": userID, "companyId": companyID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					s.log.Warn("sse marshal failed", "event", event.Type, "error", err.Error())
					continue
				}
				c.SSEvent(event.Type, string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every client.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.clients {
		for c := range set {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID]map[*client]struct{})
}
