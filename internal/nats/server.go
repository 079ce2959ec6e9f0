package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/worker"
)

// Server consumes job dispatches and feeds them to the local dispatch
// queue, where pipeline workers pick them up.
type Server struct {
	conn  *nats.Conn
	sub   *nats.Subscription
	store jobs.Store
	queue *worker.Queue
}

// NewServer connects to NATS for consumption.
func NewServer(url string, store jobs.Store, queue *worker.Queue) (*Server, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Server{conn: conn, store: store, queue: queue}, nil
}

// Subscribe starts consuming dispatches. Workers in the same queue group
// share the load.
func (s *Server) Subscribe() error {
	sub, err := s.conn.QueueSubscribe(JobDispatchSubject, "docmill-workers", func(msg *nats.Msg) {
		var dm DispatchMessage
		if err := json.Unmarshal(msg.Data, &dm); err != nil {
			logger.Logger.Error().Err(err).Msg("Malformed dispatch message")
			return
		}

		// Re-read the job so the pipeline starts from the stored record
		// rather than whatever the publisher saw.
		job, err := s.store.Get(context.Background(), dm.TenantID, dm.JobID)
		if err != nil {
			logger.WithJob(dm.JobID, dm.TenantID).Error().Err(err).Msg("Dispatched job not found")
			return
		}

		if err := s.queue.Dispatch(context.Background(), worker.Task{Job: job, Payload: dm.Payload}); err != nil {
			logger.WithJob(dm.JobID, dm.TenantID).Error().Err(err).Msg("Failed to queue dispatched job")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.sub = sub
	return nil
}

// Close drains the subscription and closes the connection.
func (s *Server) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
