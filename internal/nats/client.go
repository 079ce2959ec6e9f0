package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/docmill/docmill/internal/worker"
)

// Client publishes job dispatches so a standalone worker process can run
// pipelines independently of the API process.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to NATS.
func NewClient(url string) (*Client, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Dispatch implements worker.Dispatcher by publishing the task.
func (c *Client) Dispatch(_ context.Context, task worker.Task) error {
	msg := DispatchMessage{
		JobID:    task.Job.ID,
		TenantID: task.Job.TenantID,
		Filename: task.Job.OriginalFilename,
		Payload:  task.Payload,
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch message: %w", err)
	}
	if err := c.conn.Publish(JobDispatchSubject, data); err != nil {
		return fmt.Errorf("failed to publish dispatch: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
