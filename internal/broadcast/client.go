package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/coder/websocket"
)

// Client is a window's connection to a Hub. It implements Channel.
type Client struct {
	conn   *websocket.Conn
	ch     chan Envelope
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Dial connects to the hub at url (ws://host:port/ws).
func Dial(ctx context.Context, url string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[broadcast] ", log.LstdFlags)
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hub %s: %w", url, err)
	}
	conn.SetReadLimit(maxEnvelopeSize)

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		ch:     make(chan Envelope, 100),
		logger: logger,
		ctx:    cctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// Publish implements Channel.
func (c *Client) Publish(ctx context.Context, env Envelope) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to publish to hub: %w", err)
	}
	return nil
}

// Envelopes implements Channel.
func (c *Client) Envelopes() <-chan Envelope { return c.ch }

// Close implements Channel.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	c.wg.Wait()
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.ch)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Printf("Hub connection lost: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Printf("Warning: ignoring malformed envelope: %v", err)
			continue
		}

		select {
		case c.ch <- env:
		case <-c.ctx.Done():
			return
		}
	}
}
