package ws

import (
	"context"
	"errors"
	"sync"

	"chatify/internal/models"
	"chatify/internal/registry"
)

// OutboundBuffer is the number of events a connection may have queued
// before it is considered too slow and closed.
const OutboundBuffer = 64

var ErrOverflow = errors.New("outbound queue overflow")

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

type messageHub interface {
	Join(userID string, h registry.Handle)
	Leave(userID string, h registry.Handle)
	Dispatch(ctx context.Context, userID string, msg models.ClientMessage)
}

// Connection is one authenticated socket. Outbound events are queued by
// Send and written by a single goroutine in FIFO order.
type Connection struct {
	ws         wsConnection
	hub        messageHub
	userID     string
	fromClient chan models.ClientMessage
	fromServer chan models.ServerMessage
	errorCh    chan error
	overflow   chan struct{}
	closeOnce  sync.Once
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		fromClient: make(chan models.ClientMessage),
		fromServer: make(chan models.ServerMessage, OutboundBuffer),
		errorCh:    make(chan error, 2),
		overflow:   make(chan struct{}),
	}
}

func (c *Connection) UserID() string {
	return c.userID
}

// Send queues msg without blocking. When the queue is full the connection
// is marked for closing and Send returns false; so does every later call.
func (c *Connection) Send(msg models.ServerMessage) bool {
	select {
	case <-c.overflow:
		return false
	default:
	}
	select {
	case c.fromServer <- msg:
		return true
	default:
		c.closeOnce.Do(func() { close(c.overflow) })
		return false
	}
}

// Handle registers the connection, runs it until the client goes away, ctx
// is cancelled or the outbound queue overflows, and then unregisters it.
func (c *Connection) Handle(ctx context.Context) error {
	c.hub.Join(c.userID, c)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.hub.Leave(c.userID, c)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromClient:
			c.hub.Dispatch(ctx, c.userID, msg)
		case msg := <-c.fromServer:
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-c.overflow:
			return ErrOverflow
		case <-ctx.Done():
			return nil
		}
	}
}
