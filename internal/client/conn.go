// Package client talks to a conductor's admin and app websocket interfaces.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/iface"
)

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("connection closed")

// WriteTimeout bounds each request write.
const WriteTimeout = 5 * time.Second

// RemoteError is an error reported by the conductor.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// UnknownResponseError is returned when the conductor answers with a
// response type this client does not know.
type UnknownResponseError struct {
	Request string
	Type    string
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("%s: unknown response type %q", e.Request, e.Type)
}

// conn multiplexes requests over one websocket. A single reader goroutine
// hands each response to the request waiting for its ID.
type conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan iface.Envelope
	err     error
	done    chan struct{}
}

func dial(ctx context.Context, url string) (*conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &conn{
		ws:      ws,
		pending: map[string]chan iface.Envelope{},
		done:    make(chan struct{}),
	}
	go c.read()
	return c, nil
}

func (c *conn) read() {
	defer close(c.done)
	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		var env iface.Envelope
		if err := codec.Unmarshal(message, &env); err != nil {
			glog.Infof("[client]bad frame = %s\n", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if !ok {
			glog.V(1).Infof("[client]drop response %s %s\n", env.ID, env.Type)
			continue
		}
		ch <- env
	}
}

func (c *conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// do sends a request and waits for its response. Error responses become a
// *RemoteError.
func (c *conn) do(ctx context.Context, typ string, data any) (iface.Envelope, error) {
	req := iface.Envelope{ID: ulid.Make().String(), Type: typ}
	if data != nil {
		body, err := codec.Marshal(data)
		if err != nil {
			return iface.Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
		}
		req.Data = body
	}
	frame, err := codec.Marshal(req)
	if err != nil {
		return iface.Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
	}

	ch := make(chan iface.Envelope, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return iface.Envelope{}, err
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	err = c.ws.WriteMessage(websocket.BinaryMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return iface.Envelope{}, fmt.Errorf("send %s: %w", typ, err)
	}
	glog.V(2).Infof("[client]%s %s->\n", req.ID, typ)

	select {
	case <-ctx.Done():
		c.forget(req.ID)
		return iface.Envelope{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return iface.Envelope{}, err
		}
		if resp.Type == iface.TypeError {
			var e iface.Error
			if err := resp.Decode(&e); err != nil {
				return iface.Envelope{}, fmt.Errorf("decode %s error: %w", typ, err)
			}
			return iface.Envelope{}, &RemoteError{Type: typ, Message: e.Message}
		}
		return resp, nil
	}
}

func (c *conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close closes the connection and waits for the reader to stop.
func (c *conn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}
