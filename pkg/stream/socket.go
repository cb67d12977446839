package stream

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// socketStream reads frames from a websocket connection. It is the
// fallback transport for environments where the push stream cannot be
// established.
type socketStream struct {
	conn *websocket.Conn
}

func dialSocket(ctx context.Context, url string) (*socketStream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect socket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect socket: %w", err)
	}
	return &socketStream{conn: conn}, nil
}

func (s *socketStream) ReadFrame() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *socketStream) Close() error {
	return s.conn.Close()
}
