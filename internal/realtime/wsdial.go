package realtime

import (
	"context"
	"time"

	"nhooyr.io/websocket"
)

const dialTimeout = 10 * time.Second

type wsConn struct {
	conn *websocket.Conn
}

func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}
