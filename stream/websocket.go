package stream

import (
	"context"

	"nhooyr.io/websocket"
)

// maxInboundFrame bounds result payloads; segments with word timestamps can
// run long on extended utterances.
const maxInboundFrame = 4 << 20

type wsTransport struct {
	conn *websocket.Conn
}

// DialWebsocket opens a websocket Transport.
func DialWebsocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxInboundFrame)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Read(ctx context.Context) (bool, []byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return false, nil, err
	}
	return typ == websocket.MessageBinary, data, nil
}

func (t *wsTransport) WriteText(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) WriteBinary(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
