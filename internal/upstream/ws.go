// internal/upstream/ws.go
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint32        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *uint32           `json:"id"`
	Method  string            `json:"method,omitempty"`
	Result  *uint64           `json:"result"`
	Error   *jsonrpc.RPCError `json:"error,omitempty"`
}

// WSCaller измеряет апстрим через JSON-RPC getBlockHeight поверх WebSocket.
// Соединение открывается лениво и сбрасывается после любой ошибки.
type WSCaller struct {
	url       string
	requestID uint32

	mu     sync.Mutex
	conn   net.Conn
	rw     io.ReadWriter
	closed bool
}

// NewWSCaller создает новый WebSocket-транспорт. requestID зарезервированный id
// health-check запросов, чтобы ответы не путались с подписками.
func NewWSCaller(url string, requestID uint32) *WSCaller {
	return &WSCaller{
		url:       url,
		requestID: requestID,
	}
}

// GetReferenceMetric возвращает текущую высоту блока апстрима
func (c *WSCaller) GetReferenceMetric(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, NewTransportError(ErrClosed, c.url, methodGetBlockHeight)
	}

	height, err := c.call(ctx)
	if err != nil {
		c.resetLocked()
		return 0, NewTransportError(err, c.url, methodGetBlockHeight)
	}
	return height, nil
}

func (c *WSCaller) call(ctx context.Context) (uint64, error) {
	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return 0, c.ctxErr(ctx, err)
		}
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return 0, err
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	payload, err := json.Marshal(wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID,
		Method:  methodGetBlockHeight,
		Params:  []interface{}{map[string]string{"commitment": "processed"}},
	})
	if err != nil {
		return 0, err
	}

	if err := wsutil.WriteClientText(c.rw, payload); err != nil {
		return 0, c.ctxErr(ctx, err)
	}

	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			return 0, c.ctxErr(ctx, err)
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		var resp wsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		// уведомления подписок не несут id
		if resp.ID == nil {
			continue
		}
		if *resp.ID != c.requestID {
			return 0, fmt.Errorf("%w: id %d", ErrUnexpectedResponse, *resp.ID)
		}
		if resp.Error != nil {
			return 0, resp.Error
		}
		if resp.Result == nil {
			return 0, fmt.Errorf("%w: empty result", ErrMalformedResponse)
		}
		return *resp.Result, nil
	}
}

func (c *WSCaller) dialLocked(ctx context.Context) error {
	conn, br, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return err
	}
	c.conn = conn
	if br != nil {
		c.rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	} else {
		c.rw = conn
	}
	return nil
}

// ctxErr отдает приоритет ошибке контекста, чтобы сработавший дедлайн классифицировался как Timeout
func (c *WSCaller) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (c *WSCaller) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.rw = nil
}

// Close закрывает соединение
func (c *WSCaller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.rw = nil
	return err
}
