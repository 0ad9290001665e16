// internal/upstream/http.go
package upstream

import (
	"context"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

const methodGetBlockHeight = "getBlockHeight"

// HTTPCaller измеряет апстрим через JSON-RPC getBlockHeight поверх HTTP
type HTTPCaller struct {
	client *solanarpc.Client
	url    string
}

// NewHTTPCaller создает новый HTTP-транспорт
func NewHTTPCaller(url string, headers map[string]string) *HTTPCaller {
	var client *solanarpc.Client
	if len(headers) > 0 {
		client = solanarpc.NewWithHeaders(url, headers)
	} else {
		client = solanarpc.New(url)
	}
	return &HTTPCaller{
		client: client,
		url:    url,
	}
}

// GetReferenceMetric возвращает текущую высоту блока апстрима
func (c *HTTPCaller) GetReferenceMetric(ctx context.Context) (uint64, error) {
	height, err := c.client.GetBlockHeight(ctx, solanarpc.CommitmentProcessed)
	if err != nil {
		return 0, NewTransportError(err, c.url, methodGetBlockHeight)
	}
	return height, nil
}

// Close закрывает клиент
func (c *HTTPCaller) Close() error {
	return c.client.Close()
}
