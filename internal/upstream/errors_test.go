package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"deadline", context.DeadlineExceeded, Timeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), Timeout},
		{"net timeout", &net.OpError{Op: "read", Err: &timeoutErr{}}, Timeout},
		{"rpc error", &jsonrpc.RPCError{Code: -32000, Message: "x"}, ProtocolError},
		{"http error", jsonrpc.NewHTTPError(502, errors.New("bad gateway")), ProtocolError},
		{"malformed", fmt.Errorf("%w: eof", ErrMalformedResponse), ProtocolError},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, Unreachable},
		{"unknown", errors.New("boom"), Unreachable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestNewTransportError(t *testing.T) {
	assert.NoError(t, NewTransportError(nil, "http://a", "m"))

	err := NewTransportError(context.DeadlineExceeded, "http://a", "getBlockHeight")
	var te *TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, Timeout, te.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timeout [getBlockHeight] at http://a")

	// повторная обертка не меняет класс
	assert.Same(t, err, NewTransportError(err, "http://b", "other"))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
