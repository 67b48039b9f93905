package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cristianradulescu/format-ls/internal/container"
	"go.lsp.dev/jsonrpc2"
)

type sentMessage struct {
	method string
	params interface{}
}

// mockConn records what the server sends to the client. Calls are answered
// from responses, keyed by method.
type mockConn struct {
	mu        sync.Mutex
	notified  []sentMessage
	called    []sentMessage
	responses map[string]interface{}
	done      chan struct{}
	closeOnce sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		responses: make(map[string]interface{}),
		done:      make(chan struct{}),
	}
}

func (c *mockConn) Call(_ context.Context, method string, params, result interface{}) (jsonrpc2.ID, error) {
	c.mu.Lock()
	c.called = append(c.called, sentMessage{method: method, params: params})
	response, ok := c.responses[method]
	c.mu.Unlock()

	if !ok {
		return jsonrpc2.NewNumberID(1), errors.New("no response configured for " + method)
	}

	data, err := json.Marshal(response)
	if err != nil {
		return jsonrpc2.NewNumberID(1), err
	}
	return jsonrpc2.NewNumberID(1), json.Unmarshal(data, result)
}

func (c *mockConn) Notify(_ context.Context, method string, params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified = append(c.notified, sentMessage{method: method, params: params})
	return nil
}

func (c *mockConn) Go(context.Context, jsonrpc2.Handler) {}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *mockConn) Done() <-chan struct{} {
	return c.done
}

func (c *mockConn) Err() error {
	return nil
}

func (c *mockConn) respond(method string, response interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[method] = response
}

func (c *mockConn) Notified(method string) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	var params []interface{}
	for _, msg := range c.notified {
		if msg.method == method {
			params = append(params, msg.params)
		}
	}
	return params
}

func (c *mockConn) Called(method string) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	var params []interface{}
	for _, msg := range c.called {
		if msg.method == method {
			params = append(params, msg.params)
		}
	}
	return params
}

// mockRunner upper-cases stdin and fails on input containing "bad".
type mockRunner struct{}

func (mockRunner) Run(_ context.Context, cmd container.Command) container.Result {
	var data []byte
	if cmd.Stdin != nil {
		data, _ = io.ReadAll(cmd.Stdin)
	}
	if strings.Contains(string(data), "bad") {
		return container.Result{ExitCode: 1, Stderr: []byte("cannot parse"), Err: errors.New("exit status 1")}
	}
	return container.Result{Stdout: []byte(strings.ToUpper(string(data)))}
}

// immediateScheduler runs tasks right away.
type immediateScheduler struct{}

func (immediateScheduler) AfterFunc(_ time.Duration, f func()) {
	f()
}
