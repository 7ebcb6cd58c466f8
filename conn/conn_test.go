package conn

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/body"
	"github.com/AlexaFrom/routine-http/handler"
	"github.com/AlexaFrom/routine-http/scheduler"
)

// newHarness wires a Scheduler with an empty CPU pool (so PrepareTask
// runs synchronously, per pool.Submit's zero-worker fallback) and
// starts the driver over one half of an in-memory net.Pipe, returning
// the other half for the test to act as a client with.
func newHarness(t *testing.T, register func(s *scheduler.Scheduler)) (client net.Conn, done <-chan struct{}) {
	t.Helper()
	s := scheduler.New(nil)
	if register != nil {
		register(s)
	}

	server, clientConn := net.Pipe()
	driver := NewDriver(nil)

	d := make(chan struct{})
	go func() {
		driver(context.Background(), s, server)
		close(d)
	}()

	t.Cleanup(func() { clientConn.Close() })
	return clientConn, d
}

func readResponse(t *testing.T, client net.Conn) string {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return string(buf[:n])
}

func TestRoundTripAndClientRequestedClose(t *testing.T) {
	client, done := newHarness(t, func(s *scheduler.Scheduler) {
		s.Router().Register("/hi", handler.FactoryFunc(func(req *rhttp.Request) *rhttp.Response {
			return rhttp.NewTextResponse(rhttp.StatusOK, "hello")
		}))
	})

	if _, err := client.Write([]byte("GET /hi HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK") {
		t.Fatalf("response = %q, want 200 OK prefix", resp)
	}
	if !strings.HasSuffix(resp, "hello") {
		t.Fatalf("response = %q, want body hello", resp)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not exit after Connection: close")
	}
}

func TestKeepAliveServesMultipleRequests(t *testing.T) {
	client, done := newHarness(t, func(s *scheduler.Scheduler) {
		s.Router().Register("/ping", handler.FactoryFunc(func(req *rhttp.Request) *rhttp.Response {
			return rhttp.NewTextResponse(rhttp.StatusOK, "pong")
		}))
	})

	for i := 0; i < 2; i++ {
		if _, err := client.Write([]byte("GET /ping HTTP/1.1\r\n\r\n")); err != nil {
			t.Fatalf("write request %d: %v", i, err)
		}
		resp := readResponse(t, client)
		if !strings.HasSuffix(resp, "pong") {
			t.Fatalf("request %d: response = %q, want body pong", i, resp)
		}
	}

	if _, err := client.Write([]byte("GET /ping HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write closing request: %v", err)
	}
	readResponse(t, client)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not exit after final Connection: close")
	}
}

func TestChunkedTransferEncodingRejected(t *testing.T) {
	client, done := newHarness(t, nil)

	req := "POST /anything HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 501") {
		t.Fatalf("response = %q, want 501 prefix", resp)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not close connection after chunked rejection")
	}
}

func TestRouteMissReturns404(t *testing.T) {
	client, _ := newHarness(t, nil)

	if _, err := client.Write([]byte("GET /nope HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 404") {
		t.Fatalf("response = %q, want 404 prefix", resp)
	}
}

// jsonEchoHandler installs a Json sink in Prepare and, in Process,
// echoes the "message" field or a fallback when absent — the literal
// scenario from the spec's JSON prepare walkthrough.
type jsonEchoHandler struct{}

func (jsonEchoHandler) Prepare(req *rhttp.Request) *rhttp.Response {
	req.Body = body.NewJson()
	return nil
}

func (jsonEchoHandler) Process(req *rhttp.Request) *rhttp.Response {
	jb, _ := req.Body.(*body.JsonBody)
	if jb != nil {
		if m, ok := jb.Value().(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				return rhttp.NewTextResponse(rhttp.StatusOK, msg)
			}
		}
	}
	return rhttp.NewTextResponse(rhttp.StatusOK, "No message")
}

func TestJsonPrepareSinkEchoesMessageField(t *testing.T) {
	client, _ := newHarness(t, func(s *scheduler.Scheduler) {
		s.Router().Register("/api/echo", handler.Factory(func() handler.Handler {
			return jsonEchoHandler{}
		}))
	})

	payload := `{"message":"hello"}`
	req := "POST /api/echo HTTP/1.1\r\nContent-Length: " + strconv.Itoa(len(payload)) +
		"\r\nContent-Type: application/json\r\nConnection: close\r\n\r\n" + payload
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp := readResponse(t, client)
	if !strings.HasSuffix(resp, "hello") {
		t.Fatalf("response = %q, want body hello", resp)
	}
}

func TestTimeoutDuringHeaderReadClosesWithNoResponse(t *testing.T) {
	s := scheduler.New(nil)
	s.SetIOTimeout(50 * time.Millisecond)

	server, client := net.Pipe()
	driver := NewDriver(nil)

	done := make(chan struct{})
	go func() {
		driver(context.Background(), s, server)
		close(done)
	}()
	t.Cleanup(func() { client.Close() })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not close connection after header-read timeout")
	}

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	if n, err := client.Read(buf); err == nil {
		t.Fatalf("expected no response bytes on timeout, got %d bytes", n)
	}
}

func TestOversizeHeadersRejectedWith431(t *testing.T) {
	s := scheduler.New(nil)
	s.SetMaxHeaderBytes(32)

	server, client := net.Pipe()
	driver := NewDriver(nil)

	done := make(chan struct{})
	go func() {
		driver(context.Background(), s, server)
		close(done)
	}()
	t.Cleanup(func() { client.Close() })

	go func() {
		client.Write([]byte("GET /x HTTP/1.1\r\n"))
		client.Write([]byte("X-Padding: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\n"))
	}()

	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 431") {
		t.Fatalf("response = %q, want 431 prefix", resp)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not exit after oversize headers")
	}
}

func TestRequestBodyReachesHandler(t *testing.T) {
	client, _ := newHarness(t, func(s *scheduler.Scheduler) {
		s.Router().Register("/echo", handler.FactoryFunc(func(req *rhttp.Request) *rhttp.Response {
			return rhttp.NewTextResponse(rhttp.StatusOK, req.Body.String())
		}))
	})

	payload := "request body"
	req := "POST /echo HTTP/1.1\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\nConnection: close\r\n\r\n" + payload
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp := readResponse(t, client)
	if !strings.HasSuffix(resp, payload) {
		t.Fatalf("response = %q, want body %q", resp, payload)
	}
}
