package volcasr

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// clientFrame 测试侧解析的客户端帧
type clientFrame struct {
	msgType messageType
	flags   messageTypeFlags
	seq     int32
	payload []byte
}

// parseClientFrame decodes a frame the way the backend would.
func parseClientFrame(data []byte) (*clientFrame, error) {
	if len(data) < 8 {
		return nil, errors.New("frame too short")
	}
	headerSize := int(data[0]&0x0f) * 4
	f := &clientFrame{
		msgType: messageType(data[1] >> 4),
		flags:   messageTypeFlags(data[1] & 0x0f),
	}
	compression := compressionType(data[2] & 0x0f)

	buf := bytes.NewReader(data[headerSize:])
	if f.flags.hasSequence() {
		if err := binary.Read(buf, binary.BigEndian, &f.seq); err != nil {
			return nil, err
		}
	}
	var payloadSize uint32
	if err := binary.Read(buf, binary.BigEndian, &payloadSize); err != nil {
		return nil, err
	}
	if buf.Len() > 0 {
		f.payload = make([]byte, buf.Len())
		buf.Read(f.payload)
		if compression == compressionGzip {
			decompressed, err := gzipDecompress(f.payload)
			if err != nil {
				return nil, err
			}
			f.payload = decompressed
		}
	}
	return f, nil
}

// fakeBackend is an in-process stand-in for the recognition service. The
// handler receives the upgraded socket; frames it reads are forwarded on
// frames for the test body to assert on.
type fakeBackend struct {
	server  *httptest.Server
	headers chan http.Header
	frames  chan *clientFrame
}

func newFakeBackend(t *testing.T, handler func(conn *websocket.Conn, frames chan *clientFrame)) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		headers: make(chan http.Header, 1),
		frames:  make(chan *clientFrame, 256),
	}
	upgrader := websocket.Upgrader{}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case b.headers <- r.Header.Clone():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, b.frames)
	}))
	t.Cleanup(b.server.Close)
	return b
}

// url returns the backend address as a ws:// URL.
func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *fakeBackend) client(opts ...Option) *Client {
	opts = append([]Option{WithAccessKey("test-key"), WithWebSocketURL(b.url())}, opts...)
	return NewClient("test-app", opts...)
}

// readClientFrame reads one frame off the socket and forwards it.
func readClientFrame(conn *websocket.Conn, frames chan *clientFrame) (*clientFrame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame, err := parseClientFrame(data)
	if err != nil {
		return nil, err
	}
	frames <- frame
	return frame, nil
}

// ackFrame builds the handshake acknowledgment.
func ackFrame(t *testing.T) []byte {
	return serverFrame(t, msgTypeFullServer, msgFlagPosSequence, 1, 0, nil)
}

func resultFrame(t *testing.T, seq int32, text string, last bool) []byte {
	payload, err := json.Marshal(map[string]any{"result": map[string]any{"text": text}})
	if err != nil {
		t.Fatal(err)
	}
	flags := msgFlagPosSequence
	if last {
		flags = msgFlagNegWithSeq
		seq = -seq
	}
	return serverFrame(t, msgTypeFullServer, flags, seq, 0, payload)
}

func TestOpenStreamHandshake(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		// Keep the socket open until the client closes it.
		conn.ReadMessage()
	})

	client := backend.client(WithUserID("alice"))
	session, err := client.OpenStream(context.Background(), &StreamConfig{
		SampleRate: 16000,
		EnableITN:  true,
		EnablePunc: true,
	})
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer session.Close()

	headers := <-backend.headers
	if got := headers.Get("X-Api-App-Key"); got != "test-app" {
		t.Errorf("X-Api-App-Key = %q, want %q", got, "test-app")
	}
	if got := headers.Get("X-Api-Access-Key"); got != "test-key" {
		t.Errorf("X-Api-Access-Key = %q, want %q", got, "test-key")
	}
	if got := headers.Get("X-Api-Resource-Id"); got != ResourceStream {
		t.Errorf("X-Api-Resource-Id = %q, want %q", got, ResourceStream)
	}
	if headers.Get("X-Api-Connect-Id") == "" {
		t.Error("X-Api-Connect-Id header missing")
	}

	frame := <-backend.frames
	if frame.msgType != msgTypeFullClient {
		t.Errorf("handshake msgType = %#04b, want %#04b", frame.msgType, msgTypeFullClient)
	}
	if frame.seq != 1 {
		t.Errorf("handshake sequence = %d, want 1", frame.seq)
	}

	var payload handshakeRequest
	if err := json.Unmarshal(frame.payload, &payload); err != nil {
		t.Fatalf("decode handshake payload: %v", err)
	}
	if payload.User.UID != "alice" {
		t.Errorf("user uid = %q, want %q", payload.User.UID, "alice")
	}
	if payload.Audio.Rate != 16000 || payload.Audio.Format != "pcm" {
		t.Errorf("audio params = %+v, want rate 16000 format pcm", payload.Audio)
	}
	if !payload.Request.EnableITN || !payload.Request.EnablePunc {
		t.Errorf("request params = %+v, want itn and punc enabled", payload.Request)
	}
}

func TestOpenStreamRejected(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage,
			serverFrame(t, msgTypeError, msgFlagNoSequence, 0, 45000001, []byte(`{"error":"invalid request"}`)))
	})

	_, err := backend.client().OpenStream(context.Background(), nil)
	if err == nil {
		t.Fatal("OpenStream() expected error, got nil")
	}
	serverErr, ok := AsError(err)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if serverErr.Code != 45000001 {
		t.Errorf("Code = %d, want 45000001", serverErr.Code)
	}
	if serverErr.Message != "invalid request" {
		t.Errorf("Message = %q, want %q", serverErr.Message, "invalid request")
	}
}

func TestOpenStreamNotConfigured(t *testing.T) {
	client := NewClient("test-app") // no access key
	if _, err := client.OpenStream(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("OpenStream() error = %v, want ErrNotConfigured", err)
	}
}

func TestStreamSequenceAndDrain(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))

		// Two audio chunks, then the terminator.
		for {
			frame, err := readClientFrame(conn, frames)
			if err != nil {
				return
			}
			if frame.seq < 0 {
				break
			}
		}

		conn.WriteMessage(websocket.BinaryMessage, resultFrame(t, 2, "hel", false))
		conn.WriteMessage(websocket.BinaryMessage, resultFrame(t, 4, "hello", true))
		conn.ReadMessage()
	})

	session, err := backend.client().OpenStream(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer session.Close()

	ctx := context.Background()
	if err := session.SendAudio(ctx, []byte{1, 2, 3, 4}, false); err != nil {
		t.Fatalf("SendAudio(chunk 1) error = %v", err)
	}
	if err := session.SendAudio(ctx, []byte{5, 6, 7, 8}, false); err != nil {
		t.Fatalf("SendAudio(chunk 2) error = %v", err)
	}
	if err := session.SendAudio(ctx, nil, true); err != nil {
		t.Fatalf("SendAudio(terminal) error = %v", err)
	}

	// Audio after the terminator must be refused.
	if err := session.SendAudio(ctx, []byte{9}, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendAudio after terminal error = %v, want ErrNotConnected", err)
	}

	var texts []string
	for result, err := range session.Recv() {
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		texts = append(texts, result.Text)
		if result.IsLast && result.Text != "hello" {
			t.Errorf("terminal text = %q, want %q", result.Text, "hello")
		}
	}
	if len(texts) != 2 || texts[0] != "hel" || texts[1] != "hello" {
		t.Errorf("texts = %v, want [hel hello]", texts)
	}

	// Frame sequence as the backend saw it: handshake 1, audio 2, 3,
	// terminator -4 with an empty payload.
	wantSeqs := []int32{1, 2, 3, -4}
	for i, want := range wantSeqs {
		select {
		case frame := <-backend.frames:
			if frame.seq != want {
				t.Errorf("frame %d sequence = %d, want %d", i, frame.seq, want)
			}
			if i == len(wantSeqs)-1 {
				if frame.flags != msgFlagNegWithSeq {
					t.Errorf("terminator flags = %#04b, want %#04b", frame.flags, msgFlagNegWithSeq)
				}
				if len(frame.payload) != 0 {
					t.Errorf("terminator payload = %d bytes, want 0", len(frame.payload))
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %d not received by backend", i)
		}
	}
}

func TestRecvServerError(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		conn.WriteMessage(websocket.BinaryMessage, resultFrame(t, 2, "partial", false))
		conn.WriteMessage(websocket.BinaryMessage,
			serverFrame(t, msgTypeError, msgFlagNoSequence, 0, 55000001, []byte(`{"error":"server busy"}`)))
		conn.ReadMessage()
	})

	session, err := backend.client().OpenStream(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer session.Close()

	var results, errs int
	var lastErr error
	for result, err := range session.Recv() {
		if err != nil {
			errs++
			lastErr = err
			continue
		}
		results++
		if result.Text != "partial" {
			t.Errorf("text = %q, want %q", result.Text, "partial")
		}
	}
	if results != 1 {
		t.Errorf("results = %d, want 1", results)
	}
	if errs != 1 {
		t.Fatalf("errors = %d, want exactly 1", errs)
	}
	serverErr, ok := AsError(lastErr)
	if !ok {
		t.Fatalf("error type = %T, want *Error", lastErr)
	}
	if serverErr.Code != 55000001 {
		t.Errorf("Code = %d, want 55000001", serverErr.Code)
	}
}

func TestTerminalResultClosesSocket(t *testing.T) {
	socketClosed := make(chan struct{})
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		for {
			frame, err := readClientFrame(conn, frames)
			if err != nil {
				return
			}
			if frame.seq < 0 {
				break
			}
		}
		conn.WriteMessage(websocket.BinaryMessage, resultFrame(t, 3, "done", true))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(socketClosed)
	})

	session, err := backend.client().OpenStream(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	if err := session.SendAudio(context.Background(), nil, true); err != nil {
		t.Fatalf("SendAudio(terminal) error = %v", err)
	}
	for result, err := range session.Recv() {
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if result.IsLast && result.Text != "done" {
			t.Errorf("terminal text = %q, want %q", result.Text, "done")
		}
	}

	// The final response destroys the session without an explicit Close.
	select {
	case <-socketClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("socket still open after the terminal result")
	}
	if !session.closed() {
		t.Error("session not in a terminal state after the final response")
	}
}

func TestServerErrorClosesSocket(t *testing.T) {
	socketClosed := make(chan struct{})
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		conn.WriteMessage(websocket.BinaryMessage,
			serverFrame(t, msgTypeError, msgFlagNoSequence, 0, 55000001, []byte(`{"error":"server busy"}`)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(socketClosed)
	})

	session, err := backend.client().OpenStream(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	var sawErr bool
	for _, err := range session.Recv() {
		if err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("Recv() finished without the server error")
	}

	select {
	case <-socketClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("socket still open after the server error")
	}
	if !session.closed() {
		t.Error("session not in a terminal state after the server error")
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		conn.ReadMessage()
	})

	session, err := backend.client().OpenStream(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}

	if err := session.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// The result stream must finish, not yield a connection error.
	for _, err := range session.Recv() {
		if err != nil {
			t.Errorf("Recv() after Close error = %v", err)
		}
	}
}

func TestTestConnection(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
			if _, err := readClientFrame(conn, frames); err != nil {
				return
			}
			conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		})
		if err := backend.client().TestConnection(context.Background()); err != nil {
			t.Errorf("TestConnection() error = %v", err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
			if _, err := readClientFrame(conn, frames); err != nil {
				return
			}
			conn.WriteMessage(websocket.BinaryMessage,
				serverFrame(t, msgTypeError, msgFlagNoSequence, 0, 45000001, []byte(`{"error":"bad credentials"}`)))
		})
		err := backend.client().TestConnection(context.Background())
		serverErr, ok := AsError(err)
		if !ok {
			t.Fatalf("error = %v (%T), want *Error", err, err)
		}
		if serverErr.Code != 45000001 {
			t.Errorf("Code = %d, want 45000001", serverErr.Code)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
			if _, err := readClientFrame(conn, frames); err != nil {
				return
			}
			// Withhold the acknowledgment; the client read must time out.
			conn.ReadMessage()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := backend.client().TestConnection(ctx); !errors.Is(err, ErrTimeout) {
			t.Errorf("TestConnection() error = %v, want ErrTimeout", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewClient("test-app")
		if err := client.TestConnection(context.Background()); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("TestConnection() error = %v, want ErrNotConfigured", err)
		}
	})
}

func TestSendAudioCancelled(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, frames chan *clientFrame) {
		if _, err := readClientFrame(conn, frames); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, ackFrame(t))
		conn.ReadMessage()
	})

	session, err := backend.client().OpenStream(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := session.SendAudio(ctx, []byte{1}, false); !errors.Is(err, ErrCancelled) {
		t.Errorf("SendAudio(cancelled ctx) error = %v, want ErrCancelled", err)
	}
}
