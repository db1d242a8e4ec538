package volcasr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sessionState 会话生命周期状态
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateAwaitingAck
	stateStreaming
	stateDraining
	stateClosed
	stateErrored
)

func (s sessionState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateAwaitingAck:
		return "awaiting-ack"
	case stateStreaming:
		return "streaming"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	case stateErrored:
		return "errored"
	}
	return "unknown"
}

// StreamSession represents one streaming recognition session.
//
// The sequence counter, state and socket are owned by the session and only
// mutated under its mutex; callers interact through method calls.
type StreamSession struct {
	conn      *websocket.Conn
	client    *Client
	config    *StreamConfig
	connectID string

	jsonProto  *binaryProtocol
	audioProto *binaryProtocol

	recvChan  chan *Result
	errChan   chan error
	closeChan chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	state    sessionState
	sequence int32
}

// OpenStream opens a streaming recognition session.
//
// It dials the backend, performs the handshake (one full-client request, one
// acknowledgment frame) and starts the receive loop. A handshake rejection is
// returned as *Error; the socket is closed before returning any error.
func (c *Client) OpenStream(ctx context.Context, config *StreamConfig) (*StreamSession, error) {
	if c.config.accessKey == "" {
		return nil, ErrNotConfigured
	}
	if config == nil {
		config = &StreamConfig{}
	}

	session := &StreamSession{
		client:     c,
		config:     config,
		connectID:  newConnectID(),
		jsonProto:  newBinaryProtocol(),
		audioProto: &binaryProtocol{version: protocolVersionV1, headerSize: 1, serialization: serializationNone, compression: compressionGzip},
		recvChan:   make(chan *Result, 100),
		errChan:    make(chan error, 1),
		closeChan:  make(chan struct{}),
		state:      stateConnecting,
	}

	endpoint := c.config.wsURL + streamEndpoint
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, c.wsHeaders(session.connectID))
	if err != nil {
		session.state = stateErrored
		if errors.Is(err, context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	session.conn = conn
	session.state = stateAwaitingAck

	if err := session.handshake(ctx); err != nil {
		session.mu.Lock()
		session.state = stateErrored
		session.mu.Unlock()
		conn.Close()
		return nil, err
	}

	session.mu.Lock()
	session.state = stateStreaming
	session.mu.Unlock()

	go session.receiveLoop()

	return session, nil
}

// handshake sends the full-client request and blocks for exactly one
// response frame.
func (s *StreamSession) handshake(ctx context.Context) error {
	payload, err := json.Marshal(s.client.handshakePayload(s.config))
	if err != nil {
		return wrapError(err, "marshal handshake payload")
	}

	frame, err := s.jsonProto.marshal(&message{
		msgType:  msgTypeFullClient,
		flags:    msgFlagPosSequence,
		sequence: s.nextSequence(),
		payload:  payload,
	})
	if err != nil {
		return err
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return &ConnectionError{Op: "send handshake", Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
		defer s.conn.SetReadDeadline(time.Time{})
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout
		}
		return &ConnectionError{Op: "read handshake ack", Err: err}
	}

	msg, err := s.jsonProto.unmarshal(data)
	if err != nil {
		return err
	}
	if msg.msgType == msgTypeError || msg.errorCode != 0 {
		return parseServerError(msg)
	}

	slog.Debug("volcasr: handshake acknowledged", "connect_id", s.connectID, "sequence", msg.sequence)
	return nil
}

// nextSequence returns the next positive sequence number. The counter starts
// at 1 and increases by exactly 1 per request.
func (s *StreamSession) nextSequence() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

// SendAudio sends one chunk of PCM audio.
//
// If isLast is true the chunk is sent as the stream terminator: a zero-length
// payload tagged with the last-package flag and the negation of the next
// sequence value. No audio may be sent after the terminator; the session
// enters the draining state and keeps yielding results until the terminal
// result arrives.
func (s *StreamSession) SendAudio(ctx context.Context, audio []byte, isLast bool) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
	}

	s.mu.Lock()
	if s.state != stateStreaming {
		s.mu.Unlock()
		return fmt.Errorf("%w (state=%s)", ErrNotConnected, s.state)
	}

	s.sequence++
	msg := &message{
		msgType:  msgTypeAudioOnlyClient,
		flags:    msgFlagPosSequence,
		sequence: s.sequence,
		payload:  audio,
	}
	if isLast {
		msg.flags = msgFlagNegWithSeq
		msg.sequence = -s.sequence
		msg.payload = nil
		s.state = stateDraining
	}
	s.mu.Unlock()

	frame, err := s.audioProto.marshal(msg)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return &ConnectionError{Op: "send audio", Err: err}
	}

	slog.Debug("volcasr: audio chunk sent", "sequence", msg.sequence, "bytes", len(audio), "last", isLast)
	return nil
}

// Recv returns an iterator over recognition results.
//
// The iterator finishes after the terminal result. On failure it yields
// exactly one final error and finishes; no further results follow.
func (s *StreamSession) Recv() iter.Seq2[*Result, error] {
	return func(yield func(*Result, error) bool) {
		for result := range s.recvChan {
			if !yield(result, nil) {
				return
			}
			if result.IsLast {
				return
			}
		}
		// The receive loop records its failure before closing the channel,
		// so pending results always drain first.
		select {
		case err := <-s.errChan:
			yield(nil, err)
		default:
		}
	}
}

// Close releases the socket and finishes the result stream. It is idempotent
// and treats the resulting socket teardown as a clean close, not an error.
func (s *StreamSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.state != stateErrored {
			s.state = stateClosed
		}
		s.mu.Unlock()
		close(s.closeChan)
		s.conn.Close()
	})
	return nil
}

// closed reports whether the session reached a terminal state.
func (s *StreamSession) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed || s.state == stateErrored
}

// fail pushes a final error and tears the session down, releasing the socket.
func (s *StreamSession) fail(err error) {
	s.mu.Lock()
	s.state = stateErrored
	s.mu.Unlock()
	select {
	case s.errChan <- err:
	default:
	}
	s.Close()
}

// receiveLoop pulls frames off the socket for the lifetime of the session
// and classifies each as a normal or terminal result.
func (s *StreamSession) receiveLoop() {
	defer close(s.recvChan)

	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Expected outcome of Close; not an error.
			if s.closed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.fail(&ConnectionError{Op: "read frame", Err: err})
			return
		}

		msg, err := s.jsonProto.unmarshal(data)
		if err != nil {
			s.fail(err)
			return
		}

		if msg.msgType == msgTypeError {
			s.fail(parseServerError(msg))
			return
		}

		result, err := parseResult(msg)
		if err != nil {
			s.fail(err)
			return
		}

		select {
		case s.recvChan <- result:
		case <-s.closeChan:
			return
		}

		if result.IsLast {
			// The final response destroys the session; the socket must not
			// outlive it.
			s.Close()
			return
		}
	}
}

// TestConnection validates the stored credentials by performing only the
// connect and handshake phases, then closing. The handshake wait is bounded
// by a 10 second timeout; a timeout and a server rejection fail distinctly
// (ErrTimeout versus *Error).
func (c *Client) TestConnection(ctx context.Context) error {
	if c.config.accessKey == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	session := &StreamSession{
		client:    c,
		config:    &StreamConfig{},
		connectID: newConnectID(),
		jsonProto: newBinaryProtocol(),
		state:     stateConnecting,
	}

	endpoint := c.config.wsURL + streamEndpoint
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, c.wsHeaders(session.connectID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()
	session.conn = conn
	session.state = stateAwaitingAck

	return session.handshake(ctx)
}
