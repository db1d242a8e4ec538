// Package volcasr provides a streaming speech recognition client for the
// Volcengine BigModel ASR (SAUC) WebSocket API.
//
// # Authentication
//
//	client := volcasr.NewClient(appID, volcasr.WithAccessKey(key))
//	// Headers:
//	//   X-Api-App-Key: {app_id}
//	//   X-Api-Access-Key: {key}
//	//   X-Api-Resource-Id: {resource_id}
//	//   X-Api-Connect-Id: {fresh uuid per connection}
//
// # Streaming
//
//	session, err := client.OpenStream(ctx, &volcasr.StreamConfig{
//	    SampleRate: 16000,
//	    EnableITN:  true,
//	    EnablePunc: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	session.SendAudio(ctx, chunk, false)
//	session.SendAudio(ctx, nil, true)
//
//	for result, err := range session.Recv() {
//	    ...
//	}
package volcasr

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultWSURL   = "wss://openspeech.bytedance.com"
	streamEndpoint = "/api/v3/sauc/bigmodel"

	// handshakeTimeout bounds the wait for the handshake acknowledgment
	// during TestConnection.
	handshakeTimeout = 10 * time.Second
)

// Resource IDs for the streaming ASR service.
const (
	ResourceStream   = "volc.bigasr.sauc.duration"  // 大模型流式语音识别 (时长版)
	ResourceStreamV2 = "volc.seedasr.sauc.duration" // 大模型流式语音识别 2.0
)

// Client represents a streaming ASR client.
type Client struct {
	config *clientConfig
}

// clientConfig represents client configuration
type clientConfig struct {
	appID      string
	accessKey  string
	resourceID string
	wsURL      string
	userID     string
}

// Option represents configuration option function
type Option func(*clientConfig)

// NewClient creates a streaming ASR client.
//
// appID is the application ID from the console.
func NewClient(appID string, opts ...Option) *Client {
	config := &clientConfig{
		appID:      appID,
		resourceID: ResourceStream,
		wsURL:      defaultWSURL,
		userID:     "default_user",
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Client{config: config}
}

// WithAccessKey sets the access key credential.
//
// Header format: X-Api-Access-Key: {key}
func WithAccessKey(key string) Option {
	return func(c *clientConfig) {
		c.accessKey = key
	}
}

// WithResourceID selects the recognition resource.
//
// Default: ResourceStream.
func WithResourceID(resourceID string) Option {
	return func(c *clientConfig) {
		c.resourceID = resourceID
	}
}

// WithWebSocketURL sets the WebSocket URL.
//
// Default: wss://openspeech.bytedance.com
func WithWebSocketURL(url string) Option {
	return func(c *clientConfig) {
		c.wsURL = url
	}
}

// WithUserID sets the user identifier carried in the handshake payload.
func WithUserID(userID string) Option {
	return func(c *clientConfig) {
		c.userID = userID
	}
}

// wsHeaders returns the connection-establishment headers. connectID must be
// unique per connection.
func (c *Client) wsHeaders(connectID string) http.Header {
	headers := http.Header{}
	headers.Set("X-Api-App-Key", c.config.appID)
	headers.Set("X-Api-Access-Key", c.config.accessKey)
	headers.Set("X-Api-Resource-Id", c.config.resourceID)
	headers.Set("X-Api-Connect-Id", connectID)
	return headers
}

// newConnectID generates a fresh per-connection request identifier.
func newConnectID() string {
	return uuid.NewString()
}
