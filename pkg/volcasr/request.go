package volcasr

// ================== 请求结构体 ==================

// userInfo 用户信息
type userInfo struct {
	UID string `json:"uid"`
	DID string `json:"did,omitempty"`
}

// audioParams 音频参数
type audioParams struct {
	Format   string `json:"format"`
	Codec    string `json:"codec,omitempty"`
	Rate     int    `json:"rate"`
	Bits     int    `json:"bits"`
	Channel  int    `json:"channel"`
	Language string `json:"language,omitempty"`
}

// corpusParams 热词/语料增强参数
type corpusParams struct {
	// Context is a caller-supplied JSON string with hot-word boosting
	// context, passed through verbatim.
	Context string `json:"context,omitempty"`

	BoostingTableName string `json:"boosting_table_name,omitempty"`
}

// requestParams 识别参数
type requestParams struct {
	ModelName      string        `json:"model_name"`
	EnableITN      bool          `json:"enable_itn,omitempty"`
	EnablePunc     bool          `json:"enable_punc,omitempty"`
	EnableDDC      bool          `json:"enable_ddc,omitempty"`
	ShowUtterances bool          `json:"show_utterances,omitempty"`
	ResultType     string        `json:"result_type,omitempty"`
	Corpus         *corpusParams `json:"corpus,omitempty"`
}

// handshakeRequest 握手请求体（full-client request 的 JSON payload）
type handshakeRequest struct {
	User    userInfo      `json:"user"`
	Audio   audioParams   `json:"audio"`
	Request requestParams `json:"request"`
}

// StreamConfig represents streaming recognition configuration.
type StreamConfig struct {
	// Audio format. Default: pcm (raw s16le).
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Sample rate in Hz. Default: 16000.
	SampleRate int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`

	// Bits per sample. Default: 16.
	Bits int `json:"bits,omitempty" yaml:"bits,omitempty"`

	// Number of audio channels. Default: 1.
	Channels int `json:"channels,omitempty" yaml:"channels,omitempty"`

	// Language hint, e.g. zh-CN, en-US.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Enable inverse text normalization.
	EnableITN bool `json:"enable_itn,omitempty" yaml:"enable_itn,omitempty"`

	// Enable punctuation.
	EnablePunc bool `json:"enable_punc,omitempty" yaml:"enable_punc,omitempty"`

	// Enable semantic disfluency detection.
	EnableDDC bool `json:"enable_ddc,omitempty" yaml:"enable_ddc,omitempty"`

	// Include utterance detail in results.
	ShowUtterances bool `json:"show_utterances,omitempty" yaml:"show_utterances,omitempty"`

	// Hot-word boosting context as a raw JSON string, passed through to the
	// backend at request-build time.
	HotwordContext string `json:"hotword_context,omitempty" yaml:"hotword_context,omitempty"`

	// Device identifier carried in the handshake payload.
	DeviceID string `json:"device_id,omitempty" yaml:"device_id,omitempty"`
}

// handshakePayload builds the full-client request payload from the config.
func (c *Client) handshakePayload(config *StreamConfig) *handshakeRequest {
	req := &handshakeRequest{
		User: userInfo{
			UID: c.config.userID,
			DID: config.DeviceID,
		},
		Audio: audioParams{
			Format:   "pcm",
			Codec:    "raw",
			Rate:     16000,
			Bits:     16,
			Channel:  1,
			Language: config.Language,
		},
		Request: requestParams{
			ModelName:      "bigmodel",
			EnableITN:      config.EnableITN,
			EnablePunc:     config.EnablePunc,
			EnableDDC:      config.EnableDDC,
			ShowUtterances: config.ShowUtterances,
			ResultType:     "single",
		},
	}

	if config.Format != "" {
		req.Audio.Format = config.Format
	}
	if config.SampleRate > 0 {
		req.Audio.Rate = config.SampleRate
	}
	if config.Bits > 0 {
		req.Audio.Bits = config.Bits
	}
	if config.Channels > 0 {
		req.Audio.Channel = config.Channels
	}
	if config.HotwordContext != "" {
		req.Request.Corpus = &corpusParams{Context: config.HotwordContext}
	}

	return req
}
