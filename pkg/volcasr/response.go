package volcasr

import "encoding/json"

// Result represents one unit of recognition progress.
type Result struct {
	// Text is the recognized text so far. May be partial or empty.
	Text string `json:"text"`

	// Utterances carries utterance detail when requested.
	Utterances []Utterance `json:"utterances,omitempty"`

	// IsLast reports whether this is the terminal result of the session.
	IsLast bool `json:"is_last"`

	// Sequence is the server-reported sequence number of the frame this
	// result arrived in.
	Sequence int32 `json:"sequence"`
}

// Utterance represents a single utterance in a recognition result.
type Utterance struct {
	Text      string `json:"text"`
	StartTime int    `json:"start_time"` // milliseconds
	EndTime   int    `json:"end_time"`   // milliseconds
	Definite  bool   `json:"definite"`
	Words     []Word `json:"words,omitempty"`
}

// Word represents a word in an utterance.
type Word struct {
	Text      string `json:"text"`
	StartTime int    `json:"start_time"`
	EndTime   int    `json:"end_time"`
}

// responsePayload 服务端响应 payload
type responsePayload struct {
	Result *struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text      string `json:"text"`
			StartTime int    `json:"start_time"`
			EndTime   int    `json:"end_time"`
			Definite  bool   `json:"definite"`
			Words     []struct {
				Text      string `json:"text"`
				StartTime int    `json:"start_time"`
				EndTime   int    `json:"end_time"`
			} `json:"words,omitempty"`
		} `json:"utterances,omitempty"`
	} `json:"result"`

	Error string `json:"error,omitempty"`
}

// parseResult converts a full-server-response message into a Result.
func parseResult(msg *message) (*Result, error) {
	result := &Result{
		Sequence: msg.sequence,
		IsLast:   msg.flags.isLast() || msg.sequence < 0,
	}

	if len(msg.payload) == 0 {
		return result, nil
	}

	var payload responsePayload
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		return nil, &ProtocolError{Reason: "decode result payload", Err: err}
	}
	if payload.Error != "" {
		return nil, &Error{Code: msg.errorCode, Message: payload.Error}
	}
	if payload.Result == nil {
		return result, nil
	}

	result.Text = payload.Result.Text
	for _, u := range payload.Result.Utterances {
		utt := Utterance{
			Text:      u.Text,
			StartTime: u.StartTime,
			EndTime:   u.EndTime,
			Definite:  u.Definite,
		}
		for _, w := range u.Words {
			utt.Words = append(utt.Words, Word{
				Text:      w.Text,
				StartTime: w.StartTime,
				EndTime:   w.EndTime,
			})
		}
		result.Utterances = append(result.Utterances, utt)
	}

	return result, nil
}

// parseServerError converts a server-error-response message into an *Error.
func parseServerError(msg *message) *Error {
	e := &Error{Code: msg.errorCode}
	var payload responsePayload
	if len(msg.payload) > 0 && json.Unmarshal(msg.payload, &payload) == nil && payload.Error != "" {
		e.Message = payload.Error
	} else {
		e.Message = string(msg.payload)
	}
	return e
}
