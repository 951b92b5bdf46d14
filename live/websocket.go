package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pulse/codec"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second
	closeGrace            = 2 * time.Second
)

// WebSocketDialer speaks the BidiGenerateContent JSON protocol directly.
// Endpoint may point at a proxy; the credential goes in x-goog-api-key.
type WebSocketDialer struct {
	Endpoint string
	Timeout  time.Duration
}

func (d *WebSocketDialer) Name() string { return "websocket" }

type wireSetup struct {
	Setup wireSetupBody `json:"setup"`
}

type wireSetupBody struct {
	Model                    string        `json:"model"`
	GenerationConfig         wireGenConfig `json:"generationConfig"`
	SystemInstruction        *wireContent  `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}     `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}     `json:"outputAudioTranscription,omitempty"`
}

type wireGenConfig struct {
	ResponseModalities []string          `json:"responseModalities"`
	SpeechConfig       *wireSpeechConfig `json:"speechConfig,omitempty"`
}

type wireSpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireRealtimeInput struct {
	RealtimeInput struct {
		Audio wireBlob `json:"audio"`
	} `json:"realtimeInput"`
}

type wireServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		ModelTurn           *wireContent `json:"modelTurn,omitempty"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription,omitempty"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription,omitempty"`
		TurnComplete bool `json:"turnComplete,omitempty"`
		Interrupted  bool `json:"interrupted,omitempty"`
	} `json:"serverContent,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func setupMessage(cfg Config) wireSetup {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	body := wireSetupBody{
		Model: model,
		GenerationConfig: wireGenConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		sc := &wireSpeechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
		body.GenerationConfig.SpeechConfig = sc
	}
	if cfg.SystemInstruction != "" {
		body.SystemInstruction = &wireContent{Parts: []wirePart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		body.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		body.OutputAudioTranscription = &struct{}{}
	}
	return wireSetup{Setup: body}
}

func (d *WebSocketDialer) Dial(ctx context.Context, credential string, cfg Config) (Conn, error) {
	cfg = cfg.withDefaults()
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", credential)

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	// Close on ctx cancel so the handshake read below unblocks.
	stop := context.AfterFunc(dialCtx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(setupMessage(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := dialCtx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetReadDeadline(deadline)
	for {
		msg, err := readServerMessage(conn)
		if err != nil {
			conn.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("awaiting setupComplete: %w", classifyReadErr(err, false))
		}
		if msg.Error != nil {
			conn.Close()
			return nil, &RemoteError{Code: msg.Error.Code, Message: msg.Error.Message}
		}
		if msg.SetupComplete != nil {
			break
		}
	}
	conn.SetReadDeadline(time.Time{})

	return &wsConn{conn: conn, inputMIME: codec.MIMEType(cfg.InputRate), outputRate: cfg.OutputRate}, nil
}

func readServerMessage(conn *websocket.Conn) (wireServerMessage, error) {
	var msg wireServerMessage
	// The server sends JSON in binary frames; text frames are accepted too.
	_, data, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode server message: %w", err)
	}
	return msg, nil
}

type wsConn struct {
	conn       *websocket.Conn
	inputMIME  string
	outputRate int

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *wsConn) Send(chunk codec.Chunk) error {
	if c.closed.Load() {
		return ErrClosed
	}
	var msg wireRealtimeInput
	msg.RealtimeInput.Audio = wireBlob{Data: chunk.Data, MIMEType: chunk.MIMEType}
	if msg.RealtimeInput.Audio.MIMEType == "" {
		msg.RealtimeInput.Audio.MIMEType = c.inputMIME
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (c *wsConn) Recv() (Message, error) {
	for {
		msg, err := readServerMessage(c.conn)
		if err != nil {
			return Message{}, classifyReadErr(err, c.closed.Load())
		}
		if msg.Error != nil {
			return Message{}, &RemoteError{Code: msg.Error.Code, Message: msg.Error.Message}
		}
		if m := c.toMessage(msg); !m.Empty() {
			return m, nil
		}
	}
}

func (c *wsConn) toMessage(msg wireServerMessage) Message {
	var m Message
	sc := msg.ServerContent
	if sc == nil {
		return m
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			m.Audio = p.InlineData.Data
			m.AudioMIME = p.InlineData.MIMEType
			if m.AudioMIME == "" {
				m.AudioMIME = codec.MIMEType(c.outputRate)
			}
			break
		}
	}
	if sc.OutputTranscription != nil {
		m.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.InputTranscription != nil {
		m.InputTranscript = sc.InputTranscription.Text
	}
	m.TurnComplete = sc.TurnComplete
	m.Interrupted = sc.Interrupted
	return m
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		// WriteControl may run concurrently with a blocked Send.
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.conn.Close()
	})
	return nil
}
