package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"pulse/codec"
)

// GeminiDialer opens sessions through the official genai SDK.
type GeminiDialer struct {
	// BaseURL overrides the API host, e.g. for a regional proxy.
	BaseURL string
}

func (d *GeminiDialer) Name() string { return "genai" }

func (d *GeminiDialer) Dial(ctx context.Context, credential string, cfg Config) (Conn, error) {
	cfg = cfg.withDefaults()

	cc := &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	}
	if d.BaseURL != "" {
		cc.HTTPOptions.BaseURL = d.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	type result struct {
		session *genai.Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := client.Live.Connect(ctx, cfg.Model, connectConfig(cfg))
		if err == nil {
			err = awaitSetup(s)
		}
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if r.session != nil {
				r.session.Close()
			}
			return nil, r.err
		}
		return &geminiConn{session: r.session, inputMIME: codec.MIMEType(cfg.InputRate), outputRate: cfg.OutputRate}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.session != nil {
				r.session.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func connectConfig(cfg Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		},
		SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// awaitSetup blocks until the server acknowledges the setup message.
func awaitSetup(s *genai.Session) error {
	for {
		msg, err := s.Receive()
		if err != nil {
			return fmt.Errorf("awaiting setup: %w", classifyReadErr(err, false))
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

type geminiConn struct {
	session    *genai.Session
	inputMIME  string
	outputRate int
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

func (c *geminiConn) Send(chunk codec.Chunk) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return fmt.Errorf("chunk payload: %w", err)
	}
	mime := chunk.MIMEType
	if mime == "" {
		mime = c.inputMIME
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: mime},
	})
}

func (c *geminiConn) Recv() (Message, error) {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			return Message{}, classifyReadErr(err, c.closed.Load())
		}
		m := fromServerMessage(msg, c.outputRate)
		if !m.Empty() {
			return m, nil
		}
	}
}

func (c *geminiConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}

func fromServerMessage(msg *genai.LiveServerMessage, outputRate int) Message {
	var m Message
	sc := msg.ServerContent
	if sc == nil {
		return m
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			m.Audio = base64.StdEncoding.EncodeToString(part.InlineData.Data)
			m.AudioMIME = part.InlineData.MIMEType
			if m.AudioMIME == "" {
				m.AudioMIME = codec.MIMEType(outputRate)
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

// classifyReadErr maps websocket read failures onto ErrClosed and
// RemoteError so callers can tell a clean end from a broken session.
func classifyReadErr(err error, closedLocally bool) error {
	if closedLocally || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ErrClosed
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &RemoteError{Code: ce.Code, Message: ce.Text}
	}
	if msg := err.Error(); strings.HasPrefix(msg, "received error in response") {
		return &RemoteError{Message: strings.TrimPrefix(msg, "received error in response: ")}
	}
	return err
}
