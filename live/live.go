// Package live connects to a bidirectional realtime model session: PCM
// chunks go out, synthesized audio and transcriptions come back.
package live

import (
	"context"
	"errors"
	"fmt"

	"pulse/codec"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice = "Kore"
)

const DefaultSystemInstruction = `You are "The Pulse", a high-performance, low-latency cognitive engine.
Your goal is to be a seamless extension of the user's thought process.
Keep responses concise, insight-dense, and conversational.
Do not use markdown formatting in your spoken responses.
Focus on "Logic Pulses" - extracting the core intent and meaning rapidly.`

// ErrClosed is returned by Recv once the session ended cleanly, either
// because the remote closed normally or Close was called locally.
var ErrClosed = errors.New("live session closed")

type Config struct {
	Model               string
	Voice               string
	SystemInstruction   string
	InputRate           int
	OutputRate          int
	InputTranscription  bool
	OutputTranscription bool
}

func DefaultConfig() Config {
	return Config{
		Model:               DefaultModel,
		Voice:               DefaultVoice,
		SystemInstruction:   DefaultSystemInstruction,
		InputRate:           codec.InputSampleRate,
		OutputRate:          codec.OutputSampleRate,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// withDefaults fills zero fields from DefaultConfig. The transcription
// switches are taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = d.SystemInstruction
	}
	if c.InputRate == 0 {
		c.InputRate = d.InputRate
	}
	if c.OutputRate == 0 {
		c.OutputRate = d.OutputRate
	}
	return c
}

// Message is one inbound server message reduced to the fields the session
// reacts to. Audio is base64 PCM16 at the output rate.
type Message struct {
	Audio            string
	AudioMIME        string
	OutputTranscript string
	InputTranscript  string
	TurnComplete     bool
	Interrupted      bool
}

func (m Message) Empty() bool {
	return m.Audio == "" && m.OutputTranscript == "" && m.InputTranscript == "" &&
		!m.TurnComplete && !m.Interrupted
}

// Conn is an open session. Send may be called concurrently with Recv;
// Close unblocks a pending Recv and may be called more than once.
type Conn interface {
	Send(chunk codec.Chunk) error
	Recv() (Message, error)
	Close() error
}

type Dialer interface {
	Name() string
	Dial(ctx context.Context, credential string, cfg Config) (Conn, error)
}

// RemoteError is an error frame reported by the server.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	}
	return "remote error: " + e.Message
}
