package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownType marks a frame whose type field names no known message.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed marks a frame that failed JSON or structural decoding.
	ErrMalformed = errors.New("malformed message")
	// ErrBinaryInbound marks an unexpected binary frame from the server.
	ErrBinaryInbound = errors.New("unexpected binary frame")
)

// StartRecording encodes the start_recording control message.
func StartRecording() []byte {
	return []byte(`{"type":"start_recording"}`)
}

// StopRecording encodes the stop_recording control message.
func StopRecording() []byte {
	return []byte(`{"type":"stop_recording"}`)
}

// ConfigMessage encodes a config control message. A missing task is filled
// with DefaultTask so the server never sees an unset task.
func ConfigMessage(cfg SessionConfig) ([]byte, error) {
	if cfg.Task == "" {
		cfg.Task = DefaultTask
	}
	msg := struct {
		Type   string        `json:"type"`
		Config SessionConfig `json:"config"`
	}{Type: "config", Config: cfg}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// EncodePCM packs mono samples as little-endian float32, the server's only
// accepted binary payload. One frame per call, no envelope.
func EncodePCM(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a text frame into its typed message. Unknown or malformed
// frames return an error wrapping ErrUnknownType or ErrMalformed; the caller
// drops them without touching the connection.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case "ready":
		msg, err = decodeAs[Ready](data)
	case "config_updated":
		msg, err = decodeAs[ConfigUpdated](data)
	case "recording_started":
		msg, err = decodeAs[RecordingStarted](data)
	case "recording_stopped":
		msg, err = decodeAs[RecordingStopped](data)
	case "speech_started":
		msg, err = decodeAs[SpeechStarted](data)
	case "speech_ended":
		msg, err = decodeAs[SpeechEnded](data)
	case "vad_status":
		msg, err = decodeAs[VADStatus](data)
	case "status":
		msg, err = decodeAs[Status](data)
	case "processing":
		msg, err = decodeAs[Processing](data)
	case "result":
		msg, err = decodeAs[Result](data)
	case "error":
		msg, err = decodeAs[ServerError](data)
	case "":
		return nil, fmt.Errorf("%w: missing type field", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
