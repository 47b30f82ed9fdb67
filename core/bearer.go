package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// BearerToken is the client-held credential: a signed challenge
type BearerToken struct {
	Message       ChallengeMessage
	Signature     string
	MessageFormat MessageFormat
}

type bearerEnvelope struct {
	Message       json.RawMessage `json:"message"`
	Signature     json.RawMessage `json:"signature"`
	MessageFormat string          `json:"messageFormat"`
}

// DecodeBearerToken unwraps the base64 envelope, falling back to bare JSON
// for clients that do not wrap it.
func DecodeBearerToken(raw string) (*BearerToken, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	signature, ok := jsonString(env.Signature)
	if !ok || signature == "" {
		return nil, fmt.Errorf("signature must be a non-empty string: %w", ErrInvalidToken)
	}

	msg, err := envelopeMessage(env.Message)
	if err != nil {
		return nil, err
	}

	format := MessageFormat(env.MessageFormat)
	if format == "" {
		format = msg.Format()
	}

	return &BearerToken{
		Message:       msg,
		Signature:     signature,
		MessageFormat: format,
	}, nil
}

// Encode wraps the token the way clients do: base64 of the JSON envelope
func (t *BearerToken) Encode() (string, error) {
	var message json.RawMessage
	switch m := t.Message.(type) {
	case TextChallenge:
		b, err := json.Marshal(m.Text)
		if err != nil {
			return "", err
		}
		message = b
	case StructuredChallenge:
		message = m.Raw
	default:
		return "", ErrMalformedMessage
	}

	signature, err := json.Marshal(t.Signature)
	if err != nil {
		return "", err
	}

	format := t.MessageFormat
	if format == "" {
		format = t.Message.Format()
	}

	b, err := json.Marshal(bearerEnvelope{
		Message:       message,
		Signature:     signature,
		MessageFormat: string(format),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode bearer token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeEnvelope(raw string) (*bearerEnvelope, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		decoded, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		var env bearerEnvelope
		if err := json.Unmarshal(decoded, &env); err == nil {
			return &env, nil
		}
	}

	var env bearerEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("token is neither base64 json nor json: %w", ErrInvalidToken)
	}
	return &env, nil
}

func envelopeMessage(raw json.RawMessage) (ChallengeMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("missing message: %w", ErrInvalidToken)
	}

	if text, ok := jsonString(raw); ok {
		if text == "" {
			return nil, fmt.Errorf("empty message: %w", ErrInvalidToken)
		}
		return TextChallenge{Text: text}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("message must be a string or an object: %w", ErrInvalidToken)
	}
	return StructuredChallenge{Raw: raw}, nil
}
