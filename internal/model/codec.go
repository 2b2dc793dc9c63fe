package model

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Family Family          `json:"family"`
	Model  json.RawMessage `json:"model"`
}

// Marshal encodes a fitted classifier with its family tag.
func Marshal(c Classifier) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Family(), err)
	}
	return json.Marshal(envelope{Family: c.Family(), Model: body})
}

// Unmarshal decodes a classifier written by Marshal.
func Unmarshal(data []byte) (Classifier, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	c, err := blankOf(env.Family)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Model, c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Family, err)
	}
	return c, nil
}
