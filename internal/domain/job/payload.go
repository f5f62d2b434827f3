// Package job holds the typed job payloads and the queued-job notifier.
package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// ErrMalformedPayload is returned when a payload is not a JSON object.
var ErrMalformedPayload = errors.New("malformed payload")

// Payload is implemented by every typed job payload. The owner travels inside the
// payload so the submitting principal survives from producer to processor.
type Payload interface {
	JobType() model.JobType
	Owner() string
}

// Envelope is the part of a payload every job type shares.
type Envelope struct {
	OwnerID string `json:"owner_id"`
}

// DecodeEnvelope checks that raw is a JSON object and extracts the owner.
// The type-specific shape is validated later by the processor registry.
func DecodeEnvelope(raw json.RawMessage) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: payload must be a JSON object", ErrMalformedPayload)
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	env.OwnerID = strings.TrimSpace(env.OwnerID)
	return env, nil
}

// EchoPayload is returned unchanged by the echo processor.
type EchoPayload struct {
	OwnerID string          `json:"owner_id,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (EchoPayload) JobType() model.JobType { return model.JobTypeEcho }
func (p EchoPayload) Owner() string        { return p.OwnerID }

// Tone values accepted by ProductDescriptionPayload.
const (
	ToneNeutral = "neutral"
	TonePlayful = "playful"
	ToneFormal  = "formal"
)

// ProductDescriptionPayload asks for marketing copy for one product.
type ProductDescriptionPayload struct {
	OwnerID     string   `json:"owner_id,omitempty"`
	ProductName string   `json:"product_name"        validate:"required,max=200"`
	Features    []string `json:"features,omitempty"  validate:"max=20,dive,required,max=200"`
	Tone        string   `json:"tone,omitempty"      validate:"omitempty,oneof=neutral playful formal"`
	MaxWords    int      `json:"max_words,omitempty" validate:"min=0,max=400"`
}

func (ProductDescriptionPayload) JobType() model.JobType { return model.JobTypeProductDescription }
func (p ProductDescriptionPayload) Owner() string        { return p.OwnerID }

// ToneOrDefault returns the requested tone, defaulting to neutral.
func (p ProductDescriptionPayload) ToneOrDefault() string {
	if p.Tone == "" {
		return ToneNeutral
	}
	return p.Tone
}

// BatchDescriptionsPayload asks for descriptions of several products in one job.
type BatchDescriptionsPayload struct {
	OwnerID string                      `json:"owner_id,omitempty"`
	Items   []ProductDescriptionPayload `json:"items"              validate:"required,min=1,max=50,dive"`
}

func (BatchDescriptionsPayload) JobType() model.JobType { return model.JobTypeBatchDescriptions }
func (p BatchDescriptionsPayload) Owner() string        { return p.OwnerID }

// ExtractPayload evaluates a JMESPath expression against Document.
type ExtractPayload struct {
	OwnerID    string          `json:"owner_id,omitempty"`
	Expression string          `json:"expression" validate:"required,max=1024"`
	Document   json.RawMessage `json:"document"   validate:"required"`
}

func (ExtractPayload) JobType() model.JobType { return model.JobTypeExtract }
func (p ExtractPayload) Owner() string        { return p.OwnerID }

var (
	_ Payload = EchoPayload{}
	_ Payload = ProductDescriptionPayload{}
	_ Payload = BatchDescriptionsPayload{}
	_ Payload = ExtractPayload{}
)
