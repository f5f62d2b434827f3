package testutil

import (
	"encoding/json"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// JobRequestBuilder helps build CreateJobRequest instances for testing.
type JobRequestBuilder struct {
	request *model.CreateJobRequest
}

// NewJobRequest creates a builder for an echo job owned by owner-1.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		request: &model.CreateJobRequest{
			OwnerID: "owner-1",
			Type:    model.JobTypeEcho,
			Payload: json.RawMessage(`{"message":"hello"}`),
		},
	}
}

// WithID sets an explicit job id.
func (b *JobRequestBuilder) WithID(id string) *JobRequestBuilder {
	b.request.ID = id
	return b
}

// WithOwner sets the owner id.
func (b *JobRequestBuilder) WithOwner(ownerID string) *JobRequestBuilder {
	b.request.OwnerID = ownerID
	return b
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.request.Type = jobType
	return b
}

// WithPayload sets the raw payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.request.Payload = payload
	return b
}

// WithPayloadString sets the payload from a JSON string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.request.Payload = json.RawMessage(payload)
	return b
}

// Build returns the request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.request
}

// EchoJobRequest is an echo job for owner whose payload carries the owner id.
func EchoJobRequest(id, owner string) *model.CreateJobRequest {
	return NewJobRequest().
		WithID(id).
		WithOwner(owner).
		WithPayloadString(`{"owner_id":"` + owner + `","message":"hi"}`).
		Build()
}

// ProductDescriptionJobRequest is a single product description job.
func ProductDescriptionJobRequest(owner string) *model.CreateJobRequest {
	return NewJobRequest().
		WithOwner(owner).
		WithType(model.JobTypeProductDescription).
		WithPayloadString(`{"product_name":"Trail Runner","features":["waterproof","lightweight"],"max_words":40}`).
		Build()
}

// UnregisteredJobRequest is a well-formed job whose type has no processor.
func UnregisteredJobRequest(owner string) *model.CreateJobRequest {
	return NewJobRequest().
		WithOwner(owner).
		WithType("ghost").
		WithPayloadString(`{}`).
		Build()
}
