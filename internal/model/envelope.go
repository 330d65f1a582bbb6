package model

// Envelope is a raw webhook as published to Kafka for asynchronous handling.
type Envelope struct {
	ID         string            `json:"id"` // delivery id, ULID when the sender gave none
	Source     EventSource       `json:"source"`
	Repository string            `json:"repository,omitempty"` // partition key
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    []byte            `json:"payload"`
}

// PartitionKey groups every delivery of one repository on one partition,
// so consumers see them in arrival order.
func (e Envelope) PartitionKey() string {
	if e.Repository != "" {
		return string(e.Source) + ":" + e.Repository
	}
	return e.ID
}
