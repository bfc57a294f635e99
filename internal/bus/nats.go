// Package bus publishes batch summaries to NATS so downstream alerting
// and dashboard services can react without polling ClickHouse.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// subjectPrefix is the NATS subject root; the project id is appended so
// consumers can subscribe per project ("driftguard.batches.<project_id>")
// or with a wildcard ("driftguard.batches.>").
const subjectPrefix = "driftguard.batches"

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("driftguard-server"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain() //nolint:errcheck
		p.Conn.Close()
	}
}

// PublishSummary emits one batch summary on the project's subject.
func (p *Publisher) PublishSummary(projectID string, summary *engine.BatchSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return p.Conn.Publish(fmt.Sprintf("%s.%s", subjectPrefix, projectID), data)
}
