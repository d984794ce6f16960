package nats

import (
	"encoding/json"
	"fmt"

	"github.com/tunogya/coil/pkg/model"
)

// Subject constants
const (
	SubjectBarIngest       = "coil.bars.ingest"
	SubjectPatternActive   = "coil.patterns.activated"
	SubjectPatternResolved = "coil.patterns.resolved"
	SubjectOutcomeLabelled = "coil.outcomes.labelled"
)

// Subjects lists every subject carried by the stream
var Subjects = []string{SubjectBarIngest, SubjectPatternActive, SubjectPatternResolved, SubjectOutcomeLabelled}

// BarBatchMsg carries the next daily bars of one symbol, oldest first
type BarBatchMsg struct {
	Symbol string      `json:"symbol"`
	Bars   []model.Bar `json:"bars"`
}

// Validate checks the batch belongs to one symbol and is strictly ascending
func (m *BarBatchMsg) Validate() error {
	for i := range m.Bars {
		if m.Bars[i].Symbol == "" {
			m.Bars[i].Symbol = m.Symbol
		}
		if m.Bars[i].Symbol != m.Symbol {
			return fmt.Errorf("%w: batch for %s contains %s", model.ErrInvalidBar, m.Symbol, m.Bars[i].Symbol)
		}
	}
	return model.ValidateSeries(m.Bars)
}

// PatternEventMsg announces a lifecycle change for the online signal consumer
type PatternEventMsg struct {
	Pattern model.Pattern `json:"pattern"`
	Phase   model.Phase   `json:"phase"`
}

// OutcomeMsg announces a labelled outcome
type OutcomeMsg struct {
	Symbol  string               `json:"symbol"`
	Outcome model.PatternOutcome `json:"outcome"`
}

// Encode serializes a message to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeBarBatch deserializes and validates a BarBatchMsg
func DecodeBarBatch(data []byte) (*BarBatchMsg, error) {
	var msg BarBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodePatternEvent deserializes a PatternEventMsg
func DecodePatternEvent(data []byte) (*PatternEventMsg, error) {
	var msg PatternEventMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
