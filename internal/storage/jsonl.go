package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammsim/internal/model"
)

// JsonlSink appends simulation records to a JSONL file.
type JsonlSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path}
}

// PutSteps appends step records as JSON lines.
func (s *JsonlSink) PutSteps(steps []model.SimStep) error {
	if len(steps) == 0 {
		return nil
	}
	records := make([]any, len(steps))
	for i, step := range steps {
		records[i] = step
	}
	return s.appendLines(records)
}

// transactionLine tags a transaction with its pool pair for export.
type transactionLine struct {
	Pair string `json:"pair"`
	model.Transaction
}

// PutTransactions appends transaction records as JSON lines.
func (s *JsonlSink) PutTransactions(pair string, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	records := make([]any, len(txs))
	for i, tx := range txs {
		records[i] = transactionLine{Pair: pair, Transaction: tx}
	}
	return s.appendLines(records)
}

func (s *JsonlSink) appendLines(records []any) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
