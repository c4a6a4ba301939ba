package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HTTPOutput posts batches of entries as a JSON array
type HTTPOutput struct {
	url           string
	authToken     string
	batchSize     int
	flushInterval time.Duration
	client        *http.Client
	buffer        []*LogEntry
	mu            sync.Mutex
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewHTTPOutput creates an HTTP output and starts its flusher
func NewHTTPOutput(url, authToken string, batchSize int, flushInterval time.Duration) *HTTPOutput {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	output := &HTTPOutput{
		url:           url,
		authToken:     authToken,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		client:        &http.Client{Timeout: 10 * time.Second},
		buffer:        make([]*LogEntry, 0, batchSize),
		stopChan:      make(chan struct{}),
	}

	output.wg.Add(1)
	go output.flusher()

	return output
}

// Write buffers an entry and sends the batch once it is full
func (h *HTTPOutput) Write(entry *LogEntry) error {
	h.mu.Lock()
	h.buffer = append(h.buffer, entry)
	var batch []*LogEntry
	if len(h.buffer) >= h.batchSize {
		batch = h.takeLocked()
	}
	h.mu.Unlock()

	if batch == nil {
		return nil
	}
	return h.send(batch)
}

func (h *HTTPOutput) flusher() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.flush()
		case <-h.stopChan:
			h.flush()
			return
		}
	}
}

func (h *HTTPOutput) flush() {
	h.mu.Lock()
	batch := h.takeLocked()
	h.mu.Unlock()

	if batch != nil {
		_ = h.send(batch)
	}
}

// takeLocked empties the buffer; caller must hold mu
func (h *HTTPOutput) takeLocked() []*LogEntry {
	if len(h.buffer) == 0 {
		return nil
	}
	batch := make([]*LogEntry, len(h.buffer))
	copy(batch, h.buffer)
	h.buffer = h.buffer[:0]
	return batch
}

func (h *HTTPOutput) send(entries []*LogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal log entries: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the flusher after a final flush
func (h *HTTPOutput) Close() error {
	close(h.stopChan)
	h.wg.Wait()
	return nil
}
