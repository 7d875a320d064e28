package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	eventVersion = "1.0"
	eventType    = "db_publish"
)

// ComputeEventHash computes the SHA256 hash of an event.
// The hash is computed over the canonical JSON representation,
// excluding the event_hash field itself.
func ComputeEventHash(evt *Event) string {
	evtCopy := *evt
	evtCopy.Chain.EventHash = ""

	canonical, err := json.Marshal(evtCopy)
	if err != nil {
		// Should never happen with well-formed events
		return ""
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// GenerateEventID creates a unique event ID.
func GenerateEventID() string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	return "pub_evt_" + hex.EncodeToString(hash[:8])
}

// lastEventHash returns the event hash of the final entry in a trail
// file, or "" for a missing or empty trail.
func lastEventHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open trail: %w", err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan trail: %w", err)
	}
	if last == "" {
		return "", nil
	}

	var evt Event
	if err := json.Unmarshal([]byte(last), &evt); err != nil {
		return "", fmt.Errorf("parse last trail entry: %w", err)
	}
	return evt.Chain.EventHash, nil
}

// VerifyChain replays a trail file and checks every event's hash and its
// link to the previous event.
func VerifyChain(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open trail: %w", err)
	}
	defer f.Close()

	prev := ""
	line := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(text), &evt); err != nil {
			return fmt.Errorf("line %d: parse: %w", line, err)
		}
		if evt.Chain.PrevEventHash != prev {
			return fmt.Errorf("line %d: chain break: prev_event_hash = %q, want %q",
				line, evt.Chain.PrevEventHash, prev)
		}
		if got := ComputeEventHash(&evt); got != evt.Chain.EventHash {
			return fmt.Errorf("line %d: event hash mismatch: %s != %s",
				line, evt.Chain.EventHash, got)
		}
		prev = evt.Chain.EventHash
	}
	return scanner.Err()
}
