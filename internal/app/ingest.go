package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"trade-signal-radar/internal/pipeline"
)

// Ingest reads messages as JSON lines from a file (or stdin when the path is
// "-") and runs them through the extraction pipeline in one batch.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	var reader io.Reader
	if opts.Path == "" || opts.Path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(opts.Path)
		if err != nil {
			return err
		}
		defer file.Close()
		reader = file
	}

	msgs, err := readMessages(reader, opts.Source)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		a.Logger.Info().Msg("no messages to ingest")
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot ingest")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stored, misses, err := a.newService(store).IngestBatch(ctx, msgs)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "ingested %d message(s): %d signal(s) stored, %d miss(es)\n", len(msgs), stored, misses)
	return nil
}

func readMessages(r io.Reader, defaultSource string) ([]pipeline.IncomingMessage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var msgs []pipeline.IncomingMessage
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var msg pipeline.IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("parse message on line %d: %w", line, err)
		}
		if msg.Source == "" {
			msg.Source = defaultSource
		}
		if msg.Source == "" {
			return nil, fmt.Errorf("message on line %d has no source and no --source default was given", line)
		}
		if msg.MessageID == "" {
			return nil, fmt.Errorf("message on line %d has no message_id", line)
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
