package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rlpredict/rlpredict/internal/dispatcher"
	"github.com/rlpredict/rlpredict/internal/parser"
)

// maxLineSize bounds one command line; a full packet with eight cars is a
// few kilobytes.
const maxLineSize = 1 << 20

// serve reads one JSON command per line from in and writes one JSON result
// per line to out. It returns nil when in is exhausted or ctx is done.
func serve(ctx context.Context, in io.Reader, out io.Writer, d *dispatcher.Dispatcher, p *parser.Parser) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.Clone(scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			Logger.Info("Stopping on signal")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read commands: %w", err)
					}
				default:
				}
				return nil
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if err := enc.Encode(handleLine(d, p, line)); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
		}
	}
}

func handleLine(d *dispatcher.Dispatcher, p *parser.Parser, line []byte) parser.Result {
	cmd, err := p.ParseCommand(line)
	if err != nil {
		return parser.Result{Error: err.Error()}
	}

	res, err := d.Dispatch(dispatcher.Event{
		Command:   cmd.Command,
		Args:      cmd.Args,
		Timestamp: time.Now(),
	})
	out := parser.Result{Command: cmd.Command, Result: res}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
