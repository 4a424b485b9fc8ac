// Package logstream drives repeated LogTail calls for the CLI's logs command.
package logstream

import (
	"context"
	"errors"
	"fmt"

	"pepper/internal/ipc"
)

const followWaitMillis = 1000

// TailClient captures the IPC log tail contract.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Options controls stream behavior.
type Options struct {
	// Source is ipc.LogSourceDaemon or ipc.LogSourceUsercode.
	Source string
	// Lines is how many trailing lines to print first. Zero prints the whole
	// file.
	Lines  int
	Follow bool
}

// Stream prints log lines through onLine until the log is exhausted or, in
// follow mode, until ctx is cancelled. It reports whether any line was
// printed.
func Stream(ctx context.Context, client TailClient, opts Options, onLine func(string)) (bool, error) {
	if client == nil {
		return false, errors.New("log tail client missing")
	}
	limit := opts.Lines
	if limit < 0 {
		limit = 0
	}
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		req := ipc.LogTailRequest{
			Source:     opts.Source,
			Offset:     offset,
			Limit:      limit,
			Follow:     opts.Follow,
			WaitMillis: followWaitMillis,
		}
		resp, err := client.LogTail(req)
		if err != nil {
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return printed, errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !opts.Follow {
			return printed, nil
		}
		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}
