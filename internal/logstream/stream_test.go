package logstream_test

import (
	"context"
	"errors"
	"testing"

	"pepper/internal/ipc"
	"pepper/internal/logstream"
)

type scriptedClient struct {
	responses []*ipc.LogTailResponse
	requests  []ipc.LogTailRequest
	err       error
	onCall    func(n int)
}

func (c *scriptedClient) LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
	c.requests = append(c.requests, req)
	if c.onCall != nil {
		c.onCall(len(c.requests))
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.requests) > len(c.responses) {
		return &ipc.LogTailResponse{Offset: c.responses[len(c.responses)-1].Offset}, nil
	}
	return c.responses[len(c.requests)-1], nil
}

func TestStreamPrintsTailOnce(t *testing.T) {
	client := &scriptedClient{responses: []*ipc.LogTailResponse{{Lines: []string{"a", "b"}, Offset: 4}}}
	var got []string
	printed, err := logstream.Stream(context.Background(), client, logstream.Options{Source: ipc.LogSourceUsercode, Lines: 2}, func(line string) {
		got = append(got, line)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !printed || len(got) != 2 {
		t.Fatalf("unexpected output %v (printed=%v)", got, printed)
	}
	req := client.requests[0]
	if req.Offset != -1 || req.Limit != 2 || req.Source != ipc.LogSourceUsercode || req.Follow {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestStreamFollowContinuesFromOffset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &scriptedClient{
		responses: []*ipc.LogTailResponse{
			{Lines: []string{"one"}, Offset: 4},
			{Lines: []string{"two"}, Offset: 8},
		},
		onCall: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}
	var got []string
	if _, err := logstream.Stream(ctx, client, logstream.Options{Follow: true}, func(line string) { got = append(got, line) }); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(got) != 2 || got[1] != "two" {
		t.Fatalf("unexpected output %v", got)
	}
	if client.requests[0].Offset != 0 || client.requests[1].Offset != 4 || client.requests[1].Limit != 0 {
		t.Fatalf("unexpected requests %+v", client.requests)
	}
}

func TestStreamReportsErrors(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection reset")}
	if _, err := logstream.Stream(context.Background(), client, logstream.Options{}, nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := logstream.Stream(context.Background(), nil, logstream.Options{}, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
