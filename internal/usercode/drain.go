package usercode

import (
	"bufio"
	"os"
	"strings"
	"time"
)

const (
	logStartedMarker  = "=== LOG STARTED ==="
	logFinishedMarker = "=== LOG FINISHED ==="
)

// drainer copies the merged output stream of one execution to its sinks.
type drainer struct {
	executionID string
	pipe        *os.File
	file        *os.File
	sink        LineSink
	done        chan struct{}
}

func newDrainer(executionID string, pipe, file *os.File, sink LineSink) *drainer {
	return &drainer{
		executionID: executionID,
		pipe:        pipe,
		file:        file,
		sink:        sink,
		done:        make(chan struct{}),
	}
}

func (d *drainer) run() {
	defer close(d.done)
	defer d.pipe.Close()

	d.emit(logStartedMarker)
	reader := bufio.NewReader(d.pipe)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			d.emit(line)
		}
		if err != nil {
			// EOF, a closed pipe, or the flush deadline set by stop.
			break
		}
	}
	d.emit(logFinishedMarker)

	if d.file != nil {
		_ = d.file.Close()
	}
}

// stop lets the drainer flush whatever is already buffered for up to flush,
// then waits for it to exit.
func (d *drainer) stop(flush time.Duration) {
	_ = d.pipe.SetReadDeadline(time.Now().Add(flush))
	<-d.done
}

func (d *drainer) emit(line string) {
	if d.file != nil {
		_, _ = d.file.WriteString(line + "\n")
	}
	if d.sink != nil {
		d.sink.WriteLine(d.executionID, line)
	}
}
