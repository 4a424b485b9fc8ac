package usercode

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"pepper/internal/logging"
)

const (
	defaultGracePeriod = 5 * time.Second
	defaultLogFileName = "log.txt"
	drainFlushTimeout  = 2 * time.Second
)

// ErrAlreadyActive is returned by Start when an execution is in progress.
var ErrAlreadyActive = errors.New("usercode process already active")

// Options configures a Supervisor.
type Options struct {
	Driver      Driver
	WorkDir     string
	LogFileName string
	GracePeriod time.Duration
	Sink        LineSink
	Logger      *slog.Logger
	// OnStatus is called synchronously on every transition, from the
	// goroutine that caused it. It must not call back into the Supervisor's
	// Start or Stop.
	OnStatus func(Status)
}

// Supervisor runs one usercode execution at a time.
type Supervisor struct {
	driver      Driver
	workDir     string
	logFileName string
	grace       time.Duration
	sink        LineSink
	logger      *slog.Logger
	onStatus    func(Status)

	// opMu serialises Start, Stop and the reaper's cleanup so transitions
	// are reported in the order they happen.
	opMu sync.Mutex

	mu       sync.Mutex
	status   Status
	exec     *execution
	exitCode int
}

type execution struct {
	id      string
	cmd     *exec.Cmd
	pid     int
	exited  chan struct{}
	claimed atomic.Bool
	drain   *drainer
	waitErr error
}

// NewSupervisor constructs an idle supervisor in the Starting state.
func NewSupervisor(opts Options) *Supervisor {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	logFile := opts.LogFileName
	if logFile == "" {
		logFile = defaultLogFileName
	}
	return &Supervisor{
		driver:      opts.Driver,
		workDir:     opts.WorkDir,
		logFileName: logFile,
		grace:       grace,
		sink:        opts.Sink,
		logger:      logging.NewComponentLogger(opts.Logger, "usercode"),
		onStatus:    opts.OnStatus,
		status:      StatusStarting,
		exitCode:    -1,
	}
}

// Status returns the current status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Idle reports whether no process is active.
func (s *Supervisor) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec == nil
}

// Name returns the driver implementation name.
func (s *Supervisor) Name() string { return s.driver.Name }

// Pid returns the process id of the active execution, or 0 when idle.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exec == nil {
		return 0
	}
	return s.exec.pid
}

// ExitCode returns the exit code of the last execution that ended on its own,
// or -1.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Start spawns the driver command. It returns ErrAlreadyActive without side
// effects when an execution is already in progress.
func (s *Supervisor) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.exec != nil {
		pid := s.exec.pid
		s.mu.Unlock()
		s.logger.Warn("unable to start usercode, process already running",
			logging.Int("pid", pid),
			logging.String(logging.FieldEventType, "usercode_start_ignored"),
			logging.String(logging.FieldErrorHint, "kill the running usercode first"),
			logging.String(logging.FieldImpact, "start request ignored"),
		)
		return ErrAlreadyActive
	}
	s.mu.Unlock()

	ex, err := s.spawn()
	if err != nil {
		s.mu.Lock()
		s.status = StatusCrashed
		s.mu.Unlock()
		s.logger.Error("usercode process failed to start",
			logging.Error(err),
			logging.String("driver", s.driver.Name),
			logging.String(logging.FieldEventType, "usercode_spawn_failed"),
			logging.String(logging.FieldErrorHint, "check the driver command is installed and the drive is readable"),
		)
		s.notify(StatusCrashed)
		return fmt.Errorf("start usercode: %w", err)
	}

	s.mu.Lock()
	s.exec = ex
	s.status = StatusRunning
	s.exitCode = -1
	s.mu.Unlock()

	s.logger.Info("usercode process started",
		logging.Int("pid", ex.pid),
		logging.String("driver", s.driver.Name),
		logging.String(logging.FieldExecutionID, ex.id),
		logging.String(logging.FieldEventType, "usercode_started"),
	)
	s.notify(StatusRunning)

	go ex.drain.run()
	go s.reap(ex)
	return nil
}

// Stop terminates the active execution: SIGTERM to the process group, up to
// the grace period for a voluntary exit, then SIGKILL regardless. It reports
// whether it signaled a process; it is a no-op when idle or when the process
// is already exiting on its own.
func (s *Supervisor) Stop() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	ex := s.exec
	s.mu.Unlock()
	if ex == nil {
		s.logger.Info("no usercode process to stop")
		return false
	}
	if !ex.claimed.CompareAndSwap(false, true) {
		s.logger.Debug("usercode process already exiting", logging.Int("pid", ex.pid))
		return false
	}

	s.logger.Info("sent SIGTERM to usercode process group", logging.Int("pid", ex.pid))
	signalGroup(ex.pid, unix.SIGTERM)

	timer := time.NewTimer(s.grace)
	select {
	case <-ex.exited:
	case <-timer.C:
		s.logger.Debug("usercode grace period elapsed", logging.Duration("grace", s.grace))
	}
	timer.Stop()

	s.logger.Info("sent SIGKILL to usercode process group", logging.Int("pid", ex.pid))
	signalGroup(ex.pid, unix.SIGKILL)
	<-ex.exited

	s.finish(ex, StatusKilled, -1)
	return true
}

func (s *Supervisor) spawn() (*execution, error) {
	if len(s.driver.Command) == 0 {
		return nil, errors.New("driver command is empty")
	}
	info, err := os.Stat(s.workDir)
	if err != nil {
		return nil, fmt.Errorf("stat working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working directory %q is not a directory", s.workDir)
	}

	id := uuid.NewString()

	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.Command(s.driver.Command[0], s.driver.Command[1:]...) //nolint:gosec
	cmd.Dir = s.workDir
	cmd.Stdin = nil
	cmd.Stdout = pipeW
	cmd.Stderr = pipeW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = pipeR.Close()
		_ = pipeW.Close()
		return nil, err
	}
	_ = pipeW.Close()

	logFile := s.openLogFile(id)
	return &execution{
		id:     id,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
		drain:  newDrainer(id, pipeR, logFile, s.sink),
	}, nil
}

func (s *Supervisor) openLogFile(executionID string) *os.File {
	path := filepath.Join(s.workDir, s.logFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		s.logger.Warn("unable to open usercode log file",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldExecutionID, executionID),
			logging.String(logging.FieldEventType, "usercode_log_open_failed"),
			logging.String(logging.FieldErrorHint, "check the drive is writable"),
			logging.String(logging.FieldImpact, "usercode output only reaches the system log"),
		)
		return nil
	}
	return file
}

// reap waits for the process and handles a natural exit.
func (s *Supervisor) reap(ex *execution) {
	ex.waitErr = ex.cmd.Wait()
	close(ex.exited)

	if !ex.claimed.CompareAndSwap(false, true) {
		return
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	code := exitCode(ex.cmd, ex.waitErr)
	if code == 0 {
		s.logger.Info("usercode finished successfully",
			logging.String(logging.FieldExecutionID, ex.id),
			logging.String(logging.FieldEventType, "usercode_finished"),
		)
		s.finish(ex, StatusFinished, code)
		return
	}
	s.logger.Info("usercode finished unsuccessfully",
		logging.Int("return_code", code),
		logging.String(logging.FieldExecutionID, ex.id),
		logging.String(logging.FieldEventType, "usercode_crashed"),
	)
	s.finish(ex, StatusCrashed, code)
}

// finish releases the execution and reports the terminal status. Callers hold opMu.
func (s *Supervisor) finish(ex *execution, status Status, code int) {
	s.mu.Lock()
	if s.exec == ex {
		s.exec = nil
	}
	s.status = status
	s.exitCode = code
	s.mu.Unlock()

	ex.drain.stop(drainFlushTimeout)
	s.notify(status)
}

func (s *Supervisor) notify(status Status) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func signalGroup(pid int, sig unix.Signal) {
	if pid <= 0 {
		return
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = unix.Kill(pid, sig)
	}
}
