package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pepper/internal/daemon"
	"pepper/internal/logging"
	"pepper/internal/logs"
)

const (
	defaultWaitStatus = 30 * time.Second
	maxWaitStatus     = 5 * time.Minute
)

// ServerOptions describes the daemon details the server reports.
type ServerOptions struct {
	LockPath      string
	SourceName    string
	DaemonLogPath string
	// UsercodeLogName is the per-execution log file name on usercode drives.
	UsercodeLogName string
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, ctrl *daemon.Controller, opts ServerOptions, logger *slog.Logger) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("ipc server requires controller")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{ctrl: ctrl, opts: opts, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				go func() {
					<-s.ctx.Done()
					_ = c.Close()
				}()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server, drops open connections and removes the socket
// file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	ctrl   *daemon.Controller
	opts   ServerOptions
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) GetVersion(_ VersionRequest, resp *VersionResponse) error {
	resp.Version = s.ctrl.Version()
	return nil
}

func (s *service) GetStatus(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = string(s.ctrl.GetStatus())
	resp.PID = os.Getpid()
	resp.LockPath = s.opts.LockPath
	resp.Source = s.opts.SourceName
	return nil
}

func (s *service) GetDriveList(_ DriveListRequest, resp *DriveListResponse) error {
	resp.Drives = s.ctrl.ListDrives()
	return nil
}

func (s *service) GetDrive(req DriveRequest, resp *DriveResponse) error {
	d, err := s.ctrl.GetDrive(req.ID)
	if err != nil {
		if errors.Is(err, daemon.ErrNotFound) {
			resp.TypeIndex = -1
			return nil
		}
		return err
	}
	resp.Found = true
	resp.ID = d.ID
	resp.MountPath = d.MountPath
	resp.TypeIndex = s.ctrl.TypeIndex(d)
	resp.TypeName = d.TypeName()
	return nil
}

func (s *service) GetDriveTypes(_ DriveTypesRequest, resp *DriveTypesResponse) error {
	for _, typ := range s.ctrl.Types().Types() {
		resp.Types = append(resp.Types, typ.Name)
	}
	return nil
}

func (s *service) KillUsercode(_ KillUsercodeRequest, resp *KillUsercodeResponse) error {
	s.log().Debug("usercode kill requested")
	if err := s.ctrl.KillUsercode(); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Killed = true
	resp.Message = "usercode killed"
	s.log().Info("usercode killed via IPC",
		logging.String(logging.FieldEventType, "usercode_kill"))
	return nil
}

func (s *service) StartUsercode(_ StartUsercodeRequest, resp *StartUsercodeResponse) error {
	s.log().Debug("usercode start requested")
	if err := s.ctrl.StartUsercode(); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "usercode started"
	s.log().Info("usercode started via IPC",
		logging.String(logging.FieldEventType, "usercode_start"))
	return nil
}

func (s *service) GetUsercodeDrive(_ UsercodeDriveRequest, resp *UsercodeDriveResponse) error {
	if d, ok := s.ctrl.UsercodeDrive(); ok {
		resp.ID = d.ID
	}
	return nil
}

func (s *service) GetUsercodeDriverName(_ UsercodeDriverNameRequest, resp *UsercodeDriverNameResponse) error {
	resp.Name = s.ctrl.UsercodeDriverName()
	return nil
}

func (s *service) WaitStatus(req WaitStatusRequest, resp *WaitStatusResponse) error {
	wait := time.Duration(req.TimeoutMillis) * time.Millisecond
	if wait <= 0 {
		wait = defaultWaitStatus
	}
	if wait > maxWaitStatus {
		wait = maxWaitStatus
	}
	ctx, cancel := context.WithTimeout(s.ctx, wait)
	defer cancel()
	status := s.ctrl.WaitStatus(ctx, daemon.Status(req.Last))
	resp.Status = string(status)
	resp.Changed = string(status) != req.Last
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath, err := s.logPath(req.Source)
	if err != nil {
		return err
	}
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) logPath(source string) (string, error) {
	switch source {
	case "", LogSourceDaemon:
		return s.opts.DaemonLogPath, nil
	case LogSourceUsercode:
		d, ok := s.ctrl.UsercodeDrive()
		if !ok || s.opts.UsercodeLogName == "" {
			return "", nil
		}
		return filepath.Join(d.MountPath, s.opts.UsercodeLogName), nil
	default:
		return "", fmt.Errorf("unknown log source %q", source)
	}
}
