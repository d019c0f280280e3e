package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/engine"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
)

func convertEntry(entry manifest.Entry) SnapshotEntry {
	return SnapshotEntry{
		Filename:       entry.Filename,
		SessionKeyHash: entry.SessionKeyHash,
		SessionLabel:   entry.SessionLabel,
		CreatedAt:      entry.CreatedAt,
		Reason:         string(entry.Reason),
		AppVersion:     entry.AppVersion,
		SchemaVersion:  entry.SchemaVersion,
		CompressedSize: entry.CompressedSize,
		Checksum:       entry.Checksum,
	}
}

// Server exposes engine control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	engine    *engine.Engine
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, eng *engine.Engine, logger *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("ipc server requires engine")
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

	rpcServer := rpc.NewServer()
	srv := &service{engine: eng, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("FlowScribe", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		engine:    eng,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

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
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
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
	engine *engine.Engine
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.engine.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.State = string(status.Scheduler.State)
	resp.ProviderKind = status.ProviderKind
	resp.Location = status.ProviderLabel
	resp.SupportsRestore = status.SupportsRestore
	resp.LastBackupAt = status.LastBackupAt
	resp.LastBackupStatus = status.LastBackupStatus
	resp.NextDue = status.Scheduler.NextDue
	resp.LastError = status.Scheduler.LastError
	resp.DirtySessions = status.DirtySessions
	resp.StateDBPath = status.StateDBPath
	resp.LockPath = status.LockPath
	return nil
}

func (s *service) Enable(_ EnableRequest, resp *EnableResponse) error {
	s.log().Debug("enable requested")
	err := s.engine.Enable(s.ctx)
	if errors.Is(err, provider.ErrCancelled) {
		resp.Cancelled = true
		resp.Message = "no backup location chosen"
		return nil
	}
	if err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Enabled = true
	resp.Message = "backups enabled"
	return nil
}

func (s *service) Disable(_ DisableRequest, resp *DisableResponse) error {
	s.log().Debug("disable requested")
	s.engine.Disable()
	resp.Disabled = true
	return nil
}

func (s *service) BackupNow(req BackupNowRequest, resp *BackupNowResponse) error {
	s.log().Debug("backup requested", logging.String(logging.FieldReason, req.Reason))
	result, err := s.engine.BackupNow(s.ctx, req.Reason)
	if err != nil {
		return err
	}
	resp.Reason = string(result.Reason)
	resp.Sessions = result.Sessions
	resp.GlobalIncluded = result.GlobalIncluded
	resp.Evicted = result.Evicted
	resp.StartedAt = result.StartedAt
	resp.FinishedAt = result.FinishedAt
	return nil
}

func (s *service) Reauthorize(_ ReauthorizeRequest, resp *ReauthorizeResponse) error {
	s.log().Debug("reauthorize requested")
	if err := s.engine.Reauthorize(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Resumed = true
	resp.Message = "backup access restored"
	return nil
}

func (s *service) MarkDirty(req MarkDirtyRequest, resp *MarkDirtyResponse) error {
	if req.SessionKey == "" {
		return errors.New("mark dirty requires a session key")
	}
	if err := s.engine.MarkDirty(s.ctx, req.SessionKey, req.SessionLabel); err != nil {
		return err
	}
	resp.Marked = true
	return nil
}

func (s *service) ClearDirty(req ClearDirtyRequest, resp *ClearDirtyResponse) error {
	if req.SessionKey == "" {
		return errors.New("clear dirty requires a session key")
	}
	if err := s.engine.ClearDirty(s.ctx, req.SessionKey); err != nil {
		return err
	}
	resp.Cleared = true
	return nil
}

func (s *service) DismissDirty(req DismissDirtyRequest, resp *DismissDirtyResponse) error {
	if req.SessionKeyHash == "" {
		return errors.New("dismiss requires a session key hash")
	}
	if err := s.engine.DismissDirty(s.ctx, req.SessionKeyHash); err != nil {
		return err
	}
	resp.Dismissed = true
	return nil
}

func (s *service) RecoveryStatus(_ RecoveryStatusRequest, resp *RecoveryStatusResponse) error {
	recoveries, err := s.engine.RecoveryStatus(s.ctx)
	if err != nil {
		return err
	}
	resp.Recoveries = make([]Recovery, 0, len(recoveries))
	for _, recovery := range recoveries {
		resp.Recoveries = append(resp.Recoveries, Recovery{
			SessionKeyHash: recovery.SessionKeyHash,
			SessionLabel:   recovery.SessionLabel,
			MarkedAt:       recovery.MarkedAt,
			Hint:           string(recovery.Hint),
		})
	}
	return nil
}

func (s *service) SnapshotList(_ SnapshotListRequest, resp *SnapshotListResponse) error {
	listing, err := s.engine.ListSnapshots(s.ctx)
	if err != nil {
		return err
	}
	resp.Sessions = make([]SessionGroup, 0, len(listing.Sessions))
	for _, group := range listing.Sessions {
		dto := SessionGroup{
			SessionKeyHash: group.SessionKeyHash,
			SessionLabel:   group.SessionLabel,
			Snapshots:      make([]SnapshotEntry, 0, len(group.Snapshots)),
		}
		for _, entry := range group.Snapshots {
			dto.Snapshots = append(dto.Snapshots, convertEntry(entry))
		}
		resp.Sessions = append(resp.Sessions, dto)
	}
	resp.Global = make([]SnapshotEntry, 0, len(listing.Global))
	for _, entry := range listing.Global {
		resp.Global = append(resp.Global, convertEntry(entry))
	}
	return nil
}

func (s *service) Restore(req RestoreRequest, resp *RestoreResponse) error {
	if req.Filename == "" {
		return errors.New("restore requires a snapshot filename")
	}
	s.log().Debug("restore requested", logging.String("filename", req.Filename))
	payload, entry, err := s.engine.Restore(s.ctx, req.Filename)
	if err != nil {
		return err
	}
	resp.SessionKeyHash = payload.SessionKeyHash
	resp.SessionLabel = payload.SessionLabel
	resp.CreatedAt = payload.CreatedAt
	resp.Reason = string(payload.Reason)
	resp.SchemaVersion = entry.SchemaVersion
	resp.AppVersion = entry.AppVersion
	resp.Data = payload.Data
	s.log().Info("snapshot restored via IPC",
		logging.String(logging.FieldSessionKey, entry.SessionKeyHash),
		logging.String(logging.FieldEventType, "ipc_restore"))
	return nil
}

func (s *service) Adopt(req AdoptRequest, resp *AdoptResponse) error {
	if req.Root == "" {
		return errors.New("adopt requires a backup root path")
	}
	s.log().Debug("adopt requested", logging.String("root", req.Root))
	m, err := s.engine.AdoptRoot(s.ctx, req.Root)
	if err != nil {
		return err
	}
	resp.Snapshots = len(m.Snapshots)
	resp.GlobalSnapshots = len(m.GlobalSnapshots)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.engine.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
