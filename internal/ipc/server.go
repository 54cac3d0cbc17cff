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
	"strings"
	"sync"

	"handreceipt/internal/agent"
	"handreceipt/internal/api"
	"handreceipt/internal/logging"
	"handreceipt/internal/queue"
)

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "HandReceipt"

// ErrAgentNotReady is returned for queue calls made before the agent has
// started and loaded its queue.
var ErrAgentNotReady = errors.New("agent is still starting; retry shortly")

// Server exposes agent control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. onStop, when
// set, is invoked after a Stop RPC so the hosting process can exit.
func NewServer(ctx context.Context, path string, a *agent.Agent, logger *slog.Logger, onStop func()) (*Server, error) {
	if a == nil {
		return nil, errors.New("ipc server requires agent")
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
	srv := &service{
		agent:  a,
		logger: logging.NewComponentLogger(logger, "ipc"),
		ctx:    ctx,
		onStop: onStop,
	}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the agent if needed"),
				)
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
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun handreceipt stop"),
		)
	}
}

type service struct {
	agent  *agent.Agent
	logger *slog.Logger
	ctx    context.Context
	onStop func()
}

func (s *service) requireRunning() error {
	if !s.agent.Running() {
		return ErrAgentNotReady
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = agent.StatusDTO(s.agent.Status(s.ctx))
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	item, err := s.agent.Enqueue(s.ctx, queue.Transfer{
		ID:         strings.TrimSpace(req.ID),
		PropertyID: strings.TrimSpace(req.PropertyID),
		FromUserID: strings.TrimSpace(req.FromUserID),
		ToUserID:   strings.TrimSpace(req.ToUserID),
		Timestamp:  strings.TrimSpace(req.Timestamp),
		Signature:  req.Signature,
	})
	if err != nil {
		return err
	}
	resp.Item = api.FromTransfer(item, s.agent.Policy())
	resp.Online = s.agent.Status(s.ctx).Online
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses, err := api.ParseStatuses(req.Statuses)
	if err != nil {
		return err
	}
	resp.Items = api.FromTransfers(s.agent.ListQueue(statuses), s.agent.Policy())
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	item, err := s.agent.GetTransfer(req.ID)
	if err != nil {
		return err
	}
	resp.Item = api.FromTransfer(item, s.agent.Policy())
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue remove requires at least one id")
	}
	if err := s.requireRunning(); err != nil {
		return err
	}
	for _, id := range req.IDs {
		err := s.agent.RemoveTransfer(s.ctx, id)
		switch {
		case err == nil:
			resp.Removed++
		case errors.Is(err, queue.ErrNotFound):
			resp.Missing = append(resp.Missing, id)
		default:
			return err
		}
	}
	return nil
}

func (s *service) SyncNow(_ SyncNowRequest, resp *SyncResponse) error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	resp.Summary = api.FromSummary(s.agent.SyncNow(s.ctx))
	return nil
}

func (s *service) RetryFailed(_ RetryFailedRequest, resp *RetryFailedResponse) error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	reset, summary, err := s.agent.RetryFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Reset = reset
	resp.Summary = api.FromSummary(summary)
	return nil
}

func (s *service) ClearFailed(_ ClearFailedRequest, resp *ClearFailedResponse) error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	removed, err := s.agent.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Foreground(_ ForegroundRequest, resp *ForegroundResponse) error {
	resp.Started = s.agent.Foreground()
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("agent stop requested")
	s.agent.Stop()
	resp.Stopped = true
	s.logger.Info("agent stopped via IPC", logging.String(logging.FieldEventType, "agent_stop"))
	if s.onStop != nil {
		go s.onStop()
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.agent.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
