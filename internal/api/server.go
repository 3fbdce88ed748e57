package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"AgoraChain/internal/agent"
	"AgoraChain/internal/chain"
	xerrors "AgoraChain/internal/errors"
	"AgoraChain/internal/observability/metrics"
	"AgoraChain/internal/proposal"
)

// Server 负责暴露 REST 接口，供成员端驱动治理代理。
type Server struct {
	addr   string
	agent  *agent.Agent
	store  proposal.Store
	chains chain.Client
}

// ServerOption 配置 Server 的可选依赖。
type ServerOption func(*Server)

// WithProposalStore 开启提案台账查询接口。
func WithProposalStore(store proposal.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithChainClient 让健康检查附带链上快照。
func WithChainClient(client chain.Client) ServerOption {
	return func(s *Server) {
		s.chains = client
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, opts ...ServerOption) *Server {
	s := &Server{addr: addr, agent: ag}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Routes 返回全部路由，测试可以直接挂载。
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", instrument("chat", s.handleChat))
	mux.HandleFunc("GET /api/v1/proposals", instrument("proposals", s.handleListProposals))
	mux.HandleFunc("GET /api/v1/proposals/{id}", instrument("proposal", s.handleGetProposal))
	mux.HandleFunc("GET /healthz", instrument("healthz", s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// chatRequest 允许成员在单条消息上覆盖会话的指令与采样参数，
// 不同配置会命中不同的会话缓存条目。
type chatRequest struct {
	Message      string   `json:"message"`
	Instructions string   `json:"instructions,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleChat 处理一条成员消息：对话、意图提取与可能的提案上链。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
		return
	}

	result, err := s.agent.HandleMessage(r.Context(), agent.Message{
		Text:         req.Message,
		Instructions: req.Instructions,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		writeError(w, statusForCode(xerrors.CodeOf(err)), err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListProposals 返回最近的提案台账。
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "提案台账未配置"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetProposal 返回单条提案记录。
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "提案台账未配置"))
		return
	}

	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, proposal.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type healthResponse struct {
	Status   string          `json:"status"`
	Sessions int             `json:"sessions"`
	Chain    *chain.Snapshot `json:"chain,omitempty"`
}

// handleHealth 返回服务状态与链上快照。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.agent != nil {
		resp.Sessions = s.agent.Sessions()
	}
	if s.chains != nil {
		snapshot, err := s.chains.FetchSnapshot(r.Context())
		if err == nil {
			resp.Chain = &snapshot
		} else {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusForCode 把内部错误码映射为 HTTP 状态码。
func statusForCode(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidAmount:
		return http.StatusBadRequest
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Code:  string(xerrors.CodeOf(err)),
	})
}

// statusRecorder 捕获响应状态码用于指标上报。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器记录请求量与耗时指标。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
