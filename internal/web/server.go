package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"genai-studio/common"
	"genai-studio/internal/studio"
	"genai-studio/internal/utils"

	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 10 * time.Second

// Config Web 前端配置
type Config struct {
	SessionSecret  string
	MaxUploadBytes int64
	// SecureCookie 仅在 HTTPS 部署时开启
	SecureCookie bool
}

// Server 浏览器前端：页面、提交和状态查询
type Server struct {
	registry  *studio.Registry
	store     sessions.Store
	tmpl      *template.Template
	maxUpload int64
	mux       *http.ServeMux
}

// NewServer 创建 Web 服务
func NewServer(registry *studio.Registry, cfg Config) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("session secret is required")
	}

	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}

	s := &Server{
		registry:  registry,
		store:     newSessionStore(cfg.SessionSecret, cfg.SecureCookie),
		tmpl:      tmpl,
		maxUpload: maxUpload,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/{kind}", s.handleState)
	s.mux.HandleFunc("POST /api/{kind}", s.handleSubmit)
}

// Handler 返回带请求日志的根 Handler
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ListenAndServe 启动 HTTP 服务，ctx 结束时优雅退出
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		common.WithField("addr", addr).Info("Web server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		common.Info("Shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}

type indexData struct {
	Workflows []studio.Workflow
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// 先建立会话，保证后续 API 调用落在同一个 Studio 上
	if _, err := s.sessionID(w, r); err != nil {
		common.WithError(err).Error("Failed to save session")
		http.Error(w, "Could not create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", indexData{Workflows: studio.Workflows()}); err != nil {
		common.WithError(err).Error("Failed to render index page")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// controllerFor 解析路径中的工作流并返回当前会话的控制器
func (s *Server) controllerFor(w http.ResponseWriter, r *http.Request) (*studio.Controller, bool) {
	wf, err := studio.Lookup(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}

	id, err := s.sessionID(w, r)
	if err != nil {
		common.WithError(err).Error("Failed to save session")
		writeError(w, http.StatusInternalServerError, "Could not create session")
		return nil, false
	}

	ctrl, err := s.registry.Get(id).Controller(wf.Kind)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return ctrl, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateView(ctrl.Workflow().Kind, ctrl.Snapshot()))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	kind := ctrl.Workflow().Kind

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		common.WithError(err).WithField("workflow", kind).Warn("Could not parse submission form")
		writeError(w, http.StatusBadRequest, "Could not parse form")
		return
	}

	in := studio.Input{Prompt: r.FormValue("prompt")}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["image"]; len(files) > 0 {
			image, err := utils.EncodeImageFile(files[0])
			if err != nil {
				common.WithError(err).WithField("workflow", kind).Error("Could not read uploaded image")
				writeError(w, http.StatusInternalServerError, "Could not read image file")
				return
			}
			in.Image = image
		}
	}

	wait := r.URL.Query().Get("wait") == "1"
	// 异步提交时请求结束不应取消生成
	ctx := context.WithoutCancel(r.Context())
	if wait {
		ctx = r.Context()
	}

	done, err := ctrl.Submit(ctx, in)
	var verr *studio.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, newStateView(kind, ctrl.Snapshot()))
		return
	case errors.Is(err, studio.ErrBusy):
		writeJSON(w, http.StatusConflict, newStateView(kind, ctrl.Snapshot()))
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if !wait {
		writeJSON(w, http.StatusAccepted, newStateView(kind, ctrl.Snapshot()))
		return
	}

	select {
	case <-done:
		writeJSON(w, http.StatusOK, newStateView(kind, ctrl.Snapshot()))
	case <-r.Context().Done():
	}
}

// stateView 返回给前端的状态
type stateView struct {
	Workflow   string `json:"workflow"`
	Phase      string `json:"phase"`
	Image      string `json:"image,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Message    string `json:"message,omitempty"`
	Validation string `json:"validation,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

func newStateView(kind studio.Kind, st studio.State) stateView {
	return stateView{
		Workflow:   string(kind),
		Phase:      st.Phase.String(),
		Image:      st.DataURI(),
		ImageURL:   st.ImageURL,
		Message:    st.Message,
		Validation: st.Validation,
		RequestID:  st.RequestID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		common.WithError(err).Warn("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
