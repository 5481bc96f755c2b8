package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/otpflow"
)

// PasswordResetter redeems reset links. authsvc.Service implements it.
type PasswordResetter interface {
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// Options wires a Server.
type Options struct {
	Engine *otpflow.Engine
	// Registry defaults to one bounded by the engine's HTTP config.
	Registry *Registry
	// Resetter enables POST /password-reset/confirm when set.
	Resetter PasswordResetter
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	Logger  logrus.FieldLogger
}

// Server holds the handlers of the flow API.
type Server struct {
	engine   *otpflow.Engine
	flows    *Registry
	resetter PasswordResetter
	metrics  http.Handler
	logger   logrus.FieldLogger
}

// NewServer returns a server over opts.Engine.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, otpflow.ErrEngineNotReady
	}
	flows := opts.Registry
	if flows == nil {
		httpCfg := opts.Engine.Config().HTTP
		flows = NewRegistry(RegistryConfig{IdleTTL: httpCfg.FlowIdleTTL, MaxFlows: httpCfg.MaxFlows})
	}
	logger := opts.Logger
	if logger == nil {
		logger = opts.Engine.Logger()
	}
	return &Server{
		engine:   opts.Engine,
		flows:    flows,
		resetter: opts.Resetter,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// Registry returns the mounted flows.
func (s *Server) Registry() *Registry {
	return s.flows
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestContext(), accessLog(s.logger))

	r.GET("/healthz", s.healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	if s.resetter != nil {
		r.POST("/password-reset/confirm", s.confirmReset)
	}

	flows := r.Group("/flows")
	flows.POST("", s.openFlow)
	flows.GET("/:id", s.withFlow(s.getFlow))
	flows.DELETE("/:id", s.closeFlow)
	flows.PUT("/:id/email", s.withFlow(s.editEmail))
	flows.PUT("/:id/password", s.withFlow(s.editPassword))
	flows.PUT("/:id/role", s.withFlow(s.selectRole))
	flows.PUT("/:id/mode", s.withFlow(s.switchMode))
	flows.PUT("/:id/code", s.withFlow(s.enterCode))
	flows.PUT("/:id/digits/:index", s.withFlow(s.editDigit))
	flows.DELETE("/:id/digits/:index", s.withFlow(s.backspace))
	flows.POST("/:id/submit", s.withFlow(s.submit))
	flows.POST("/:id/forgot-password", s.withFlow(s.forgotPassword))

	return r
}

// OpenFlowRequest mounts a form. Empty fields default to login and student.
type OpenFlowRequest struct {
	Mode string `json:"mode"`
	Role string `json:"role"`
}

// ValueRequest carries one field edit.
type ValueRequest struct {
	Value string `json:"value"`
}

// RoleRequest selects a role.
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ModeRequest selects a flow variant.
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// ConfirmResetRequest redeems a reset link.
type ConfirmResetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FlowResponse is the body of every flow route.
type FlowResponse struct {
	Flow    otpflow.View     `json:"flow"`
	Notices []otpflow.Notice `json:"notices"`
	Error   string           `json:"error,omitempty"`
}

type flowHandler func(c *gin.Context, p *otpflow.Presenter) error

func (s *Server) withFlow(h flowHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := s.flows.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": errFlowNotFound.Error()})
			return
		}
		err := h(c, p)
		if errors.Is(err, otpflow.ErrFlowClosed) {
			s.flows.Remove(p.ID())
		}
		s.respond(c, p, http.StatusOK, err)
	}
}

func (s *Server) respond(c *gin.Context, p *otpflow.Presenter, okStatus int, err error) {
	resp := FlowResponse{
		Flow:    p.View(),
		Notices: p.Notices(),
	}
	if resp.Notices == nil {
		resp.Notices = []otpflow.Notice{}
	}
	status := okStatus
	if err != nil {
		status = statusFor(err)
		resp.Error = err.Error()
	}
	c.JSON(status, resp)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"active_flows": s.engine.ActiveFlows(),
	})
}

func (s *Server) openFlow(c *gin.Context) {
	var req OpenFlowRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	mode := otpflow.ModeLogin
	if req.Mode != "" {
		m, err := otpflow.ParseMode(req.Mode)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		mode = m
	}
	role := otpflow.RoleStudent
	if req.Role != "" {
		r, err := otpflow.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		role = r
	}

	p, err := s.engine.Open(mode, role)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err := s.flows.Add(p); err != nil {
		_ = p.Close()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, p, http.StatusCreated, nil)
}

func (s *Server) closeFlow(c *gin.Context) {
	if !s.flows.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": errFlowNotFound.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getFlow(c *gin.Context, p *otpflow.Presenter) error {
	return nil
}

func (s *Server) editEmail(c *gin.Context, p *otpflow.Presenter) error {
	var req ValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return badRequest(err)
	}
	return p.EditEmail(req.Value)
}

func (s *Server) editPassword(c *gin.Context, p *otpflow.Presenter) error {
	var req ValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return badRequest(err)
	}
	return p.EditPassword(req.Value)
}

func (s *Server) selectRole(c *gin.Context, p *otpflow.Presenter) error {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return badRequest(err)
	}
	role, err := otpflow.ParseRole(req.Role)
	if err != nil {
		return err
	}
	return p.SelectRole(c.Request.Context(), role)
}

func (s *Server) switchMode(c *gin.Context, p *otpflow.Presenter) error {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return badRequest(err)
	}
	mode, err := otpflow.ParseMode(req.Mode)
	if err != nil {
		return err
	}
	return p.SwitchMode(c.Request.Context(), mode)
}

func (s *Server) enterCode(c *gin.Context, p *otpflow.Presenter) error {
	var req ValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return badRequest(err)
	}
	return p.EnterCode(req.Value)
}

func (s *Server) editDigit(c *gin.Context, p *otpflow.Presenter) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return badRequest(err)
	}
	var req ValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return badRequest(err)
	}
	return p.EditDigit(index, req.Value)
}

func (s *Server) backspace(c *gin.Context, p *otpflow.Presenter) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return badRequest(err)
	}
	return p.Backspace(index)
}

func (s *Server) submit(c *gin.Context, p *otpflow.Presenter) error {
	return p.Submit(c.Request.Context())
}

func (s *Server) forgotPassword(c *gin.Context, p *otpflow.Presenter) error {
	return p.ForgotPassword(c.Request.Context())
}

func (s *Server) confirmReset(c *gin.Context) {
	var req ConfirmResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.resetter.ConfirmPasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		status := resetStatus(err)
		s.logger.WithError(err).Debug("password reset confirmation rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated."})
}
