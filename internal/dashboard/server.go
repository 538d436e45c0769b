package dashboard

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/internal/appointments"
	"github.com/terminal-bench/careflow/internal/auth"
	"github.com/terminal-bench/careflow/internal/capacity"
	"github.com/terminal-bench/careflow/internal/metrics"
	"github.com/terminal-bench/careflow/internal/recommend"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

// Server is the staff-facing dashboard API: logins, hospital and doctor
// views, live metrics over WebSocket.
type Server struct {
	router      *gin.Engine
	auth        *auth.Service
	store       capacity.Store
	repo        *appointments.Repository
	aggregator  *metrics.Aggregator
	recommender *recommend.Engine
	nats        *messaging.Client
	logger      *zap.Logger

	wsMu      sync.RWMutex
	wsClients map[uuid.UUID]*wsClient

	rateLimiter *rateLimiter
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

type Config struct {
	Auth        *auth.Service
	Store       capacity.Store
	Repo        *appointments.Repository
	Aggregator  *metrics.Aggregator
	Recommender *recommend.Engine
	NATS        *messaging.Client
	Logger      *zap.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:      gin.Default(),
		auth:        cfg.Auth,
		store:       cfg.Store,
		repo:        cfg.Repo,
		aggregator:  cfg.Aggregator,
		recommender: cfg.Recommender,
		nats:        cfg.NATS,
		logger:      logger,
		wsClients:   make(map[uuid.UUID]*wsClient),
		rateLimiter: newRateLimiter(120, time.Minute),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.rateLimitMiddleware())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"nats":   s.nats.IsConnected(),
		})
	})

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/admin/login", s.adminLogin)
		v1.POST("/doctor/login", s.doctorLogin)
		v1.POST("/auth/reset-password", s.resetPassword)

		v1.POST("/admin/doctors", s.authMiddleware(auth.RoleAdmin), s.registerDoctor)
		v1.GET("/dashboard/admin", s.authMiddleware(auth.RoleAdmin), s.hospitalDashboard)
		v1.GET("/dashboard/doctor/:id", s.authMiddleware(""), s.doctorDashboard)

		v1.GET("/metrics", s.authMiddleware(""), s.getMetrics)
		v1.POST("/metrics/recompute", s.authMiddleware(auth.RoleAdmin), s.recomputeMetrics)
		v1.GET("/recommendations", s.authMiddleware(""), s.getRecommendations)

		v1.GET("/ws", s.authMiddleware(""), s.handleWebSocket)
	}
}

// Handler exposes the router for the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start subscribes the WebSocket fan-out to the metrics stream.
func (s *Server) Start() error {
	return s.nats.Subscribe(messaging.SubjectMetricsUpdated, func(msg *nats.Msg) {
		s.broadcast(msg.Data)
	})
}

// Middleware

// authMiddleware validates the bearer token. An empty role admits any
// authenticated caller.
func (s *Server) authMiddleware(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			// WebSocket clients cannot set headers from browsers.
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if role != "" && claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Auth handlers

func (s *Server) adminLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := s.auth.AdminLogin(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "role": auth.RoleAdmin})
}

func (s *Server) doctorLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, doctorID, err := s.auth.DoctorLogin(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "role": auth.RoleDoctor, "doctor_id": doctorID})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	temp, err := s.auth.ResetPassword(c.Request.Context(), req.Email)
	if errors.Is(err, auth.ErrAccountNotFound) {
		// Do not reveal whether the account exists.
		c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset email has been sent"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	event := messaging.PasswordResetEvent{Email: req.Email, TempPassword: temp}
	if err := s.nats.Publish(c.Request.Context(), messaging.SubjectPasswordReset, event); err != nil {
		s.logger.Error("failed to publish password reset event", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset email has been sent"})
}

// Doctor management

func (s *Server) registerDoctor(c *gin.Context) {
	var req struct {
		Name                   string `json:"name" binding:"required"`
		Department             string `json:"department" binding:"required"`
		DailyCapacity          int    `json:"daily_capacity" binding:"required"`
		AvgConsultationMinutes int    `json:"avg_consultation_time"`
		Email                  string `json:"email" binding:"required"`
		Password               string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doctor, err := capacity.NewDoctor(uuid.New().String(), req.Name, req.Department,
		req.DailyCapacity, req.AvgConsultationMinutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.AddDoctor(c.Request.Context(), doctor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register doctor"})
		return
	}
	if err := s.auth.RegisterDoctor(c.Request.Context(), doctor.ID, req.Email, req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create credentials"})
		return
	}

	c.JSON(http.StatusCreated, doctor)
}

// Dashboard views

func (s *Server) hospitalDashboard(c *gin.Context) {
	doctors, pool, err := s.store.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read capacity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"doctors":         doctors,
		"resources":       pool,
		"metrics":         s.aggregator.Latest(),
		"recommendations": s.recommender.Current(),
	})
}

func (s *Server) doctorDashboard(c *gin.Context) {
	claims := c.MustGet("claims").(*auth.Claims)
	doctorID := c.Param("id")

	// Doctors can only see their own dashboard; admins can see any.
	if claims.Role == auth.RoleDoctor && claims.DoctorID != doctorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your dashboard"})
		return
	}

	doctor, err := s.store.GetDoctor(c.Request.Context(), doctorID)
	if errors.Is(err, capacity.ErrDoctorNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "doctor not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read doctor"})
		return
	}

	appts, err := s.repo.ByDoctor(c.Request.Context(), doctorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read appointments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"doctor":       doctor,
		"appointments": appts,
		"count":        len(appts),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	snap := s.aggregator.Latest()
	if snap == nil {
		var err error
		snap, err = s.aggregator.Recompute(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) recomputeMetrics(c *gin.Context) {
	snap, err := s.aggregator.Recompute(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recompute failed"})
		return
	}
	s.recommender.Generate(snap)
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getRecommendations(c *gin.Context) {
	rec := s.recommender.Current()
	if rec == nil {
		snap := s.aggregator.Latest()
		if snap == nil {
			var err error
			snap, err = s.aggregator.Recompute(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recommendations unavailable"})
				return
			}
		}
		generated := s.recommender.Generate(snap)
		rec = &generated
	}
	c.JSON(http.StatusOK, rec)
}

// WebSocket fan-out

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	s.wsMu.Lock()
	s.wsClients[client.id] = client
	s.wsMu.Unlock()

	go s.wsReadPump(client)
	go s.wsWritePump(client)
}

func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, client.id)
		s.wsMu.Unlock()
		close(client.done)
		client.conn.Close()
	}()

	// Clients only listen; reads exist to detect disconnects.
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) wsWritePump(client *wsClient) {
	for {
		select {
		case message := <-client.send:
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

func (s *Server) broadcast(message []byte) {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()

	for _, client := range s.wsClients {
		select {
		case client.send <- message:
		default:
			// Slow consumer, drop the update. The next one replaces it.
		}
	}
}

// rateLimiter is a fixed-window per-IP limiter.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}
