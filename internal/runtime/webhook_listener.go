package runtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"agentrt/internal/eventqueue"
	"agentrt/internal/ids"
	"agentrt/internal/logging"
)

// WebhookConfig configures a WebhookListener.
type WebhookConfig struct {
	Addr        string
	Path        string
	BearerToken string // empty disables the auth check
	AllowCORS   bool
}

// WebhookListener runs an HTTP server accepting POST bodies and mapping
// them into webhook events (spec.md §4.H). Built on gin-gonic/gin, mirroring
// the teacher's net/http middleware chain (LoggingMiddleware,
// CompressionMiddleware) but via gin's own middleware stack since this
// listener's only job is a single inbound route, not a full API surface.
type WebhookListener struct {
	listenerStatsTracker

	cfg    WebhookConfig
	queue  *eventqueue.Queue
	logger logging.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewWebhookListener creates a listener bound to queue.
func NewWebhookListener(cfg WebhookConfig, queue *eventqueue.Queue, logger logging.Logger) *WebhookListener {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	return &WebhookListener{cfg: cfg, queue: queue, logger: logging.OrNop(logger)}
}

func (l *WebhookListener) Name() string { return "webhook" }

// Start launches the HTTP server in the background.
func (l *WebhookListener) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if l.cfg.AllowCORS {
		engine.Use(cors.Default())
	}
	engine.POST(l.cfg.Path, l.handle)

	l.mu.Lock()
	l.server = &http.Server{Addr: l.cfg.Addr, Handler: engine}
	server := l.server
	l.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook listener: %w", err)
	case <-time.After(50 * time.Millisecond):
	}

	l.markStarted()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (l *WebhookListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	server := l.server
	l.mu.Unlock()
	l.markStopped()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// PushEvent is unused by WebhookListener; events only flow inbound via HTTP.
func (l *WebhookListener) PushEvent(eventqueue.Event) {}

// Stats returns a snapshot of this listener's counters.
func (l *WebhookListener) Stats() ListenerStats { return l.snapshot() }

func (l *WebhookListener) handle(c *gin.Context) {
	l.recordReceived()

	if l.cfg.BearerToken != "" {
		auth := c.GetHeader("Authorization")
		if !strings.EqualFold(strings.TrimPrefix(auth, "Bearer "), l.cfg.BearerToken) {
			l.recordError()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		l.recordError()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	event := eventqueue.Event{
		EventID:   ids.Prefixed("evt"),
		Type:      eventqueue.TypeWebhook,
		Priority:  eventqueue.PriorityNormal,
		Source:    eventqueue.SourceExternal,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	l.queue.Put(event)
	l.recordForwarded()

	c.JSON(http.StatusAccepted, gin.H{"event_id": event.EventID})
}
