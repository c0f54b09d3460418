package daemon

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/config"
	"github.com/mcrlens/lensctl/pkg/events"
	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/session"
)

const historySize = 100

// Server exposes one session over HTTP.
type Server struct {
	session *session.Coordinator
	conf    config.Config
	catalog *lens.Catalog
	hub     *events.EventHub
	history *History
	watch   *PositionWatch

	// listPorts is swapped in tests.
	listPorts func() ([]string, error)
	// checkPort deselects the current port when a listing no longer has it.
	checkPort bool

	unsubscribe func()
}

// NewServer wires the event hub and history to the session. watch may be nil.
func NewServer(s *session.Coordinator, conf config.Config, catalog *lens.Catalog, watch *PositionWatch) *Server {
	srv := &Server{
		session:   s,
		conf:      conf,
		catalog:   catalog,
		hub:       events.NewEventHub(),
		history:   NewHistory(historySize),
		watch:     watch,
		listPorts: mcr.ListPorts,
	}
	srv.unsubscribe = s.Subscribe(&hubObserver{hub: srv.hub, history: srv.history})
	return srv
}

// Close ends all event streams and detaches from the session.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.GET("/status", s.getStatus)
	router.POST("/initialize", s.initialize)
	router.POST("/move", s.move)
	router.PUT("/family", s.setFamily)
	router.PUT("/port", s.setPort)
	router.PUT("/filter", s.setFilter)
	router.PUT("/speeds", s.setSpeeds)
	router.PUT("/respect-limits", s.setRespectLimits)
	router.PUT("/backlash", s.setBacklash)
	router.PUT("/relative-when-unknown", s.setRelativeWhenUnknown)
	router.PUT("/comm-path", s.setCommPath)
	router.GET("/families", s.getFamilies)
	router.GET("/ports", s.getPorts)
	router.GET("/config", s.getConfig)
	router.GET("/history", s.getHistory)
	router.DELETE("/history", s.clearHistory)
	router.GET("/watch", s.getWatch)
	router.PUT("/watch", s.setWatch)
	router.GET("/version", getVersion)
	router.GET("/events", s.streamEvents)

	return router
}
