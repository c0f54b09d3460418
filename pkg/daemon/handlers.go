package daemon

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/config"
	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/session"
	"github.com/mcrlens/lensctl/pkg/types"
	"github.com/mcrlens/lensctl/pkg/version"
)

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) initialize(c *gin.Context) {
	var req session.InitRequest
	// An empty body initializes with the current selection and homing.
	req.HomeMotors = true
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, err)
		return
	}

	res, err := s.session.Dispatch(c.Request.Context(), session.InitializeRequested{InitRequest: req})
	if err != nil && !errors.Is(err, session.ErrAxisInitFault) {
		abortSession(c, err)
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("controller initialized with axis faults")
	}

	c.IndentedJSON(http.StatusOK, res)
}

func (s *Server) move(c *gin.Context) {
	var req session.MoveRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.session.Dispatch(c.Request.Context(), session.MoveRequested{MoveRequest: req})
	if err != nil && !errors.Is(err, session.ErrPositionDrift) {
		abortSession(c, err)
		return
	}

	step, _ := res.(int)
	out := types.MoveResult{
		Axis:   req.Axis,
		Step:   step,
		Status: s.session.Status(),
	}
	if err != nil {
		out.Warning = err.Error()
	}
	c.IndentedJSON(http.StatusOK, out)
}

func (s *Server) setFamily(c *gin.Context) {
	var family string
	if err := c.BindJSON(&family); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.FamilyChanged{Family: family}); err != nil {
		abortSession(c, err)
		return
	}

	logrus.Infof("set lens family to %s", family)
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setPort(c *gin.Context) {
	var port string
	if err := c.BindJSON(&port); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.PortChanged{Port: port}); err != nil {
		abortSession(c, err)
		return
	}

	logrus.Infof("set comm port to %s", port)
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setFilter(c *gin.Context) {
	var position int
	if err := c.BindJSON(&position); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.FilterRequested{Position: position}); err != nil {
		abortSession(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setSpeeds(c *gin.Context) {
	var speeds session.Speeds
	if err := c.BindJSON(&speeds); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.session.Dispatch(c.Request.Context(), session.SpeedsRequested{Speeds: speeds})
	if err != nil {
		abortSession(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, res)
}

func (s *Server) setRespectLimits(c *gin.Context) {
	var respect bool
	if err := c.BindJSON(&respect); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.LimitsToggled{Respect: respect}); err != nil {
		abortSession(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setBacklash(c *gin.Context) {
	var correct bool
	if err := c.BindJSON(&correct); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.BacklashToggled{Correct: correct}); err != nil {
		abortSession(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setRelativeWhenUnknown(c *gin.Context) {
	var allow bool
	if err := c.BindJSON(&allow); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.RelativeWhenUnknownToggled{Allow: allow}); err != nil {
		abortSession(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setCommPath(c *gin.Context) {
	var name string
	if err := c.BindJSON(&name); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}
	path, err := mcr.ParseCommPath(name)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if _, err := s.session.Dispatch(c.Request.Context(), session.CommPathRequested{Path: path}); err != nil {
		abortSession(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) getFamilies(c *gin.Context) {
	families := s.catalog.Families()
	configs := make([]lens.Configuration, 0, len(families))
	for _, f := range families {
		cfg, err := s.catalog.Resolve(f)
		if err != nil {
			abort(c, http.StatusInternalServerError, err)
			return
		}
		configs = append(configs, cfg)
	}
	c.IndentedJSON(http.StatusOK, configs)
}

func (s *Server) getPorts(c *gin.Context) {
	ports, err := s.listPorts()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	if s.checkPort {
		s.dropMissingPort(ports)
	}
	c.IndentedJSON(http.StatusOK, ports)
}

// dropMissingPort deselects the current port when it is no longer listed.
func (s *Server) dropMissingPort(ports []string) {
	port := s.session.Snapshot().Port
	if port == "" || slices.Contains(ports, port) {
		return
	}
	logrus.WithField("port", port).Warn("comm port disappeared, deselecting it")
	if err := s.session.ChangePort(""); err != nil {
		logrus.WithError(err).Warn("failed to deselect comm port")
	}
}

func (s *Server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *Server) getHistory(c *gin.Context) {
	since := c.Query("since")
	if since == "" {
		c.IndentedJSON(http.StatusOK, s.history.Records())
		return
	}
	d, err := time.ParseDuration(since)
	if err != nil || d <= 0 {
		abort(c, http.StatusBadRequest, errors.New("since must be a positive duration"))
		return
	}
	c.IndentedJSON(http.StatusOK, s.history.Since(d))
}

func (s *Server) clearHistory(c *gin.Context) {
	s.history.Clear()
	logrus.Info("transition history cleared")
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) getWatch(c *gin.Context) {
	if s.watch == nil {
		c.IndentedJSON(http.StatusOK, types.WatchStatus{})
		return
	}
	c.IndentedJSON(http.StatusOK, s.watch.Status())
}

func (s *Server) setWatch(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}
	if s.watch == nil {
		abort(c, http.StatusNotImplemented, errors.New("position watch is not running"))
		return
	}
	if err := s.watch.Schedule(expr); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s.conf.SetPositionWatch(expr)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set position watch to %q", expr)
	c.IndentedJSON(http.StatusCreated, "ok")
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *Server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe(c.QueryArray("event")...)
	defer s.hub.Unsubscribe(ch)
	logrus.WithField("subscribers", s.hub.Subscribers()).Debug("event stream opened")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Start the response so clients return from the request before the first event.
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
