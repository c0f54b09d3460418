package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/config"
	"github.com/mcrlens/lensctl/pkg/events"
	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/session"
)

// Options configures Run.
type Options struct {
	ConfigPath   string
	SocketPath   string
	AllowNonRoot bool
	Connector    mcr.Connector
	// CheckPort clears a persisted comm port that is no longer present, at
	// startup and whenever ports are listed.
	CheckPort bool
	// LensCatalog, when set, replaces the persisted lens catalog path.
	LensCatalog string
}

// selectLensCatalog persists a catalog path given on the command line.
func selectLensCatalog(conf config.Config, path string) error {
	if path == "" || path == conf.LensCatalog() {
		return nil
	}
	if _, err := lens.LoadCatalog(path); err != nil {
		return err
	}
	conf.SetLensCatalog(path)
	logrus.WithField("lensCatalog", path).Info("lens catalog changed")
	return pkgerrors.Wrap(conf.Save(), "failed to save lens catalog path")
}

// checkPersistedPort clears the persisted port when the system no longer has it.
func checkPersistedPort(conf config.Config, available func(string) (bool, error)) {
	port := conf.ComPort()
	if port == "" {
		return
	}
	ok, err := available(port)
	if err != nil {
		logrus.WithError(err).Warn("failed to check persisted comm port")
		return
	}
	if ok {
		return
	}
	logrus.WithField("port", port).Warn("persisted comm port not found, clearing it")
	conf.SetComPort("")
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
	}
}

// resolveFamily falls back to a family from the catalog when the persisted one
// is unknown.
func resolveFamily(catalog *lens.Catalog, family string) string {
	if _, err := catalog.Resolve(family); err == nil {
		return family
	}
	fallback := lens.DefaultFamily
	if _, err := catalog.Resolve(fallback); err != nil {
		fallback = catalog.Families()[0]
	}
	logrus.WithFields(logrus.Fields{
		"family":   family,
		"fallback": fallback,
	}).Warn("persisted lens family not in catalog")
	return fallback
}

func newSession(conf config.Config, catalog *lens.Catalog, connector mcr.Connector) *session.Coordinator {
	return session.New(session.Options{
		Connector:           connector,
		Catalog:             catalog,
		Store:               conf,
		Port:                conf.ComPort(),
		Family:              resolveFamily(catalog, conf.LensFamily()),
		RespectLimits:       conf.RespectLimits(),
		CorrectBacklash:     conf.CorrectBacklash(),
		RelativeWhenUnknown: conf.RelativeWhenUnknown(),
	})
}

func Run(opts Options) error {
	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	if err := selectLensCatalog(conf, opts.LensCatalog); err != nil {
		return pkgerrors.Wrap(err, "failed to select lens catalog")
	}
	catalog, err := lens.LoadCatalog(conf.LensCatalog())
	if err != nil {
		return pkgerrors.Wrap(err, "failed to load lens catalog")
	}

	if opts.CheckPort {
		checkPersistedPort(conf, mcr.PortAvailable)
	}

	coordinator := newSession(conf, catalog, opts.Connector)

	watch := NewPositionWatch(func() error {
		err := coordinator.CheckPosition(context.Background())
		if errors.Is(err, session.ErrBusy) {
			return nil
		}
		return err
	}, nil)
	server := NewServer(coordinator, conf, catalog, watch)
	server.checkPort = opts.CheckPort
	watch.OnError = func(data any) {
		logrus.WithField("error", data).Warn("position check failed")
		server.hub.Publish(events.PositionCheckFailed, events.PositionCheckEvent{
			Message: fmt.Sprint(data),
			Ts:      time.Now().Unix(),
		})
	}
	if err := watch.Schedule(conf.PositionWatch()); err != nil {
		logrus.WithError(err).Warn("invalid position watch schedule, watch disabled")
	}
	watch.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := watch.Schedule(conf.PositionWatch()); err != nil {
				logrus.WithError(err).Warn("invalid position watch schedule")
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if _, err := os.Stat(opts.SocketPath); err == nil {
		logrus.Debugf("removing stale socket %s", opts.SocketPath)
		_ = os.Remove(opts.SocketPath)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", opts.SocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.SocketPath)
		err = os.Chmod(opts.SocketPath, 0777)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to change permissions of %s", opts.SocketPath)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping position watch")
	watch.Stop()

	logrus.Info("closing event streams")
	server.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("closing controller connection")
	if err := coordinator.Teardown(); err != nil {
		logrus.Errorf("failed to close controller connection: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
