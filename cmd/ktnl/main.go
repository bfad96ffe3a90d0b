// Command ktnl runs the SMTP-to-Atom bridge: an SMTP listener that turns
// inbound mail into feed entries, and an HTTP server that publishes those
// entries as per-feed Atom documents. No flags; configuration is read
// entirely from the environment (internal/config). Shutdown follows
// wansing/ulist/cmd/ulist/ulist.go's signal-channel idiom, simplified to
// this system's two listeners.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ktnl/ktnl/internal/config"
	"github.com/ktnl/ktnl/internal/entry"
	"github.com/ktnl/ktnl/internal/smtp"
	"github.com/ktnl/ktnl/internal/store"
	"github.com/ktnl/ktnl/internal/store/sqlite"
	"github.com/ktnl/ktnl/internal/web"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := sqlite.Open(cfg.DBFile, cfg.EmailDomain, cfg.WebURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open feed store")
	}
	defer db.Close()

	smtpListener, err := net.Listen("tcp", cfg.SMTPAddr)
	if err != nil {
		log.WithError(err).Error("failed to bind SMTP listener")
		os.Exit(1)
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.WithError(err).Error("failed to bind HTTP listener")
		os.Exit(1)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	listener := smtp.NewListener(cfg.EmailDomain, deliverHandler(db, cfg.EmailDomain, log), log)

	go func() {
		log.WithField("addr", cfg.SMTPAddr).Info("SMTP listener starting")
		if err := listener.Serve(smtpListener); err != nil {
			log.WithError(err).Error("SMTP listener stopped")
			shutdown <- syscall.SIGTERM
		}
	}()

	webApp := &web.Web{
		Store:       db,
		EmailDomain: cfg.EmailDomain,
		WebURL:      cfg.WebURL,
		Log:         log,
	}
	httpSrv := &http.Server{Handler: webApp.NewServer()}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listener starting")
		if err := httpSrv.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP listener stopped")
			shutdown <- syscall.SIGTERM
		}
	}()

	log.Info("running")
	<-shutdown
	log.Info("received shutdown signal")

	_ = smtpListener.Close()
	_ = httpSrv.Shutdown(context.Background())

	log.Info("exiting")
}

// deliverHandler bridges the SMTP Session's Envelope into Entry Projection.
func deliverHandler(st store.Store, emailDomain string, log logrus.FieldLogger) smtp.Handler {
	return func(env smtp.Envelope) error {
		_, err := entry.Project(entry.Envelope{Rcpt: env.Rcpt, Body: env.Body}, emailDomain, st, log)
		return err
	}
}
