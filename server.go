package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"
)

// withServerHeader stamps "Server: world-study/<version>" on every response
// and answers HEAD / with 200 as a health check.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "world-study/"+CompileVersion)
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// hostPolicy accepts the bare domain and its www. form. IP hosts pass the
// policy so they can be served the fallback certificate.
func hostPolicy(domain string) autocert.HostPolicy {
	return func(_ context.Context, host string) error {
		if host == domain || host == "www."+domain || net.ParseIP(host) != nil {
			return nil
		}
		return errors.New("acme/autocert: host not configured")
	}
}

// listener pairs a server with the call that starts it.
type listener struct {
	srv    *http.Server
	listen func() error
}

// serveUntilDone runs every listener until ctx ends or one of them fails,
// then shuts all of them down. The first listener error is returned.
func serveUntilDone(ctx context.Context, ls ...listener) error {
	errs := make(chan error, len(ls))
	for _, l := range ls {
		go func() {
			if err := l.listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("server %s: %w", l.srv.Addr, err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, l := range ls {
		if e := l.srv.Shutdown(shutdownCtx); e != nil {
			log.Warnf("shutdown %s: %v", l.srv.Addr, e)
		}
	}
	return err
}

// serveWithDomain runs :80 (ACME HTTP-01 plus redirect) and :443 with Let's
// Encrypt certificates until ctx ends. When autocert cannot issue for a
// given SNI the last good certificate for domain is served instead. A
// failing :80 is logged only: TLS-ALPN still completes challenges on :443.
func serveWithDomain(ctx context.Context, domain string, handler http.Handler) error {
	certMgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache("certs"),
		HostPolicy: hostPolicy(domain),
	}

	mux80 := http.NewServeMux()
	mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
	mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
	plain := &http.Server{Addr: ":80", Handler: mux80, ReadHeaderTimeout: 10 * time.Second}

	var fallback atomic.Pointer[tls.Certificate]
	refresh := func() {
		c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
		if err != nil {
			log.Warnf("autocert check: %v", err)
			return
		}
		fallback.Store(c)
	}
	go func() {
		refresh()
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				refresh()
			}
		}
	}()

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if fb := fallback.Load(); fb != nil {
			return fb, nil
		}
		return nil, err
	}
	secure := &http.Server{Addr: ":443", Handler: handler, TLSConfig: tlsCfg, ReadHeaderTimeout: 10 * time.Second}

	log.Info("HTTP  server (ACME+redirect) ➜ :80")
	log.Infof("HTTPS server for %s ➜ :443", domain)
	return serveUntilDone(ctx,
		listener{srv: plain, listen: func() error {
			if err := plain.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("HTTP  server error: %v", err)
			}
			return nil
		}},
		listener{srv: secure, listen: func() error { return secure.ListenAndServeTLS("", "") }},
	)
}
