package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	DEFAULT_READ_HEADER_TIMEOUT = 30 * time.Second
	DEFAULT_SHUTDOWN_TIMEOUT    = 30 * time.Second
	GRACEFUL_ENVIRON_KEY        = "IS_GRACEFUL"
	GRACEFUL_ENVIRON_VALUE      = GRACEFUL_ENVIRON_KEY + "=1"
	GRACEFUL_LISTENER_FD        = 3
)

// ServerState is the transport lifecycle: starting until the listener is bound, then serving.
type ServerState int32

const (
	StateStarting ServerState = iota
	StateServing
)

func (s ServerState) String() string {
	if s == StateServing {
		return "serving"
	}
	return "starting"
}

// LoadTLSConfig reads the certificate and key pair. Any failure here must stop the process
// before a socket is bound; there is no plaintext fallback.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair (cert=%s key=%s): %w", certFile, keyFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

// Server wraps http.Server to serve TLS with graceful shutdown and restart.
type Server struct {
	*http.Server

	rawListener  net.Listener
	listener     net.Listener
	isGraceful   bool
	state        atomic.Int32
	signalChan   chan os.Signal
	shutdownChan chan struct{}
	stopSignals  chan struct{}
	signalsDone  chan struct{}
}

// NewServer creates a Server for handler. Uploads may run for a long time,
// so only the header read is bounded.
func NewServer(addr string, handler http.Handler, tlsCfg *tls.Config) *Server {
	isGraceful := os.Getenv(GRACEFUL_ENVIRON_KEY) != ""
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			TLSConfig:         tlsCfg,
			ReadHeaderTimeout: DEFAULT_READ_HEADER_TIMEOUT,
		},
		isGraceful:   isGraceful,
		signalChan:   make(chan os.Signal, 1),
		shutdownChan: make(chan struct{}),
		stopSignals:  make(chan struct{}),
		signalsDone:  make(chan struct{}),
	}
}

// State reports whether the listener is bound yet.
func (srv *Server) State() ServerState {
	return ServerState(srv.state.Load())
}

// Addr returns the bound address, or nil before ListenTLS.
func (srv *Server) Addr() net.Addr {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// ListenTLS binds the TCP socket and wraps it with TLS.
func (srv *Server) ListenTLS() error {
	if srv.TLSConfig == nil || len(srv.TLSConfig.Certificates) == 0 {
		return errors.New("TLS config without certificates")
	}
	addr := srv.Server.Addr
	if addr == "" {
		addr = ":https"
	}
	ln, err := srv.getNetListener(addr)
	if err != nil {
		return err
	}
	srv.rawListener = ln
	srv.listener = tls.NewListener(ln, srv.TLSConfig)
	srv.state.Store(int32(StateServing))
	return nil
}

// Serve accepts connections until shutdown. It returns nil after a graceful shutdown.
func (srv *Server) Serve() error {
	go srv.handleSignals()
	err := srv.Server.Serve(srv.listener)
	if !errors.Is(err, http.ErrServerClosed) {
		close(srv.stopSignals)
		<-srv.signalsDone
		return err
	}
	// Wait until Shutdown finished
	<-srv.shutdownChan
	return nil
}

func (srv *Server) getNetListener(addr string) (net.Listener, error) {
	if srv.isGraceful {
		file := os.NewFile(GRACEFUL_LISTENER_FD, "")
		ln, err := net.FileListener(file)
		if err != nil {
			return nil, fmt.Errorf("net.FileListener error: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen error: %w", err)
	}
	return ln, nil
}

func (srv *Server) handleSignals() {
	signal.Notify(
		srv.signalChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGUSR2,
	)
	defer close(srv.signalsDone)
	defer signal.Stop(srv.signalChan)

	for {
		var sig os.Signal
		select {
		case sig = <-srv.signalChan:
		case <-srv.stopSignals:
			return
		}
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			Sugar.Infof("received %s, graceful shutting down HTTPS server", sig)
			srv.shutdownHTTPServer()
			return
		case syscall.SIGUSR2:
			Sugar.Info("received SIGUSR2, graceful restarting HTTPS server")
			if pid, err := srv.startNewProcess(); err != nil {
				Sugar.Errorf("start new process failed: %v, continue serving", err)
			} else {
				Sugar.Infof("start new process succeeded, new pid=%d", pid)
				Sugar.Info("closing old HTTPS server after new one started")
				srv.shutdownHTTPServer()
				return
			}
		}
	}
}

// shutdownHTTPServer lets in-flight requests finish for up to DEFAULT_SHUTDOWN_TIMEOUT.
func (srv *Server) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DEFAULT_SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTPS server shutdown error: %v", err)
	} else {
		Sugar.Info("HTTPS server shutdown success")
	}
	close(srv.shutdownChan)
}

// start new process to handle HTTPS connections
func (srv *Server) startNewProcess() (uintptr, error) {
	tcpLn, ok := srv.rawListener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("get listener file: %w", err)
	}
	// Only needed until ForkExec has duplicated it into the child.
	defer file.Close()
	listenerFd := file.Fd()

	envs := []string{}
	for _, e := range os.Environ() {
		if e != GRACEFUL_ENVIRON_VALUE {
			envs = append(envs, e)
		}
	}
	envs = append(envs, GRACEFUL_ENVIRON_VALUE)

	attr := &syscall.ProcAttr{
		Env:   envs,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), listenerFd},
	}
	pid, err := syscall.ForkExec(os.Args[0], os.Args, attr)
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return uintptr(pid), nil
}
