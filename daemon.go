package main

import (
	"context"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neovim/go-client/nvim"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"codeassist/client/llm"
	"codeassist/fixup"
)

type Daemon struct {
	config         Config
	generator      fixup.Generator
	weaviateClient *weaviate.Client
	listener       net.Listener
	socketPath     string
	pidPath        string
	clientCount    int64
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewDaemon(config Config) (*Daemon, error) {
	generator, err := llm.New(llm.Config{
		BaseURL:     config.ProviderURL,
		APIKey:      config.ProviderAPIKey,
		Model:       config.ProviderModel,
		Temperature: float32(config.ProviderTemperature),
		MaxTokens:   config.ProviderMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     config,
		generator:  generator,
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}

	// The embeddings retriever is optional: without an index the mixer
	// simply runs fewer retrievers.
	if config.WeaviateURL != "" {
		parsed, err := url.Parse(config.WeaviateURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			log.Printf("warning: invalid weaviate_url %q, embeddings retriever disabled", config.WeaviateURL)
		} else {
			client, err := weaviate.NewClient(weaviate.Config{
				Host:   parsed.Host,
				Scheme: parsed.Scheme,
			})
			if err != nil {
				log.Printf("warning: weaviate client: %v, embeddings retriever disabled", err)
			} else {
				d.weaviateClient = client
			}
		}
	}

	return d, nil
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	log.Printf("daemon listening on socket: %s", d.socketPath)

	d.setupShutdownHandling()
	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	log.Printf("daemon shutting down...")
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return // Server is shutting down
			default:
				log.Printf("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		log.Printf("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		log.Printf("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		log.Printf("error creating nvim client: %v", err)
		return
	}

	svc, err := newService(d.config, d.generator, d.weaviateClient, n)
	if err != nil {
		log.Printf("error wiring service: %v", err)
		return
	}
	if err := svc.start(d.ctx); err != nil {
		log.Printf("error starting service: %v", err)
		return
	}
	defer svc.stop()

	select {
	case <-d.ctx.Done():
		return
	default:
		if err := n.Serve(); err != nil && err != io.EOF {
			log.Printf("error serving connection: %v", err)
		}
	}
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down immediately when no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					log.Printf("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	idleTimer := time.NewTimer(30 * time.Second)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				log.Printf("no clients connected for timeout period, shutting down daemon")
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(5 * time.Second)
		} else {
			idleTimer.Reset(30 * time.Second)
		}
	}
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		log.Printf("warning: could not write PID file: %v", err)
	}
	log.Printf("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not remove PID file: %v", err)
	}
}
