// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package daemon wires together the running snapdbproxyd process: it owns
// the client listener, the bus client, the schema cache, the cluster
// driver, the audit log and the admin bridge, and implements the
// startup/steady-state/shutdown sequence.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapwebsites/snapdbproxy/internal/adminbridge"
	"github.com/snapwebsites/snapdbproxy/internal/audit"
	"github.com/snapwebsites/snapdbproxy/internal/bus"
	"github.com/snapwebsites/snapdbproxy/internal/clusterdriver"
	"github.com/snapwebsites/snapdbproxy/internal/config"
	"github.com/snapwebsites/snapdbproxy/internal/cursor"
	"github.com/snapwebsites/snapdbproxy/internal/log"
	"github.com/snapwebsites/snapdbproxy/internal/schemacache"
	"github.com/snapwebsites/snapdbproxy/internal/transport"
	"github.com/snapwebsites/snapdbproxy/internal/wire"
	"github.com/snapwebsites/snapdbproxy/internal/wireerr"
	"github.com/snapwebsites/snapdbproxy/internal/worker"
)

const reconnectInterval = 5 * time.Second

// Daemon is the top-level process object built by cmd/snapdbproxyd.
type Daemon struct {
	cfg      config.Config
	listener *transport.Listener
	bus      *bus.Client
	schema   *schemacache.Cache
	audit    *audit.Store
	metrics  *metrics

	admin     *adminbridge.Server
	adminHTTP *http.Server

	metricsHTTP *http.Server

	driverCfg clusterdriver.Config
	driverMu  sync.RWMutex
	driver    *clusterdriver.Driver

	stateMu            sync.Mutex
	cassandraReady     bool
	noCassandraEmitted bool
	reconnect          *reconnector

	streamsMu sync.Mutex
	streams   []*transport.Stream

	wg           sync.WaitGroup
	shutdownOnce sync.Once
	quitting     atomic.Bool
}

// New assembles a Daemon from cfg: it binds the client-facing listener,
// opens the audit log, dials the bus and builds the admin bridge and
// metrics servers. Any failure releases what was already opened.
func New(cfg config.Config) (*Daemon, error) {
	mode, err := cfg.TransportMode()
	if err != nil {
		return nil, err
	}

	listener, err := transport.Listen(transport.ListenerConfig{
		Network:  "tcp",
		Address:  cfg.Snapdbproxy,
		Mode:     mode,
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		CertDir:  cfg.TLS.CertDir,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: binding %s: %w", cfg.Snapdbproxy, err)
	}

	auditStore, err := cfg.AuditStore()
	if err != nil {
		listener.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		listener: listener,
		schema:   schemacache.New(),
		audit:    auditStore,
		metrics:  newMetrics(),
		driverCfg: clusterdriver.Config{
			Hosts:   cfg.CassandraHosts(),
			Port:    cfg.CassandraPort,
			Timeout: 5 * time.Second,
		},
	}

	busCfg, err := cfg.BusConfig()
	if err != nil {
		d.Shutdown(context.Background())
		return nil, err
	}
	busClient, err := bus.Dial(busCfg, d.handleCommand)
	if err != nil {
		d.Shutdown(context.Background())
		return nil, err
	}
	d.bus = busClient

	admin, err := adminbridge.New(d, cfg.AdminBridge.AllowedClients)
	if err != nil {
		d.Shutdown(context.Background())
		return nil, err
	}
	d.admin = admin
	if cfg.AdminBridge.Listen != "" {
		d.adminHTTP = &http.Server{Addr: cfg.AdminBridge.Listen, Handler: admin.Handler()}
	}
	d.metricsHTTP = &http.Server{Addr: "127.0.0.1:9090", Handler: d.metrics.handler()}

	return d, nil
}

// Run brings the daemon to steady state: it attempts one immediate driver
// connection, arms the reconnect timer on failure, then starts accepting
// client connections and serving the admin/metrics HTTP endpoints. It
// returns once those goroutines are launched; it does not block.
func (d *Daemon) Run() error {
	if err := d.connectDriver(); err != nil {
		log.Warnf("daemon: cluster unreachable at startup: %v", err)
		d.emitNoCassandra()
		d.armReconnect()
	} else {
		d.stateMu.Lock()
		d.cassandraReady = true
		d.stateMu.Unlock()
	}

	if err := d.bus.Register(); err != nil {
		log.Warnf("daemon: REGISTER failed: %v", err)
	}

	d.wg.Add(1)
	go d.acceptLoop()

	if d.adminHTTP != nil {
		d.wg.Add(1)
		go d.serveHTTP(d.adminHTTP, "admin bridge")
	}
	d.wg.Add(1)
	go d.serveHTTP(d.metricsHTTP, "metrics")

	return nil
}

// Shutdown drains the daemon: stop accepting, half-close every worker's
// read side so its blocking read observes an I/O error, wait for all
// goroutines to join, then release the cluster driver, bus and audit
// connections.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.shutdownOnce.Do(func() {
		d.listener.Close()
		if d.adminHTTP != nil {
			d.adminHTTP.Shutdown(ctx)
		}
		if d.metricsHTTP != nil {
			d.metricsHTTP.Shutdown(ctx)
		}

		d.stateMu.Lock()
		if d.reconnect != nil {
			d.reconnect.stop()
			d.reconnect = nil
		}
		d.stateMu.Unlock()

		d.killWorkers()
	})

	d.wg.Wait()

	d.driverMu.Lock()
	if d.driver != nil {
		d.driver.Close()
	}
	d.driverMu.Unlock()

	if d.bus != nil {
		if !d.quitting.Load() {
			if err := d.bus.Unregister(); err != nil {
				log.Warnf("daemon: UNREGISTER failed: %v", err)
			}
		}
		d.bus.Close()
	}

	if d.audit != nil {
		return d.audit.Close()
	}
	return nil
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		stream, err := d.listener.Accept()
		if err != nil {
			log.Infof("daemon: listener stopped: %v", err)
			return
		}

		d.metrics.connectionsTotal.Inc()
		d.trackStream(stream)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w := worker.New(stream, d.currentBackend(), d.schema, d.onUnreachable)
			w.Run()
		}()
	}
}

func (d *Daemon) serveHTTP(server *http.Server, name string) {
	defer d.wg.Done()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("daemon: %s server: %v", name, err)
	}
}

func (d *Daemon) trackStream(s *transport.Stream) {
	d.streamsMu.Lock()
	defer d.streamsMu.Unlock()
	d.streams = append(d.streams, s)
}

func (d *Daemon) killWorkers() {
	d.streamsMu.Lock()
	defer d.streamsMu.Unlock()
	for _, s := range d.streams {
		if err := s.CloseRead(); err != nil {
			log.Debugf("daemon: closing worker read side: %v", err)
		}
	}
}

func (d *Daemon) connectDriver() error {
	drv, err := clusterdriver.Open(d.driverCfg)
	if err != nil {
		return err
	}
	d.driverMu.Lock()
	d.driver = drv
	d.driverMu.Unlock()
	return nil
}

// currentBackend returns the worker.Backend in effect right now: the live
// driver once connected, or a stub that fails every call with a driver-
// unreachable error while the cluster is down.
func (d *Daemon) currentBackend() worker.Backend {
	d.driverMu.RLock()
	defer d.driverMu.RUnlock()
	if d.driver == nil {
		return unavailableBackend{}
	}
	return d.driver
}

// onUnreachable is worker.Unreachable: called by a worker the moment it
// sees the driver report total loss of cluster connectivity.
func (d *Daemon) onUnreachable() {
	d.driverMu.Lock()
	if d.driver != nil {
		d.driver.Close()
		d.driver = nil
	}
	d.driverMu.Unlock()

	d.emitNoCassandra()
	d.armReconnect()
}

// emitNoCassandra broadcasts NOCASSANDRA at most once per outage.
func (d *Daemon) emitNoCassandra() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.noCassandraEmitted {
		return
	}
	d.noCassandraEmitted = true
	d.cassandraReady = false
	d.metrics.noCassandraTotal.Inc()
	if err := d.bus.BroadcastNoCassandra(); err != nil {
		log.Warnf("daemon: broadcasting NOCASSANDRA: %v", err)
	}
}

func (d *Daemon) armReconnect() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.reconnect != nil {
		return
	}
	r, err := newReconnector(reconnectInterval)
	if err != nil {
		log.Errorf("daemon: creating reconnect scheduler: %v", err)
		return
	}
	d.reconnect = r
	if err := r.start(d.attemptReconnect); err != nil {
		log.Errorf("daemon: arming reconnect timer: %v", err)
	}
}

func (d *Daemon) attemptReconnect() error {
	if err := d.connectDriver(); err != nil {
		return err
	}

	d.stateMu.Lock()
	d.cassandraReady = true
	d.noCassandraEmitted = false
	r := d.reconnect
	d.reconnect = nil
	d.stateMu.Unlock()

	if err := d.bus.BroadcastCassandraReady(); err != nil {
		log.Warnf("daemon: broadcasting CASSANDRAREADY: %v", err)
	}
	if r != nil {
		go r.stop()
	}
	return nil
}

// handleCommand processes commands the broker delivers to this daemon's
// private subject.
func (d *Daemon) handleCommand(cmd bus.Command) {
	switch cmd.Name {
	case bus.STOP, bus.QUITTING:
		if cmd.Name == bus.QUITTING {
			d.quitting.Store(true)
		}
		go d.Shutdown(context.Background())
	case bus.HELP:
		if err := d.bus.ReplyCommands(); err != nil {
			log.Warnf("daemon: replying to HELP: %v", err)
		}
	case bus.MODIFYSETTINGS:
		d.recordModifySettings(cmd.Params)
	case bus.MANAGERSTATUS:
		d.recordManagerStatus(cmd.Params)
	case bus.CASSANDRASTATUS:
		d.replyCassandraStatus()
	default:
		if !bus.IsRecognized(cmd.Name) {
			if err := d.bus.ReplyUnknown(string(cmd.Name)); err != nil {
				log.Warnf("daemon: replying UNKNOWN: %v", err)
			}
		}
	}
}

// replyCassandraStatus answers a CASSANDRASTATUS query by re-emitting the
// broadcast that matches the driver's current state, rather than a
// dedicated reply command the broker has no handler for.
func (d *Daemon) replyCassandraStatus() {
	d.stateMu.Lock()
	ready := d.cassandraReady
	d.stateMu.Unlock()

	if ready {
		if err := d.bus.BroadcastCassandraReady(); err != nil {
			log.Warnf("daemon: replying to CASSANDRASTATUS with CASSANDRAREADY: %v", err)
		}
		return
	}
	if err := d.bus.BroadcastNoCassandra(); err != nil {
		log.Warnf("daemon: replying to CASSANDRASTATUS with NOCASSANDRA: %v", err)
	}
}

func (d *Daemon) recordModifySettings(params map[string]string) {
	if err := d.audit.RecordModifySettings(time.Now(), params["host"], params["field"], params["old_value"], params["new_value"], params["save_everywhere"] == "true"); err != nil {
		log.Errorf("daemon: recording MODIFYSETTINGS: %v", err)
	}
}

func (d *Daemon) recordManagerStatus(params map[string]string) {
	if err := d.audit.RecordManagerStatus(time.Now(), params["host"], params); err != nil {
		log.Errorf("daemon: recording MANAGERSTATUS: %v", err)
	}
}

// ForwardModifySettings implements adminbridge.Forwarder: it durably
// records the change before publishing it to the bus, so the audit log
// never loses a change the bus failed to deliver.
func (d *Daemon) ForwardModifySettings(req adminbridge.ModifySettingsRequest) error {
	now := time.Now()
	if err := d.audit.RecordModifySettings(now, req.Host, req.Field, "", req.Value, req.SaveEverywhere); err != nil {
		return fmt.Errorf("daemon: recording audit entry: %w", err)
	}

	target := req.Host
	if req.SaveEverywhere {
		target = ""
	}
	return d.bus.PublishModifySettings(target, map[string]string{
		"host":            req.Host,
		"field":           req.Field,
		"new_value":       req.Value,
		"save_everywhere": fmt.Sprintf("%t", req.SaveEverywhere),
	})
}

// unavailableBackend reports every operation as a driver-unreachable error
// while no cluster session exists.
type unavailableBackend struct{}

func (unavailableBackend) ExecSuccess(o *wire.Order) error {
	return wireerr.DriverUnreachable("cluster not connected", nil)
}

func (unavailableBackend) ExecRows(o *wire.Order) ([][]byte, error) {
	return nil, wireerr.DriverUnreachable("cluster not connected", nil)
}

func (unavailableBackend) Declare(o *wire.Order) (cursor.Query, [][]byte, error) {
	return nil, nil, wireerr.DriverUnreachable("cluster not connected", nil)
}

func (unavailableBackend) DescribeCluster() ([]byte, error) {
	return nil, wireerr.DriverUnreachable("cluster not connected", nil)
}
