// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus implements a long-lived connection to the cluster's
// local process-broker over NATS, exchanging a typed command vocabulary
// as JSON messages on per-command subjects.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/snapwebsites/snapdbproxy/internal/log"
)

// Handler processes one decoded Command arriving on the bus.
type Handler func(Command)

// Client wraps a NATS connection with the subject layout and command
// (de)serialization the daemon needs. All methods are safe for concurrent
// use; the daemon calls into it from NATS callbacks, worker goroutines and
// its reconnect job.
type Client struct {
	conn       *nats.Conn
	subs       []*nats.Subscription
	serverName string

	mu         sync.Mutex
	registered bool
}

// Dial connects to the broker described by cfg and subscribes to the
// server's private command subject.
func Dial(cfg Config, onCommand Handler) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bus: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("bus: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("bus: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("bus: error: %v", err)
		}),
	)

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect failed: %w", err)
	}

	c := &Client{conn: nc, serverName: cfg.ServerName}

	sub, err := nc.Subscribe(subjectFor(cfg.ServerName), func(msg *nats.Msg) {
		cmd, err := decodeCommand(msg.Data)
		if err != nil {
			log.Warnf("bus: dropping malformed message: %v", err)
			return
		}
		if cmd.Name == READY {
			c.mu.Lock()
			c.registered = true
			c.mu.Unlock()
		}
		onCommand(cmd)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: subscribe failed: %w", err)
	}
	c.subs = append(c.subs, sub)

	log.Infof("bus: connected to %s as %q", cfg.Address, cfg.ServerName)
	return c, nil
}

// subjectFor is the per-server command subject: the broker addresses each
// daemon individually, and the daemon's own broadcasts go out on the
// shared "snapdbproxy.broadcast" subject.
func subjectFor(serverName string) string {
	return "snapdbproxy." + serverName
}

const broadcastSubject = "snapdbproxy.broadcast"

// Register announces this daemon to the broker.
func (c *Client) Register() error {
	return c.publish(subjectFor(c.serverName), Command{Name: REGISTER, Params: map[string]string{"server": c.serverName}})
}

// Unregister tells the broker this daemon is leaving gracefully. It is
// skipped when the broker itself is quitting (QUITTING).
func (c *Client) Unregister() error {
	return c.publish(subjectFor(c.serverName), Command{Name: UNREGISTER, Params: map[string]string{"server": c.serverName}})
}

// Registered reports whether the broker has acknowledged REGISTER with a
// READY command, gating CASSANDRAREADY emission.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// BroadcastCassandraReady announces the driver session came up.
func (c *Client) BroadcastCassandraReady() error {
	return c.publish(broadcastSubject, Command{Name: CASSANDRAREADY, Params: map[string]string{"server": c.serverName}})
}

// BroadcastNoCassandra announces the driver session is down or was never
// established. The daemon is responsible for calling this at most once
// per outage.
func (c *Client) BroadcastNoCassandra() error {
	return c.publish(broadcastSubject, Command{Name: NOCASSANDRA, Params: map[string]string{"server": c.serverName}})
}

// ReplyCommands answers a HELP command with the supported vocabulary.
func (c *Client) ReplyCommands() error {
	return c.publish(broadcastSubject, Command{Name: COMMANDS, Params: map[string]string{"list": supportedCommandsList()}})
}

// ReplyUnknown reports an unrecognized command back to the broker.
func (c *Client) ReplyUnknown(name string) error {
	return c.publish(broadcastSubject, Command{Name: UNKNOWN, Params: map[string]string{"command": name}})
}

// PublishManagerStatus routes a host status snapshot to either every
// configured front-end (broadcast) or a single host.
func (c *Client) PublishManagerStatus(targetHost string, status map[string]string) error {
	subject := broadcastSubject
	if targetHost != "" {
		subject = subjectFor(targetHost)
	}
	return c.publish(subject, Command{Name: MANAGERSTATUS, Params: status})
}

// PublishModifySettings routes a validated settings change to either every
// configured front-end (broadcast, when targetHost is empty) or a single
// host, mirroring PublishManagerStatus's routing rule.
func (c *Client) PublishModifySettings(targetHost string, params map[string]string) error {
	subject := broadcastSubject
	if targetHost != "" {
		subject = subjectFor(targetHost)
	}
	return c.publish(subject, Command{Name: MODIFYSETTINGS, Params: params})
}

func (c *Client) publish(subject string, cmd Command) error {
	data, err := encodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("bus: encoding %s: %w", cmd.Name, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publishing %s: %w", cmd.Name, err)
	}
	return nil
}

// Request issues a synchronous request and waits up to ctx's deadline.
func (c *Client) Request(ctx context.Context, subject string, cmd Command) (Command, error) {
	data, err := encodeCommand(cmd)
	if err != nil {
		return Command{}, err
	}
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return Command{}, fmt.Errorf("bus: request %s failed: %w", cmd.Name, err)
	}
	return decodeCommand(msg.Data)
}

// Close unsubscribes and closes the underlying NATS connection.
func (c *Client) Close() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("bus: unsubscribe failed: %v", err)
		}
	}
	c.subs = nil
	c.conn.Close()
	log.Info("bus: connection closed")
}
