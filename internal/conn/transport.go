// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal duplex surface the manager needs from a
// transport connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn. The manager bounds each dial with a context
// deadline; implementations must honor cancellation.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the websocket handshake. The overall
	// attempt is already bounded by the manager's context deadline.
	HandshakeTimeout time.Duration
}

// DialContext opens a websocket connection to url.
func (d WebsocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	c, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return c, nil
}
