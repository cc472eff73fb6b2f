package control

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/trap"
	"github.com/sirupsen/logrus"
)

// configFrame answers every document written on the config channel.
type configFrame struct {
	Result bool             `json:"result"`
	Info   *trap.ModuleInfo `json:"info,omitempty"`
}

// configChannel mimics the short-range link used during installation: the client
// writes config documents and reads back the module info after each one.
type configChannel struct {
	upgrader   websocket.Upgrader
	controller Controller
	log        *logrus.Entry
	mu         sync.Mutex
	conns      map[*websocket.Conn]struct{}
}

func newConfigChannel(controller Controller, log *logrus.Entry) *configChannel {
	return &configChannel{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		controller: controller,
		log:        log,
		conns:      map[*websocket.Conn]struct{}{},
	}
}

func (c *configChannel) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warnf("config channel upgrade failed: %v", err)
		return
	}
	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()
	c.log.Info("config channel connected")
	go c.readLoop(conn)
}

func (c *configChannel) readLoop(conn *websocket.Conn) {
	defer c.drop(conn)
	if err := conn.WriteJSON(c.frame(true)); err != nil {
		return
	}
	for {
		var doc entities.ConfigDocument
		if err := conn.ReadJSON(&doc); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugf("config channel read: %v", err)
			}
			return
		}
		ok := true
		if !doc.ToPatch().IsEmpty() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			applied, err := c.controller.SetConfig(ctx, doc)
			cancel()
			ok = applied
			if err != nil {
				c.log.Warnf("config channel update: %v", err)
				ok = false
			}
		}
		if err := conn.WriteJSON(c.frame(ok)); err != nil {
			return
		}
	}
}

func (c *configChannel) frame(ok bool) configFrame {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	info, err := c.controller.ModuleInfo(ctx)
	if err != nil {
		return configFrame{Result: false}
	}
	return configFrame{Result: ok, Info: &info}
}

func (c *configChannel) drop(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
	c.log.Info("config channel disconnected")
}

func (c *configChannel) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn := range c.conns {
		_ = conn.Close()
	}
}
