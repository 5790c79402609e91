package server

import (
	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/registry"
	"github.com/cyberinferno/lanchat/session"
)

// handleMessage applies the server protocol to one message read from s.
func (c *Controller) handleMessage(s *session.Session, m message.Message) {
	switch m.Type {
	case message.TypeHandshake:
		c.handleHandshake(s, m)
	case message.TypeDisconnect:
		c.handleDisconnect(s)
	default:
		username, joined := s.Username()
		if !joined {
			c.logger.Debug("dropping message from session that has not joined",
				logger.Field{Key: "session", Value: s.ID()},
				logger.Field{Key: "type", Value: m.Type.String()},
			)
			return
		}

		// Relayed traffic carries the author's joined name, never a claimed one.
		if m.Sender != username {
			c.logger.Debug("rewriting claimed sender",
				logger.Field{Key: "username", Value: username},
				logger.Field{Key: "claimed", Value: m.Sender},
			)
			m.Sender = username
		}

		c.emitMessage(m)
		c.engine.Broadcast(m, s)
	}
}

func (c *Controller) handleHandshake(s *session.Session, m message.Message) {
	if name, joined := s.Username(); joined {
		c.logger.Debug("dropping repeated handshake",
			logger.Field{Key: "username", Value: name},
			logger.Field{Key: "claimed", Value: m.Sender},
		)
		return
	}

	c.mu.Lock()
	serverName := c.serverName
	bufferSize := c.bufferSize
	c.mu.Unlock()

	username := m.Sender
	switch {
	case username == "":
		c.reject(s, serverName, username, message.ReasonInvalidName)
		return
	case username == serverName, c.registry.Contains(username):
		c.reject(s, serverName, username, message.ReasonNameInUse)
		return
	}

	if size, ok := m.HandshakeBufferSize(); !ok || size != bufferSize {
		c.reject(s, serverName, username, message.ReasonBufferMismatch)
		return
	}

	if !c.registry.TryAdd(username, s) {
		c.reject(s, serverName, username, message.ReasonNameInUse)
		return
	}
	s.SetUsername(username)

	c.logger.Info("client joined",
		logger.Field{Key: "username", Value: username},
		logger.Field{Key: "remote", Value: s.RemoteAddr()},
	)
	c.emitClientJoined(username)

	joined := message.NewJoined(serverName, username)
	c.emitMessage(joined)
	c.engine.Broadcast(joined, nil)
}

// reject answers a failed handshake directly. The session stays open and
// unregistered until the peer goes away.
func (c *Controller) reject(s *session.Session, serverName, username, reason string) {
	c.logger.Info("handshake rejected",
		logger.Field{Key: "username", Value: username},
		logger.Field{Key: "reason", Value: reason},
	)

	if err := s.Send(message.New(message.TypeError, serverName, reason)); err != nil {
		c.logger.Warn("failed to send handshake rejection",
			logger.Field{Key: "session", Value: s.ID()},
			logger.Err(err),
		)
	}
}

func (c *Controller) handleDisconnect(s *session.Session) {
	if username, removed := c.registry.RemoveBySession(s); removed {
		c.announceLeft(username)
	}

	_ = s.Close()
}

// handleClosed runs once per session after its read loop has exited.
func (c *Controller) handleClosed(s *session.Session, err error) {
	c.sessions.Delete(s.ID())

	if err != nil {
		c.logger.Debug("session ended", logger.Field{Key: "session", Value: s.ID()}, logger.Err(err))
	}

	if username, removed := c.registry.RemoveBySession(s); removed {
		c.announceLeft(username)
	}
}

// handleEvicted is the broadcast engine's callback for a recipient whose
// write failed; the engine has already removed it from the registry.
func (c *Controller) handleEvicted(username string, member registry.Member, err error) {
	c.logger.Info("client evicted after failed delivery",
		logger.Field{Key: "username", Value: username},
		logger.Err(err),
	)
	_ = member.Close()
	c.announceLeft(username)
}

func (c *Controller) announceLeft(username string) {
	c.logger.Info("client left", logger.Field{Key: "username", Value: username})
	c.emitClientLeft(username)

	if c.State() != Listening {
		return
	}

	left := message.NewLeft(c.Name(), username)
	c.emitMessage(left)
	c.engine.Broadcast(left, nil)
}
