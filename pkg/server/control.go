package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/relaychat/relayd/pkg/model"
	"github.com/relaychat/relayd/pkg/protocol"
)

// StartChat starts the TCP chat listener and accept loop.
func (s *Server) StartChat() error {
	ln, err := net.Listen("tcp", s.cfg.ChatAddr)
	if err != nil {
		return fmt.Errorf("server: listen chat: %w", err)
	}
	s.chatConn = ln

	slog.Info("chat listening", "addr", ln.Addr())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					slog.Error("accept error", "err", err)
					continue
				}
			}
			go s.handleChatConn(conn)
		}
	}()

	return nil
}

// handleChatConn handles a single chat connection lifecycle:
// handshake, session registration, relay loop, teardown.
func (s *Server) handleChatConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	remoteAddr := conn.RemoteAddr().String()
	s.metrics.TotalConnections.Add(1)
	slog.Debug("new chat connection", "remote", remoteAddr)

	r := protocol.NewReader(conn, s.cfg.MaxPayload)
	w := protocol.NewWriter(conn, s.cfg.MaxPayload)

	// First frame must be an AuthRequest, within the auth deadline
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	frame, err := r.ReadFrame()
	if err != nil {
		slog.Debug("auth read failed", "remote", remoteAddr, "err", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{}) // clear deadline

	if !frame.IsAuthRequest() {
		slog.Debug("first frame not auth", "remote", remoteAddr, "tag", frame.Tag)
		return
	}

	var user *userIdentity
	switch frame.Tag {
	case protocol.TagAuthLogin:
		user, err = s.login(frame.Username, frame.Password)
	case protocol.TagAuthRegister:
		user, err = s.register(frame.Username, frame.Password)
	}
	if err != nil {
		s.metrics.FailedAuths.Add(1)
		slog.Info("authentication failed", "remote", remoteAddr, "username", frame.Username, "err", err)
		_ = w.WriteFrame(protocol.AuthResultFrame(false, err.Error()))
		return
	}

	sess := s.sessions.Create(user.ID, user.Username, conn)
	s.hub.Join(sess)
	s.metrics.SuccessfulAuths.Add(1)
	s.metrics.ActiveConnections.Add(1)

	defer func() {
		s.hub.Leave(sess.ID)
		s.sessions.Remove(sess.ID)
		sess.Close()
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
		slog.Info("client disconnected", "user", user.Username, "session", sess.ID)
	}()

	if err := w.WriteFrame(protocol.AuthResultFrame(true, "")); err != nil {
		slog.Error("auth result write failed", "user", user.Username, "err", err)
		return
	}

	slog.Info("client authenticated", "user", user.Username, "session", sess.ID)

	// Writer drains the session queue onto the socket. It owns the write
	// side of the conn; the relay loop below never writes directly.
	go func() {
		for {
			select {
			case <-sess.Done():
				return
			case f := <-sess.Send():
				if err := w.WriteFrame(f); err != nil {
					slog.Debug("session write failed", "user", user.Username, "err", err)
					sess.Close()
					return
				}
			}
		}
	}()

	// Relay loop
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-sess.Done():
			return
		default:
		}

		frame, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || isClosedErr(err) {
				return
			}
			slog.Warn("read error", "user", user.Username, "err", err)
			return
		}

		switch frame.Tag {
		case protocol.TagText:
			frame.Text = sanitizeText(frame.Text)
			// Blank text is relayed but has no log entry to make.
			if strings.TrimSpace(frame.Text) != "" {
				s.logMessage(user.ID, frame.Text)
			}
			s.relay(sess, frame)

		case protocol.TagFile:
			s.logMessage(user.ID, "FILE SENT: "+frame.Name)
			s.relay(sess, frame)

		case protocol.TagImage:
			s.logMessage(user.ID, "SENT IMAGE")
			s.relay(sess, frame)

		case protocol.TagDisconnect:
			slog.Debug("client requested disconnect", "user", user.Username)
			return

		default:
			// Auth frames after the handshake are a protocol violation.
			slog.Warn("unexpected frame after auth", "user", user.Username, "tag", frame.Tag)
			return
		}
	}
}

// userIdentity is the authenticated identity attached to a session.
type userIdentity struct {
	ID       int64
	Username string
}

func (s *Server) login(username, password string) (*userIdentity, error) {
	u, err := s.gate.Authenticate(context.Background(), username, password)
	if err != nil {
		return nil, err
	}
	return &userIdentity{ID: u.ID, Username: u.Username}, nil
}

func (s *Server) register(username, password string) (*userIdentity, error) {
	u, err := s.gate.Register(context.Background(), username, password)
	if err != nil {
		return nil, err
	}
	return &userIdentity{ID: u.ID, Username: u.Username}, nil
}

// relay fans a frame out to every other session and bumps the counter.
func (s *Server) relay(sender *Session, f protocol.Frame) {
	s.metrics.MessagesRelayed.Add(1)
	s.hub.Publish(sender.ID, f)
}

// logMessage persists a message-log entry. Storage failures are logged
// and swallowed: the relay must not stall because the log is unhappy.
func (s *Server) logMessage(userID int64, content string) {
	msg := &model.Message{UserID: userID, Content: content}
	if err := s.store.NonTx().CreateMessage(msg); err != nil {
		slog.Error("message log write failed", "user_id", userID, "err", err)
	}
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

// sanitizeText strips control characters (except newline) from user-supplied
// text to prevent terminal escape injection and null-byte attacks.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
