package mail

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSmtpServer accepts connections and records every DATA payload.
type fakeSmtpServer struct {
	listener   net.Listener
	rejectRcpt bool

	mu       sync.Mutex
	messages []string
	rcpts    int
}

func newFakeSmtpServer(t *testing.T, rejectRcpt bool) *fakeSmtpServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSmtpServer{listener: l, rejectRcpt: rejectRcpt}
	go s.serve()
	t.Cleanup(func() { l.Close() })
	return s
}

func (s *fakeSmtpServer) port() string {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return port
}

func (s *fakeSmtpServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSmtpServer) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch cmd {
		case "EHLO", "HELO":
			tp.PrintfLine("250 localhost")
		case "RCPT":
			s.mu.Lock()
			s.rcpts++
			s.mu.Unlock()
			if s.rejectRcpt {
				tp.PrintfLine("550 no such user")
				continue
			}
			tp.PrintfLine("250 ok")
		case "DATA":
			tp.PrintfLine("354 go ahead")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, strings.Join(lines, "\n"))
			s.mu.Unlock()
			tp.PrintfLine("250 queued")
		case "QUIT":
			tp.PrintfLine("221 bye")
			return
		default:
			tp.PrintfLine("250 ok")
		}
	}
}

func testMessage() core.NotificationMessage {
	return core.NotificationMessage{
		Subject:   "Azure retirements",
		HTMLBody:  "<html><body><h1>Heading</h1><p><strong>Service C</strong> - <a href=\"https://example.org/c\">read more &raquo;</a></p></body></html>",
		Recipient: "ops@example.org",
		Sender:    "Retirement Watch <watch@example.org>",
	}
}

func newTestMail(cfg *config.Config) *MailService {
	m := NewMail(cfg, slog.Default())
	m.retryBase = time.Millisecond
	return m
}

func TestSendDeliversMessage(t *testing.T) {
	t.Parallel()
	server := newFakeSmtpServer(t, false)
	m := newTestMail(&config.Config{
		SmtpHost:      "127.0.0.1",
		SmtpPort:      server.port(),
		SendTimeout:   5 * time.Second,
		RetryAttempts: 1,
	})

	err := m.Send(context.Background(), testMessage())
	require.NoError(t, err)

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Len(t, server.messages, 1)
	assert.Contains(t, server.messages[0], "Subject: Azure retirements")
	assert.Contains(t, server.messages[0], "text/html")
	assert.Contains(t, server.messages[0], "text/plain")
}

func TestSendSmtpTestDoesNotConnect(t *testing.T) {
	t.Parallel()
	m := newTestMail(&config.Config{
		SmtpHost:      "127.0.0.1",
		SmtpPort:      "1",
		SmtpTest:      true,
		RetryAttempts: 1,
	})
	assert.NoError(t, m.Send(context.Background(), testMessage()))
}

func TestSendUnreachableServer(t *testing.T) {
	t.Parallel()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()

	m := newTestMail(&config.Config{
		SmtpHost:      "127.0.0.1",
		SmtpPort:      port,
		SendTimeout:   time.Second,
		RetryAttempts: 2,
	})
	err = m.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotificationFailure))
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestSendTimesOutSilentServer(t *testing.T) {
	t.Parallel()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			// never greets
			t.Cleanup(func() { conn.Close() })
		}
	}()
	_, port, _ := net.SplitHostPort(l.Addr().String())

	m := newTestMail(&config.Config{
		SmtpHost:      "127.0.0.1",
		SmtpPort:      port,
		SendTimeout:   200 * time.Millisecond,
		RetryAttempts: 1,
	})
	start := time.Now()
	err = m.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotificationFailure))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSendDoesNotRetryPermanentRejection(t *testing.T) {
	t.Parallel()
	server := newFakeSmtpServer(t, true)
	m := newTestMail(&config.Config{
		SmtpHost:      "127.0.0.1",
		SmtpPort:      server.port(),
		SendTimeout:   5 * time.Second,
		RetryAttempts: 3,
	})

	err := m.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotificationFailure))

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, 1, server.rcpts)
	assert.Empty(t, server.messages)
}

func TestSendInvalidRecipient(t *testing.T) {
	t.Parallel()
	m := newTestMail(&config.Config{SmtpHost: "127.0.0.1", SmtpPort: "25", RetryAttempts: 1})
	msg := testMessage()
	msg.Recipient = "not an address"

	err := m.Send(context.Background(), msg)
	assert.True(t, errors.Is(err, core.ErrNotificationFailure))
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	text := plainText(testMessage().HTMLBody)
	assert.Equal(t, "Heading\n\nService C - read more » (https://example.org/c)", text)
}
