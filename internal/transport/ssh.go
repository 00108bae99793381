package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/jarlens/jarlens/internal/store"
)

// SSH lists and fetches over an SSH connection with password auth,
// matching how the collectors reach production hosts.
type SSH struct {
	client         *ssh.Client
	commandTimeout time.Duration
}

// DialSSH connects to the service host with the stored credentials.
func DialSSH(svc *store.Service, opts Options) (*SSH, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	commandTimeout := opts.CommandTimeout
	if commandTimeout <= 0 {
		commandTimeout = 120 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            svc.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(svc.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(svc.Host, strconv.Itoa(svc.Port))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh connect %s: %w", addr, err)
	}
	return &SSH{client: client, commandTimeout: commandTimeout}, nil
}

// List runs the listing command remotely and parses its output with the
// encoding fallback chain.
func (s *SSH) List(ctx context.Context, path string) ([]Entry, int, error) {
	out, err := s.run(ctx, fmt.Sprintf("%s %s", ListCommand, shellQuote(path)))
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", path, err)
	}
	return ParseListing(out)
}

// ListTree lists every regular file under path recursively. The remote
// side pipes find through the listing command so the name field carries
// the full path, which is then made relative to path.
func (s *SSH) ListTree(ctx context.Context, path string) ([]Entry, int, error) {
	quoted := shellQuote(path)
	cmd := fmt.Sprintf("find %s -type f -exec %s {} +", quoted, ListCommand)
	out, err := s.run(ctx, cmd)
	if err != nil {
		return nil, 0, fmt.Errorf("list tree %s: %w", path, err)
	}
	entries, skipped, err := ParseListing(out)
	if err != nil {
		return nil, skipped, err
	}

	prefix := strings.TrimSuffix(path, "/") + "/"
	rel := entries[:0]
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) {
			skipped++
			continue
		}
		e.Name = strings.TrimPrefix(e.Name, prefix)
		rel = append(rel, e)
	}
	return rel, skipped, nil
}

// Fetch downloads src to dst over SFTP.
func (s *SSH) Fetch(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sc, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("open sftp: %w", err)
	}
	defer sc.Close()

	in, err := sc.Open(src)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("download %s: %w", src, err)
	}
	return out.Close()
}

// Close shuts down the SSH connection.
func (s *SSH) Close() error {
	return s.client.Close()
}

// run executes one remote command under the command timeout. Cancellation
// closes the session, which aborts the remote command.
func (s *SSH) run(ctx context.Context, command string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	if err := session.Start(command); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("remote command failed: %w (stderr: %s)",
				err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.Bytes(), nil
	}
}

// shellQuote wraps a path in single quotes for the remote shell,
// escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
