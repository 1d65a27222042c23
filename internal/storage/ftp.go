package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPStore uploads objects to an FTP server whose files are published under
// publicURL. Each Put opens its own connection.
type FTPStore struct {
	addr      string
	user      string
	password  string
	baseDir   string
	publicURL string
	timeout   time.Duration
}

func NewFTPStore(addr, user, password, baseDir, publicURL string) *FTPStore {
	return &FTPStore{
		addr:      addr,
		user:      user,
		password:  password,
		baseDir:   baseDir,
		publicURL: publicURL,
		timeout:   10 * time.Second,
	}
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FTP: %w", err)
	}

	if err := conn.Login(s.user, s.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to FTP: %w", err)
	}
	return conn, nil
}

func (s *FTPStore) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Quit() }()

	remote := s.remotePath(key)

	// MakeDir fails when the directory exists, so its error is ignored and
	// Stor reports a real problem.
	dir := s.baseDir
	for _, part := range splitDirs(path.Dir(key)) {
		dir = path.Join(dir, part)
		_ = conn.MakeDir(dir)
	}

	if err := conn.Stor(remote, r); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (s *FTPStore) URL(key string) string {
	return joinURL(s.publicURL, key)
}

func (s *FTPStore) remotePath(key string) string {
	return path.Join(s.baseDir, key)
}

func splitDirs(dir string) []string {
	if dir == "." || dir == "" {
		return nil
	}
	var parts []string
	for dir != "." && dir != "/" {
		parts = append([]string{path.Base(dir)}, parts...)
		dir = path.Dir(dir)
	}
	return parts
}
