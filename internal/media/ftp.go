package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConfig configures uploads to an FTP server fronted by a public web root.
type FTPConfig struct {
	Addr      string
	User      string
	Password  string
	Dir       string
	PublicURL string
	Timeout   time.Duration
}

// FTP uploads media to an FTP server.
type FTP struct {
	cfg FTPConfig
}

func NewFTP(cfg FTPConfig) (*FTP, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("ftp address is required")
	}
	if cfg.PublicURL == "" {
		return nil, fmt.Errorf("ftp public url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &FTP{cfg: cfg}, nil
}

// Save uploads one file per connection, creating every directory on the way.
func (f *FTP) Save(ctx context.Context, category Category, name string, data []byte) (string, error) {
	if err := SafeName(name); err != nil {
		return "", err
	}

	conn, err := ftp.Dial(f.cfg.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.cfg.Timeout))
	if err != nil {
		return "", fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.cfg.User, f.cfg.Password); err != nil {
		return "", fmt.Errorf("ftp login: %w", err)
	}

	dir := path.Join("/", f.cfg.Dir, string(category))
	if err := ensureDir(conn, dir); err != nil {
		return "", err
	}

	if err := conn.Stor(name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("ftp upload %s: %w", name, err)
	}

	return f.cfg.PublicURL + "/" + string(category) + "/" + name, nil
}

func ensureDir(conn *ftp.ServerConn, dir string) error {
	if err := conn.ChangeDir("/"); err != nil {
		return fmt.Errorf("ftp cwd /: %w", err)
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		if err := conn.ChangeDir(part); err == nil {
			continue
		}
		if err := conn.MakeDir(part); err != nil {
			return fmt.Errorf("ftp mkdir %s: %w", part, err)
		}
		if err := conn.ChangeDir(part); err != nil {
			return fmt.Errorf("ftp cwd %s: %w", part, err)
		}
	}
	return nil
}
