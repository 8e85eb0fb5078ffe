package tracts

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const ftpTimeout = 60 * time.Second

// downloadFTP retrieves a file from an anonymous FTP server to a local path.
func downloadFTP(ctx context.Context, ftpURL, dest string) error {
	host, path, err := parseFTPURL(ftpURL)
	if err != nil {
		return err
	}

	zap.L().Debug("tracts: ftp connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "tracts: ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "tracts: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return eris.Wrapf(err, "tracts: ftp retrieve %s", path)
	}
	defer func() { _ = resp.Close() }()

	return writeFile(dest, resp)
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "tracts: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("tracts: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return "", "", eris.New("tracts: empty path in ftp url")
	}
	return host, u.Path, nil
}
