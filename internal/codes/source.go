package codes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
)

var (
	// ErrNotFound is returned when no definition exists for a device code.
	ErrNotFound = errors.New("codes: device definition not found")

	// ErrInvalid is returned when a definition exists but fails validation.
	ErrInvalid = errors.New("codes: device definition invalid")
)

const (
	defaultTimeout = 15 * time.Second

	// maxDefinitionSize bounds a downloaded file.
	maxDefinitionSize = 1 << 20

	dirPermissions  = 0750
	filePermissions = 0640
)

// Logger is the logging dependency of this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Source resolves device codes to validated definitions.
type Source struct {
	dir         string
	downloadURL string
	client      *http.Client
	logger      Logger
}

// Options configures a Source.
type Options struct {
	// Dir is the local directory holding {code}.json files.
	Dir string

	// DownloadURL is the base URL for missing files. Empty disables downloads.
	DownloadURL string

	// Timeout bounds one download. Zero uses 15s.
	Timeout time.Duration

	// HTTPClient overrides the client used for downloads.
	HTTPClient *http.Client

	Logger Logger
}

// NewSource creates a Source.
func NewSource(opts Options) *Source {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Source{
		dir:         opts.Dir,
		downloadURL: strings.TrimRight(opts.DownloadURL, "/"),
		client:      client,
		logger:      logger,
	}
}

// Load returns the definition for code.
//
// The local file is used when present. Otherwise the file is downloaded,
// validated, and written to the local directory before returning.
//
// Returns:
//   - *fan.DeviceDefinition: Validated definition
//   - error: ErrNotFound, ErrInvalid, or an I/O error
func (s *Source) Load(ctx context.Context, code int) (*fan.DeviceDefinition, error) {
	if code <= 0 {
		return nil, fmt.Errorf("%w: device code %d", ErrNotFound, code)
	}

	path := s.path(code)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return parse(code, data)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if s.downloadURL == "" {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNotFound, path)
	}

	s.logger.Info("device definition not found locally, downloading", "device_code", code)

	data, err = s.download(ctx, code)
	if err != nil {
		return nil, err
	}

	def, err := parse(code, data)
	if err != nil {
		return nil, err
	}

	if err := s.store(path, data); err != nil {
		s.logger.Warn("could not cache downloaded definition", "device_code", code, "error", err)
	}
	return def, nil
}

func (s *Source) path(code int) string {
	return filepath.Join(s.dir, strconv.Itoa(code)+".json")
}

func (s *Source) download(ctx context.Context, code int) ([]byte, error) {
	url := fmt.Sprintf("%s/%d.json", s.downloadURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading device code %d: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: device code %d not available for download", ErrNotFound, code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading device code %d: unexpected status %d", code, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDefinitionSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading download: %w", err)
	}
	if len(data) > maxDefinitionSize {
		return nil, fmt.Errorf("%w: device code %d exceeds %d bytes", ErrInvalid, code, maxDefinitionSize)
	}
	return data, nil
}

func (s *Source) store(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func parse(code int, data []byte) (*fan.DeviceDefinition, error) {
	def, err := fan.ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%w: device code %d: %w", ErrInvalid, code, err)
	}
	return def, nil
}
