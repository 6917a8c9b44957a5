package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oskarw/filesentry/internal/logger"
)

// ErrScannerUnavailable indicates the antivirus backend could not be reached.
// Callers treat it fail-open: an unreachable scanner means "not infected",
// availability over strictness.
var ErrScannerUnavailable = errors.New("antivirus scanner unavailable")

// Antivirus is a client for a clamd-style REST scanning endpoint.
type Antivirus struct {
	client   *resty.Client
	endpoint string
}

// AntivirusConfig holds configuration for the antivirus client.
type AntivirusConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// scanResponse models the clamav-rest result body.
type scanResponse struct {
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// NewAntivirus creates a new antivirus client. A missing endpoint is a
// configuration-level error: the caller is expected to treat it as fatal at
// startup rather than run without malware scanning silently.
// Parameters:
//   - cfg: scanner configuration including endpoint and timeout.
// Returns:
//   - *Antivirus: initialized client.
//   - error: non-nil when the endpoint is not configured.
func NewAntivirus(cfg *AntivirusConfig) (*Antivirus, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("antivirus endpoint is not configured")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &Antivirus{
		client:   client,
		endpoint: cfg.Endpoint,
	}, nil
}

// Scan submits a file to the scanner.
//
// Only a positive detection returns infected=true. An unexpected status from
// the backend is logged as a warning and treated as clean; a transport
// failure returns ErrScannerUnavailable so the caller can apply the same
// fail-open policy with its own logging.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute path of the file to scan.
// Returns:
//   - bool: true when the scanner reported an infection.
//   - error: ErrScannerUnavailable when the backend cannot be reached.
func (a *Antivirus) Scan(ctx context.Context, path string) (bool, error) {
	var result scanResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetResult(&result).
		Post(a.endpoint + "/scan")

	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		logger.GetDefault().WithFields(logger.Fields{
			logger.FieldPath:   path,
			logger.FieldStatus: resp.StatusCode(),
		}).Warn("Antivirus returned unexpected status, treating file as clean")
		return false, nil
	}

	switch result.Status {
	case "FOUND":
		logger.GetDefault().WithFields(logger.Fields{
			logger.FieldPath: path,
			"signature":      result.Description,
			"file":           filepath.Base(path),
		}).Warn("Antivirus detection")
		return true, nil
	case "OK", "CLEAN", "":
		return false, nil
	default:
		logger.GetDefault().WithFields(logger.Fields{
			logger.FieldPath:   path,
			logger.FieldStatus: result.Status,
		}).Warn("Antivirus returned unknown result status, treating file as clean")
		return false, nil
	}
}
