package passcheck

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avelancourt/passguard/internal/logging"
)

// DefaultBaseURL is the public pwned-passwords range endpoint.
const DefaultBaseURL = "https://api.pwnedpasswords.com"

const prefixLen = 5

// Checker queries a pwned-passwords range endpoint using k-anonymity: only
// the first 5 hex characters of the SHA-1 digest ever leave the process.
type Checker struct {
	baseURL string
	client  *http.Client
	logger  logging.Logger
}

// NewChecker builds a Checker for the given endpoint. The timeout bounds the
// whole request; the breach check is best-effort and must never stall login.
func NewChecker(baseURL string, timeout time.Duration, logger logging.Logger) *Checker {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CheckPwned reports whether the password appears in the breach corpus and
// how many times. Any failure, network error, timeout or non-200 status,
// resolves to (false, 0): a breach check outage must not block account
// operations. Malformed response lines are skipped.
func (c *Checker) CheckPwned(ctx context.Context, password string) (bool, int) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLen], digest[prefixLen:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return false, 0
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "breach check unavailable", "error", err.Error())
		return false, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "breach check non-200", "status", resp.StatusCode)
		return false, 0
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Split(line, ":")
		if len(parts) != 2 {
			continue
		}
		if !strings.EqualFold(parts[0], suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		return true, count
	}
	return false, 0
}
