package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"memcore/internal/logging"
)

const maxResponseBytes = 2000

// ConnectorResolver resolves a connector by id; ok is false if the
// connector is missing, disabled, or has no URL.
type ConnectorResolver func(connectorID string) (Connector, bool)

// HostPermissionChecker reports whether the given `<origin>/*` pattern is
// granted. In a browser this wraps the extension's permissions
// API; here it's injected so callers can model their own grant set.
type HostPermissionChecker func(originPattern string) bool

// Dispatcher implements the pump: bounded-concurrency, oldest-first,
// HMAC-signed, exponentially-backed-off webhook delivery.
type Dispatcher struct {
	store       *Store
	connectors  ConnectorResolver
	hostAllowed HostPermissionChecker
	client      *http.Client
	maxAttempts int
	maxBackoff  time.Duration
	jobsPerPump int
	now         func() time.Time
}

// NewDispatcher constructs a Dispatcher. requestTimeout/maxAttempts/
// maxBackoff/jobsPerPump of their zero value fall back to the defaults
// (30s, 5, 10m, 3).
func NewDispatcher(store *Store, connectors ConnectorResolver, hostAllowed HostPermissionChecker, requestTimeout time.Duration, maxAttempts int, maxBackoff time.Duration, jobsPerPump int) *Dispatcher {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Minute
	}
	if jobsPerPump <= 0 {
		jobsPerPump = 3
	}
	return &Dispatcher{
		store:       store,
		connectors:  connectors,
		hostAllowed: hostAllowed,
		client:      &http.Client{Timeout: requestTimeout},
		maxAttempts: maxAttempts,
		maxBackoff:  maxBackoff,
		jobsPerPump: jobsPerPump,
		now:         time.Now,
	}
}

// Enqueue implements enqueueJob.
func (d *Dispatcher) Enqueue(in EnqueueInput) *Job {
	return d.store.Enqueue(in)
}

// Pump runs one invocation of the dispatcher: scan oldest-first, select at
// most jobsPerPump eligible jobs ( ordering guarantees), then
// advance that bounded batch concurrently and join before returning — the
// jobs in one batch are independent deliveries, so nothing requires them to
// run one at a time, only that the invocation as a whole completes together.
func (d *Dispatcher) Pump(ctx context.Context) {
	log := logging.For("webhook")
	d.store.mu.Lock()
	ids := d.store.oldestFirstLocked()
	d.store.mu.Unlock()

	now := d.now()
	var batch []*Job
	for _, id := range ids {
		if len(batch) >= d.jobsPerPump {
			break
		}
		job, ok := d.store.Get(id)
		if !ok {
			continue
		}
		if job.Status == StatusDone || job.Status == StatusRunning {
			continue
		}
		if !job.NextRunAt.IsZero() && job.NextRunAt.After(now) {
			continue
		}
		batch = append(batch, job)
	}

	var g errgroup.Group
	for _, job := range batch {
		job := job
		g.Go(func() error {
			d.advance(ctx, job)
			log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pumped job")
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) advance(ctx context.Context, job *Job) {
	conn, ok := d.connectors(job.ConnectorID)
	if !ok || !conn.Enabled || conn.URL == "" {
		d.fail(job, ErrMissingConnector.Error())
		return
	}

	origin, err := originOf(conn.URL)
	if err != nil || (d.hostAllowed != nil && !d.hostAllowed(origin+"/*")) {
		d.fail(job, ErrMissingHostPermission.Error())
		return
	}

	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = d.now()

	status, respBody, err := d.deliver(ctx, conn, job)
	if err == nil && status >= 200 && status < 300 {
		job.Status = StatusDone
		job.Error = ""
		job.LastResponse = truncate(respBody, maxResponseBytes)
		job.Result = &Result{Status: status}
		job.UpdatedAt = d.now()
		return
	}

	d.retryOrFail(job, status, respBody, err)
}

func (d *Dispatcher) deliver(ctx context.Context, conn Connector, job *Job) (int, string, error) {
	body, err := bodyOf(job.Payload)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range conn.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}
	if conn.Secret != "" {
		ts := strconv.FormatInt(d.now().UnixMilli(), 10)
		sig := sign(conn.Secret, ts, body)
		req.Header.Set("X-AWT-Timestamp", ts)
		req.Header.Set("X-AWT-Signature", "sha256="+sig)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes*4))
	return resp.StatusCode, string(respBody), nil
}

func (d *Dispatcher) retryOrFail(job *Job, status int, respBody string, err error) {
	backoff := time.Duration(60_000*job.Attempts) * time.Millisecond
	if backoff > d.maxBackoff {
		backoff = d.maxBackoff
	}

	job.LastResponse = truncate(respBody, maxResponseBytes)
	if err != nil {
		job.Error = err.Error()
	} else {
		job.Error = fmt.Sprintf("http_%d", status)
	}

	if job.Attempts >= d.maxAttempts {
		job.Status = StatusFailed
	} else {
		job.Status = StatusQueued
		job.NextRunAt = d.now().Add(backoff)
	}
	job.UpdatedAt = d.now()
}

func (d *Dispatcher) fail(job *Job, reason string) {
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = d.now()
}

func bodyOf(payload any) ([]byte, error) {
	if s, ok := payload.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(payload)
}

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid connector url: %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
