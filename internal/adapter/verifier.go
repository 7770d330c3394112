package adapter

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// Verification event types
const (
	EventVerifyStarted   = "verify_started"
	EventVerifyProgress  = "verify_progress"
	EventVerifyCompleted = "verify_completed"
)

// ProbeResult is the outcome of checking one device
type ProbeResult struct {
	DeviceID   string
	Status     domain.DeviceStatus
	Reachable  bool
	RTSPStatus int // 0 when no RTSP exchange took place
	Latency    time.Duration
	Error      string
	VerifiedAt time.Time
}

// VerifierConfig holds configuration for the verifier
type VerifierConfig struct {
	// DialTimeout bounds the TCP connect and the RTSP exchange
	DialTimeout time.Duration
	// MaxConcurrent limits parallel probes
	MaxConcurrent int
	// RTSPOptions sends an OPTIONS request on rtsp:// devices
	RTSPOptions bool
}

// DefaultVerifierConfig returns sensible defaults
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		DialTimeout:   2 * time.Second,
		MaxConcurrent: 16,
		RTSPOptions:   true,
	}
}

// Verifier checks whether registered devices still answer on their port.
// A device is online when the TCP connect succeeds and, for RTSP streams,
// the server returns any RTSP response (401 included).
type Verifier struct {
	config    VerifierConfig
	logger    *zap.Logger
	publisher EventPublisher
	now       func() time.Time
}

// NewVerifier creates a verifier
func NewVerifier(config VerifierConfig, logger *zap.Logger, pub EventPublisher) *Verifier {
	def := DefaultVerifierConfig()
	if config.DialTimeout <= 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	return &Verifier{
		config:    config,
		logger:    logging.OrNop(logger),
		publisher: pub,
		now:       time.Now,
	}
}

// Verify probes every device and returns one result per device in input
// order
func (v *Verifier) Verify(ctx context.Context, devices []domain.Device) []ProbeResult {
	results := make([]ProbeResult, len(devices))
	if len(devices) == 0 {
		return results
	}

	publish(v.publisher, EventVerifyStarted, map[string]any{"total": len(devices)})

	workCh := make(chan int, len(devices))
	for i := range devices {
		workCh <- i
	}
	close(workCh)

	workers := min(v.config.MaxConcurrent, len(devices))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				if ctx.Err() != nil {
					results[i] = ProbeResult{
						DeviceID:   devices[i].ID,
						Status:     devices[i].Status,
						Error:      ctx.Err().Error(),
						VerifiedAt: v.now(),
					}
					continue
				}
				results[i] = v.probeDevice(ctx, devices[i])
				publish(v.publisher, EventVerifyProgress, map[string]any{
					"id":      results[i].DeviceID,
					"status":  results[i].Status,
					"latency": results[i].Latency.Milliseconds(),
				})
			}
		}()
	}
	wg.Wait()

	online := 0
	for _, r := range results {
		if r.Status == domain.DeviceStatusOnline {
			online++
		}
	}
	publish(v.publisher, EventVerifyCompleted, map[string]any{
		"total":   len(devices),
		"online":  online,
		"offline": len(devices) - online,
	})
	return results
}

// probeDevice performs the checks on a single device
func (v *Verifier) probeDevice(ctx context.Context, d domain.Device) ProbeResult {
	result := ProbeResult{
		DeviceID:   d.ID,
		Status:     domain.DeviceStatusOffline,
		VerifiedAt: v.now(),
	}
	if d.Address == "" {
		result.Error = "no address"
		return result
	}
	port := d.Port
	if port == 0 {
		port = PortRTSP
	}
	addr := net.JoinHostPort(d.Address, strconv.Itoa(port))

	start := time.Now()
	dialer := net.Dialer{Timeout: v.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		result.Error = err.Error()
		v.logger.Debug("device unreachable", zap.String("id", d.ID), zap.String("addr", addr), zap.Error(err))
		return result
	}
	defer conn.Close()
	result.Reachable = true
	result.Latency = time.Since(start)

	if v.config.RTSPOptions && !d.IsSentinel() {
		if u, err := base.ParseURL(d.StreamURI); err == nil && u.Scheme == "rtsp" {
			code, err := v.rtspOptions(conn, u)
			if err != nil {
				result.Error = err.Error()
				v.logger.Debug("rtsp options failed", zap.String("id", d.ID), zap.Error(err))
				return result
			}
			result.RTSPStatus = code
			result.Latency = time.Since(start)
		}
	}

	result.Status = domain.DeviceStatusOnline
	return result
}

// rtspOptions sends OPTIONS over conn and returns the response status code
func (v *Verifier) rtspOptions(conn net.Conn, u *base.URL) (int, error) {
	if err := conn.SetDeadline(time.Now().Add(v.config.DialTimeout)); err != nil {
		return 0, err
	}
	req := base.Request{
		Method: base.Options,
		URL:    u,
		Header: base.Header{
			"CSeq":       base.HeaderValue{"1"},
			"User-Agent": base.HeaderValue{"camerabridge"},
		},
	}
	buf, err := req.Marshal()
	if err != nil {
		return 0, fmt.Errorf("marshal options: %w", err)
	}
	if _, err := conn.Write(buf); err != nil {
		return 0, fmt.Errorf("write options: %w", err)
	}

	var res base.Response
	if err := res.Unmarshal(bufio.NewReader(conn)); err != nil {
		return 0, fmt.Errorf("read options response: %w", err)
	}
	return int(res.StatusCode), nil
}
