package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DetectedObject is one bounding box reported by a camera's YOLO server.
type DetectedObject struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// Detections is the /detections payload of a camera server.
type Detections struct {
	Objects   []DetectedObject `json:"objects"`
	FPS       *float64         `json:"fps,omitempty"`
	Count     int              `json:"count"`
	Timestamp string           `json:"timestamp,omitempty"`
}

// DetectionClient talks to camera detection servers. Each server gets its own
// circuit breaker so one dead camera does not slow the others down.
type DetectionClient struct {
	httpClient *http.Client
	log        *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

func NewDetectionClient(timeout time.Duration, log *zap.Logger) *DetectionClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DetectionClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

func (c *DetectionClient) breaker(serverURL string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[serverURL]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        serverURL,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("detection server breaker state changed",
				zap.String("server", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.breakers[serverURL] = cb
	return cb
}

func (c *DetectionClient) get(ctx context.Context, serverURL, path string) ([]byte, error) {
	serverURL = strings.TrimRight(serverURL, "/")
	return c.breaker(serverURL).Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("detection server unavailable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("detection server returned %d: %s", resp.StatusCode, string(b))
		}
		return io.ReadAll(resp.Body)
	})
}

func (c *DetectionClient) Detections(ctx context.Context, serverURL string) (*Detections, error) {
	body, err := c.get(ctx, serverURL, "/detections")
	if err != nil {
		return nil, err
	}
	var d Detections
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return &d, nil
}

// Snapshot returns the current frame as JPEG.
func (c *DetectionClient) Snapshot(ctx context.Context, serverURL string) ([]byte, error) {
	body, err := c.get(ctx, serverURL, "/snapshot")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("detection server returned an empty snapshot")
	}
	return body, nil
}

func (c *DetectionClient) Online(ctx context.Context, serverURL string) bool {
	body, err := c.get(ctx, serverURL, "/status")
	if err != nil {
		return false
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return false
	}
	return st.Status == "online"
}

// Discover checks candidates in order and returns the first online server.
func (c *DetectionClient) Discover(ctx context.Context, candidates []string) (string, bool) {
	for _, u := range candidates {
		if ctx.Err() != nil {
			return "", false
		}
		if c.Online(ctx, u) {
			return strings.TrimRight(u, "/"), true
		}
		c.log.Debug("detection server offline", zap.String("server", u))
	}
	return "", false
}
