package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/events"
	"github.com/tsiken/backend/internal/metrics"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
	"go.uber.org/zap"
)

// PredatorClasses are the detector labels treated as a threat to the flock.
var PredatorClasses = []string{"cat", "dog", "bird", "bear", "mouse", "snake", "rat", "cow", "horse"}

const DefaultMinConfidence = 70

var ErrNoPredator = apperr.New(apperr.KindValidation, "no predator detected in current frame")

func IsPredator(class string) bool {
	class = strings.ToLower(strings.TrimSpace(class))
	for _, p := range PredatorClasses {
		if p == class {
			return true
		}
	}
	return false
}

// CheckForPredators returns the highest-confidence predator at or above
// minConfidence, or nil.
func CheckForPredators(d *Detections, minConfidence float64) *DetectedObject {
	if d == nil {
		return nil
	}
	var best *DetectedObject
	for i := range d.Objects {
		o := &d.Objects[i]
		if !IsPredator(o.Class) || o.Confidence < minConfidence {
			continue
		}
		if best == nil || o.Confidence > best.Confidence {
			best = o
		}
	}
	return best
}

// Camera is satisfied by DetectionClient.
type Camera interface {
	Detections(ctx context.Context, serverURL string) (*Detections, error)
	Snapshot(ctx context.Context, serverURL string) ([]byte, error)
	Discover(ctx context.Context, candidates []string) (string, bool)
}

type DetectionService struct {
	detections DetectionStore
	users      UserStore
	snapshots  SnapshotStore
	logs       LogWriter
	camera     Camera
	publisher  events.Publisher
	servers    []string
	now        func() time.Time
	log        *zap.Logger
}

func NewDetectionService(
	detections DetectionStore,
	users UserStore,
	snapshots SnapshotStore,
	logs LogWriter,
	camera Camera,
	publisher events.Publisher,
	servers []string,
	log *zap.Logger,
) *DetectionService {
	return &DetectionService{
		detections: detections,
		users:      users,
		snapshots:  snapshots,
		logs:       logs,
		camera:     camera,
		publisher:  publisher,
		servers:    normalizeServers(servers),
		now:        time.Now,
		log:        log,
	}
}

func normalizeServers(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, u := range servers {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// configuredServer returns the configured server matching serverURL. Only
// configured servers are ever contacted.
func (s *DetectionService) configuredServer(serverURL string) (string, bool) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	for _, u := range s.servers {
		if u == serverURL {
			return u, true
		}
	}
	return "", false
}

// Discover returns the first online detection server among candidates, or
// among the configured servers when candidates is empty. Every candidate
// must be a configured server.
func (s *DetectionService) Discover(ctx context.Context, candidates []string) (string, error) {
	if len(candidates) == 0 {
		candidates = s.servers
	} else {
		allowed := make([]string, 0, len(candidates))
		for _, c := range candidates {
			u, ok := s.configuredServer(c)
			if !ok {
				return "", apperr.Field("candidates", fmt.Sprintf("%q is not a configured detection server", c))
			}
			allowed = append(allowed, u)
		}
		candidates = allowed
	}
	if len(candidates) == 0 {
		return "", apperr.Field("candidates", "no detection servers configured")
	}
	url, ok := s.camera.Discover(ctx, candidates)
	if !ok {
		return "", apperr.New(apperr.KindUnavailable, "no detection server is online")
	}
	return url, nil
}

// Capture stores the current frame of serverURL as a detection owned by
// userID. When target is nil the highest-confidence predator in the current
// frame is used.
func (s *DetectionService) Capture(ctx context.Context, userID uuid.UUID, serverURL string, target *DetectedObject) (*models.PredatorDetection, error) {
	if serverURL == "" {
		return nil, apperr.Field("server_url", "server_url is required")
	}
	serverURL, ok := s.configuredServer(serverURL)
	if !ok {
		return nil, apperr.Field("server_url", "server_url is not a configured detection server")
	}
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}

	var frame *Detections
	if target == nil {
		frame, err = s.camera.Detections(ctx, serverURL)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "could not read detections", err)
		}
		target = CheckForPredators(frame, 0)
		if target == nil {
			return nil, ErrNoPredator
		}
	} else if !IsPredator(target.Class) {
		return nil, apperr.Field("class", fmt.Sprintf("%q is not a predator class", target.Class))
	}

	jpeg, err := s.camera.Snapshot(ctx, serverURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not capture snapshot", err)
	}

	at := s.now().UTC()
	key, err := s.snapshots.SaveSnapshot(ctx, owner.ID.String(), at, jpeg)
	if err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}

	d := &models.PredatorDetection{
		UserID:          owner.ID,
		UserName:        owner.DisplayName(),
		FirstName:       owner.FirstName,
		LastName:        owner.LastName,
		DetectedClass:   strings.ToLower(target.Class),
		Confidence:      target.Confidence,
		ImagePath:       key,
		BBox:            target.BBox,
		ServerURL:       serverURL,
		Status:          models.DetectionStatusNew,
		TotalDetections: 1,
		DetectedAt:      at,
	}
	if frame != nil {
		d.FPS = frame.FPS
		if frame.Count > 0 {
			d.TotalDetections = frame.Count
		}
	}

	if err := s.detections.Create(ctx, d); err != nil {
		if derr := s.snapshots.Delete(ctx, key); derr != nil {
			s.log.Warn("failed to remove orphaned snapshot", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("save detection: %w", err)
	}
	s.withImageURL(ctx, d)
	metrics.DetectionsCaptured.WithLabelValues(d.DetectedClass).Inc()

	if err := s.logs.Append(ctx, models.NewLogRecord{
		Collection:  models.CollectionPredatorDetection,
		UserID:      owner.ID.String(),
		UserName:    d.UserName,
		Action:      "Predator detected",
		Description: fmt.Sprintf("Detected %s with %s%% confidence", d.DetectedClass, formatConfidence(d.Confidence)),
		Meta: map[string]any{
			"detectionId":   d.ID.String(),
			"detectedClass": d.DetectedClass,
			"confidence":    d.Confidence,
			"firstName":     owner.FirstName,
			"lastName":      owner.LastName,
		},
		Timestamp: at,
	}); err != nil {
		s.log.Warn("failed to append detection log", zap.String("detection_id", d.ID.String()), zap.Error(err))
	}

	if err := s.publisher.Publish(ctx, events.StreamDetections, events.Event{
		Type: events.EventPredatorDetected,
		Payload: map[string]any{
			"id":          d.ID.String(),
			"user_id":     d.UserID.String(),
			"user_name":   d.UserName,
			"class":       d.DetectedClass,
			"confidence":  d.Confidence,
			"image_url":   d.ImageURL,
			"server_url":  d.ServerURL,
			"detected_at": d.DetectedAt.Format(time.RFC3339),
		},
	}); err != nil {
		s.log.Warn("failed to publish detection event", zap.Error(err))
	}

	s.log.Info("predator detection captured",
		zap.String("detection_id", d.ID.String()),
		zap.String("class", d.DetectedClass),
		zap.Float64("confidence", d.Confidence),
		zap.String("server", serverURL),
	)
	return d, nil
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

func (s *DetectionService) withImageURL(ctx context.Context, d *models.PredatorDetection) {
	if d.ImagePath == "" {
		return
	}
	url, err := s.snapshots.PresignedURL(ctx, d.ImagePath)
	if err != nil {
		s.log.Warn("failed to presign snapshot", zap.String("key", d.ImagePath), zap.Error(err))
		return
	}
	d.ImageURL = url
}

func (s *DetectionService) Get(ctx context.Context, id uuid.UUID) (*models.PredatorDetection, error) {
	d, err := s.detections.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("detection not found")
		}
		return nil, err
	}
	s.withImageURL(ctx, d)
	return d, nil
}

func (s *DetectionService) List(ctx context.Context, f repositories.DetectionFilter) ([]models.PredatorDetection, error) {
	if f.Status != nil {
		if _, ok := models.ValidDetectionTransitions[*f.Status]; !ok {
			return nil, apperr.Field("status", "status must be new, reviewed or false-positive")
		}
	}
	list, err := s.detections.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.withImageURL(ctx, &list[i])
	}
	return list, nil
}

// UpdateStatus moves a detection along its review workflow.
func (s *DetectionService) UpdateStatus(ctx context.Context, actor *models.Identity, id uuid.UUID, status string) (*models.PredatorDetection, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDetection(actor, d); err != nil {
		return nil, err
	}
	if !models.IsValidDetectionTransition(d.Status, status) {
		return nil, apperr.Field("status", fmt.Sprintf("cannot change status from %s to %s", d.Status, status))
	}
	if err := s.detections.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update detection status: %w", err)
	}
	old := d.Status
	d.Status = status

	if err := s.publisher.Publish(ctx, events.StreamDetections, events.Event{
		Type:    events.EventDetectionReviewed,
		Payload: map[string]any{"id": d.ID.String(), "user_id": d.UserID.String(), "old_status": old, "new_status": status, "by": actor.Email},
	}); err != nil {
		s.log.Warn("failed to publish review event", zap.Error(err))
	}
	return d, nil
}

// Delete removes the detection and its snapshot.
func (s *DetectionService) Delete(ctx context.Context, actor *models.Identity, id uuid.UUID) error {
	d, err := s.detections.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("detection not found")
		}
		return err
	}
	if err := authorizeDetection(actor, d); err != nil {
		return err
	}
	if err := s.detections.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete detection: %w", err)
	}
	if d.ImagePath != "" {
		if err := s.snapshots.Delete(ctx, d.ImagePath); err != nil {
			s.log.Warn("failed to delete snapshot", zap.String("key", d.ImagePath), zap.Error(err))
		}
	}
	return nil
}

func authorizeDetection(actor *models.Identity, d *models.PredatorDetection) error {
	if actor == nil {
		return apperr.Unauthorized("not signed in")
	}
	if actor.Role == models.RoleAdmin || actor.UserID == d.UserID.String() {
		return nil
	}
	return apperr.Forbidden("not your detection")
}
