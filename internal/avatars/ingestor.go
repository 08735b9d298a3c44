package avatars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// maxAvatarBytes caps how much image data a single mirror job will read.
const maxAvatarBytes = 5 << 20

// Storage persists avatar images and returns their hosted URL.
type Storage interface {
	Store(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// ProfileUpdater records the hosted avatar URL on a user's profile.
type ProfileUpdater interface {
	SetProfilePic(ctx context.Context, userID, url string) error
}

// IngestorConfig controls the concurrency characteristics of the ingestor.
type IngestorConfig struct {
	QueueSize    int
	Workers      int
	FetchTimeout time.Duration
}

// Ingestor asynchronously mirrors externally hosted avatar images into our
// own object storage. Onboarding never blocks on it; when a job fails the
// profile simply keeps the original source URL.
type Ingestor struct {
	client  *http.Client
	storage Storage
	updater ProfileUpdater
	logger  *slog.Logger

	fetchTimeout time.Duration

	jobs   chan mirrorJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type mirrorJob struct {
	userID    string
	sourceURL string
}

var errIngestorClosed = errors.New("avatar ingestor closed")

// NewIngestor constructs a background worker pool that mirrors avatars.
func NewIngestor(storage Storage, updater ProfileUpdater, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	ing := &Ingestor{
		client:       &http.Client{Timeout: cfg.FetchTimeout},
		storage:      storage,
		updater:      updater,
		logger:       logger,
		fetchTimeout: cfg.FetchTimeout,
		jobs:         make(chan mirrorJob, cfg.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
	}

	ing.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go ing.worker()
	}

	return ing
}

// Enqueue schedules a mirror of sourceURL for the given user.
func (i *Ingestor) Enqueue(ctx context.Context, userID, sourceURL string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	default:
	}

	job := mirrorJob{userID: userID, sourceURL: sourceURL}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	case i.jobs <- job:
		return nil
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (i *Ingestor) Shutdown(ctx context.Context) error {
	i.once.Do(func() {
		i.cancel()
		close(i.jobs)
	})

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (i *Ingestor) worker() {
	defer i.wg.Done()

	for job := range i.jobs {
		if err := i.process(job); err != nil {
			i.logger.Warn("avatar mirror failed",
				"userId", job.userID,
				"sourceUrl", job.sourceURL,
				"error", err,
			)
		}
	}
}

func (i *Ingestor) process(job mirrorJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), i.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build avatar request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch avatar: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	key := fmt.Sprintf("avatars/%s", job.userID)
	body := io.LimitReader(resp.Body, maxAvatarBytes)

	hostedURL, err := i.storage.Store(ctx, key, body, contentType)
	if err != nil {
		return fmt.Errorf("store avatar: %w", err)
	}

	if err := i.updater.SetProfilePic(ctx, job.userID, hostedURL); err != nil {
		return fmt.Errorf("record hosted avatar: %w", err)
	}

	i.logger.Info("avatar mirrored", "userId", job.userID, "url", hostedURL)
	return nil
}
