// Package upload implements the two-step attachment flow: request an upload
// target from the API, stream the bytes straight to it with progress
// reporting, then hand the resulting public URL to the message send.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"gigchat/client/internal/config"
	"gigchat/client/internal/models"

	"github.com/google/uuid"
)

// Stage is an upload's lifecycle position.
type Stage string

const (
	StagePreparing  Stage = "preparing"
	StageUploading  Stage = "uploading"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Progress is a snapshot of one upload. Percent is meaningful during the
// uploading stage, in [0,100].
type Progress struct {
	ID        string
	FileName  string
	Stage     Stage
	Percent   int
	PublicURL string
	Err       error
}

// IntentRequester requests upload targets (implemented by the API client).
type IntentRequester interface {
	AttachmentIntent(ctx context.Context, filename, contentType string) (models.AttachmentIntent, error)
}

// Uploader runs attachment uploads. Each upload is tracked independently
// under a generated id, so one failure never disturbs other in-flight
// uploads. Failed entries stay visible in the snapshot for a bounded time
// before removal.
type Uploader struct {
	intents    IntentRequester
	httpClient *http.Client
	retention  time.Duration
	onProgress func(Progress)

	mu     sync.Mutex
	active map[string]Progress
}

// New creates an uploader. onProgress may be nil.
func New(intents IntentRequester, onProgress func(Progress)) *Uploader {
	return &Uploader{
		intents:    intents,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		retention:  config.FailedUploadRetention,
		onProgress: onProgress,
		active:     make(map[string]Progress),
	}
}

// SetRetention overrides how long failed uploads stay in the snapshot.
func (u *Uploader) SetRetention(d time.Duration) {
	u.retention = d
}

// Upload runs the full flow for one attachment and returns its public URL.
// size must be the total number of bytes body will yield; it drives the
// progress percentage.
func (u *Uploader) Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error) {
	id := uuid.New().String()
	u.update(Progress{ID: id, FileName: filename, Stage: StagePreparing})

	intent, err := u.intents.AttachmentIntent(ctx, filename, contentType)
	if err != nil {
		return "", u.fail(id, filename, fmt.Errorf("request upload target for %s: %w", filename, err))
	}

	u.update(Progress{ID: id, FileName: filename, Stage: StageUploading})
	reader := &progressReader{
		r:     body,
		total: size,
		report: func(pct int) {
			u.update(Progress{ID: id, FileName: filename, Stage: StageUploading, Percent: pct})
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, intent.UploadURL, reader)
	if err != nil {
		return "", u.fail(id, filename, fmt.Errorf("build upload request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", u.fail(id, filename, fmt.Errorf("upload %s: %w", filename, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", u.fail(id, filename, fmt.Errorf("upload %s: target returned %s", filename, resp.Status))
	}

	u.update(Progress{ID: id, FileName: filename, Stage: StageProcessing, Percent: 100})

	done := Progress{ID: id, FileName: filename, Stage: StageCompleted, Percent: 100, PublicURL: intent.PublicURL}
	u.update(done)
	u.remove(id)
	return intent.PublicURL, nil
}

// Snapshot returns the currently tracked uploads: everything in flight plus
// failures still within their retention window.
func (u *Uploader) Snapshot() []Progress {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Progress, 0, len(u.active))
	for _, p := range u.active {
		out = append(out, p)
	}
	return out
}

func (u *Uploader) update(p Progress) {
	u.mu.Lock()
	u.active[p.ID] = p
	u.mu.Unlock()
	if u.onProgress != nil {
		u.onProgress(p)
	}
}

func (u *Uploader) fail(id, filename string, err error) error {
	u.update(Progress{ID: id, FileName: filename, Stage: StageFailed, Err: err})
	time.AfterFunc(u.retention, func() { u.remove(id) })
	return err
}

func (u *Uploader) remove(id string) {
	u.mu.Lock()
	delete(u.active, id)
	u.mu.Unlock()
}

// progressReader reports cumulative read percentage as the HTTP client
// drains the body.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
