// Package seeder captures an authenticated browser profile for a session and
// uploads it as a bundle. One Worker performs one run.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/tmssession/internal/apiclient"
	"github.com/dmitrijs2005/tmssession/internal/bundle"
	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/cryptox"
	"github.com/dmitrijs2005/tmssession/internal/filex"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/netx"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

// API is the part of the session API the worker calls back into.
type API interface {
	RecordEvent(ctx context.Context, sessionID string, ev apiclient.Event) error
	RequestUpload(ctx context.Context, sessionID string, req apiclient.UploadRequest) (*models.SignedURL, error)
	CompleteUpload(ctx context.Context, sessionID string, req apiclient.CompleteUploadRequest) error
}

const (
	stepLogin   = "login"
	stepEncode  = "encode"
	stepRequest = "request-upload"
	stepPut     = "upload"
	stepConfirm = "complete-upload"
)

// Result describes a successful run.
type Result struct {
	BundleKey  string
	Checksum   string
	SizeBytes  int64
	Encryption string
}

type Worker struct {
	cfg        Config
	api        API
	browser    Browser
	codec      *bundle.Codec
	httpClient *http.Client
	log        logging.Logger
}

// New validates cfg and parses the bundle key. It performs no I/O, so every
// configuration problem surfaces before the first network call.
func New(cfg Config, api API, browser Browser, log logging.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if api == nil || browser == nil {
		return nil, fmt.Errorf("%w: api and browser are required", common.ErrConfiguration)
	}

	scheme := cryptox.Scheme(cfg.Scheme)
	if cfg.Scheme != "" {
		s, err := cryptox.ParseScheme(cfg.Scheme)
		if err != nil {
			return nil, err
		}
		scheme = s
	}
	codec, err := bundle.NewCodecFromBase64(cfg.EncryptionKey, scheme)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Worker{
		cfg:        cfg,
		api:        api,
		browser:    browser,
		codec:      codec,
		httpClient: &http.Client{},
		log:        log.With("module", "seeder", "session_id", cfg.SessionID),
	}, nil
}

// Run performs the capture sequence. Any failure is reported to the API as an
// ERROR event before it is returned. The temporary profile is always removed.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	var started map[string]any
	if w.codec.Encrypted() {
		started = map[string]any{"keyId": w.codec.KeyID()}
	}
	w.event(ctx, models.LogInfo, "Seeder started", started)

	profileDir, cleanup, err := filex.TempProfileDir(w.cfg.ProfileBaseDir, w.cfg.SessionID)
	if err != nil {
		return nil, w.failure(ctx, "profile", err)
	}
	defer cleanup()

	creds := Credentials{Username: w.cfg.Username, Password: w.cfg.Password}
	if err := w.browser.Login(ctx, profileDir, creds); err != nil {
		return nil, w.failure(ctx, stepLogin, err)
	}
	w.event(ctx, models.LogInfo, "TMS login sequence completed", nil)

	b, err := w.codec.Encode(profileDir)
	if err != nil {
		return nil, w.failure(ctx, stepEncode, err)
	}
	w.event(ctx, models.LogInfo, "Session bundle prepared", map[string]any{
		"checksum":   b.Checksum,
		"encryption": b.EncryptionLabel(),
	})

	key, err := w.upload(ctx, b)
	if err != nil {
		return nil, err
	}

	w.event(ctx, models.LogInfo, "Session bundle uploaded", map[string]any{
		"bundleKey":  key,
		"size":       b.Size(),
		"encryption": b.EncryptionLabel(),
	})
	return &Result{BundleKey: key, Checksum: b.Checksum, SizeBytes: b.Size(), Encryption: b.EncryptionLabel()}, nil
}

func (w *Worker) upload(ctx context.Context, b *bundle.Bundle) (string, error) {
	signed, err := w.api.RequestUpload(ctx, w.cfg.SessionID, apiclient.UploadRequest{ContentType: common.ContentTypeZip})
	if err != nil {
		return "", w.failure(ctx, stepRequest, err)
	}

	if err := netx.PutPresigned(ctx, w.httpClient, signed.URL, common.ContentTypeZip, b.Payload); err != nil {
		return "", w.failure(ctx, stepPut, err)
	}

	err = w.api.CompleteUpload(ctx, w.cfg.SessionID, apiclient.CompleteUploadRequest{
		Checksum:      b.Checksum,
		FileSizeBytes: b.Size(),
		Encryption:    b.Encryption,
	})
	if err != nil {
		return "", w.failure(ctx, stepConfirm, err)
	}
	return signed.BundleKey, nil
}

func (w *Worker) failure(ctx context.Context, step string, err error) error {
	w.log.Error(ctx, "seeder failure", "step", step, "error", err)
	w.event(ctx, models.LogError, "Seeder failure", map[string]any{
		"message":   err.Error(),
		"step":      step,
		"transient": errors.Is(err, ErrTransientAutomation),
	})
	return fmt.Errorf("%s: %w", step, err)
}

// event delivers a session event. Delivery problems are only logged; they
// never change the outcome of the run.
func (w *Worker) event(ctx context.Context, level models.LogLevel, msg string, fields map[string]any) {
	// A cancelled run still gets its failure event out.
	sendCtx := context.WithoutCancel(ctx)
	if err := w.api.RecordEvent(sendCtx, w.cfg.SessionID, apiclient.Event{Level: level, Message: msg, Context: fields}); err != nil {
		w.log.Warn(ctx, "failed to send session event", "message", msg, "error", err)
		return
	}
	w.log.Info(ctx, msg, "level", string(level))
}
