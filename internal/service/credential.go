package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Credential is the externally-persisted session state that gates ingestion
// against the WeChat admin platform. It lives in a YAML file and an in-memory
// copy; the file survives restarts.
type Credential struct {
	Cookie    string    `yaml:"cookie"`
	Token     string    `yaml:"token"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// RefreshState is the phase of an interactive credential refresh.
type RefreshState string

const (
	RefreshIdle    RefreshState = "idle"
	RefreshPending RefreshState = "pending"
	RefreshQRReady RefreshState = "qr_ready"
	RefreshSuccess RefreshState = "success"
	RefreshError   RefreshState = "error"
)

// RefreshStatus is what pollers see. One process-wide slot, overwritten by
// each started refresh: starting a second refresh while one is in flight
// abandons tracking of the first's outcome. That is the inherited behavior
// and it is kept on purpose; callers are expected to poll one refresh at a
// time.
type RefreshStatus struct {
	State   RefreshState `json:"status"`
	Message string       `json:"message"`
	QRPath  string       `json:"qr_path,omitempty"`
}

// SessionProbe checks whether a credential is still accepted upstream.
type SessionProbe interface {
	CheckSession(ctx context.Context, cred Credential) (bool, string)
}

// Capturer performs the interactive login. It calls onArtifact once the
// scannable QR image exists on disk, then blocks until login completes or
// fails. Invoked only from the background task (or a deliberately blocking
// synchronous refresh), never from a request handler directly.
type Capturer interface {
	Capture(ctx context.Context, onArtifact func(qrPath string)) (*Credential, error)
}

// CredentialReloader is notified after a refreshed credential was persisted,
// so dependent in-memory state picks it up without a restart.
type CredentialReloader interface {
	SetCredential(cred Credential)
}

// CredentialService owns process-wide session-credential state: validity
// checking, blocking refresh, and the start/poll protocol for interactive
// refresh. The status slot is the single piece of shared mutable state;
// it is guarded so pollers never observe a torn update and never block on
// a running capture.
type CredentialService struct {
	logger    *zap.Logger
	path      string
	probe     SessionProbe
	capturer  Capturer
	reloaders []CredentialReloader

	mu     sync.RWMutex
	cred   Credential
	status RefreshStatus
}

func NewCredentialService(logger *zap.Logger, path string, probe SessionProbe, capturer Capturer) *CredentialService {
	return &CredentialService{
		logger:   logger,
		path:     path,
		probe:    probe,
		capturer: capturer,
		status:   RefreshStatus{State: RefreshIdle, Message: "no refresh started"},
	}
}

// AddReloader registers a consumer of refreshed credentials. Not safe to
// call after refreshes have started.
func (s *CredentialService) AddReloader(r CredentialReloader) {
	s.reloaders = append(s.reloaders, r)
}

// Load reads the persisted credential. A missing file means an empty
// credential, not an error.
func (s *CredentialService) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred Credential
	if err := yaml.Unmarshal(data, &cred); err != nil {
		return fmt.Errorf("failed to parse credential file: %w", err)
	}

	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
	s.notifyReloaders(cred)
	return nil
}

// Current returns a copy of the in-memory credential.
func (s *CredentialService) Current() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Check probes the upstream platform with the current credential.
func (s *CredentialService) Check(ctx context.Context) (bool, string) {
	return s.probe.CheckSession(ctx, s.Current())
}

// Refresh blocks until a new credential is captured or a hard error occurs.
// Used by non-interactive contexts; the caller waits through the whole login.
func (s *CredentialService) Refresh(ctx context.Context) (bool, string) {
	cred, err := s.capturer.Capture(ctx, nil)
	if err != nil {
		return false, fmt.Sprintf("credential capture failed: %v", err)
	}

	if err := s.adopt(*cred); err != nil {
		return false, err.Error()
	}
	return true, "credential refreshed"
}

// StartRefresh spawns the background capture task and resets the shared
// status to pending. It returns immediately; progress is observed via
// Status. The task runs to completion, it cannot be cancelled by pollers.
func (s *CredentialService) StartRefresh() {
	s.setStatus(RefreshStatus{State: RefreshPending, Message: "starting login capture"})

	go s.captureTask()
}

func (s *CredentialService) captureTask() {
	// Detached from any request; the capture outlives the request that
	// started it and owns its own deadline.
	cred, err := s.capturer.Capture(context.Background(), func(qrPath string) {
		s.setStatus(RefreshStatus{
			State:   RefreshQRReady,
			Message: "QR code ready, scan to log in",
			QRPath:  qrPath,
		})
		s.logger.Info("Login QR code ready", zap.String("qr_path", qrPath))
	})
	if err != nil {
		s.setStatus(RefreshStatus{State: RefreshError, Message: fmt.Sprintf("credential capture failed: %v", err)})
		s.logger.Error("Credential capture failed", zap.Error(err))
		return
	}

	if err := s.adopt(*cred); err != nil {
		s.setStatus(RefreshStatus{State: RefreshError, Message: err.Error()})
		s.logger.Error("Failed to adopt refreshed credential", zap.Error(err))
		return
	}

	s.setStatus(RefreshStatus{State: RefreshSuccess, Message: "credential refreshed"})
	s.logger.Info("Credential refresh succeeded")
}

// Status returns the current refresh status verbatim; idle before any start.
func (s *CredentialService) Status() RefreshStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *CredentialService) setStatus(st RefreshStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// adopt persists the credential, swaps the in-memory copy and notifies
// dependents. Persisting fails the whole refresh: a credential that did not
// reach disk would be lost on restart.
func (s *CredentialService) adopt(cred Credential) error {
	cred.UpdatedAt = time.Now()

	if err := s.save(cred); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	s.notifyReloaders(cred)
	return nil
}

// save writes the credential file atomically: a temp file in the same
// directory is renamed over the target, so concurrent readers see either the
// old or the new content, never a partial write.
func (s *CredentialService) save(cred Credential) error {
	data, err := yaml.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp credential file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (s *CredentialService) notifyReloaders(cred Credential) {
	for _, r := range s.reloaders {
		r.SetCredential(cred)
	}
}
