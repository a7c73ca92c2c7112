package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOutputDir = "./mail_output"

// File implements the Provider interface by writing each newsletter to an
// .eml file in the configured output directory.
// Intended for development and debugging; messages are never actually delivered.
type File struct {
	outputDir string
}

// NewFile creates a File provider that writes messages to the given directory.
// If ProviderConfig.Endpoint is set, it is used as the output directory;
// otherwise defaults to "./mail_output".
func NewFile(cfg ProviderConfig) *File {
	dir := cfg.Endpoint
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir}
}

func (f *File) GetName() string { return "file" }

// Send writes the message to a file named <timestamp>_<message-id>.eml
// in the output directory and returns a successful result.
func (f *File) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("file: create output dir: %w", err)
	}

	now := time.Now()
	safeID := strings.ReplaceAll(msg.ID, "/", "_")
	filename := fmt.Sprintf("%s_%s.eml", now.Format("20060102_150405"), safeID)
	path := filepath.Join(f.outputDir, filename)

	raw, err := buildMIME(msg, now)
	if err != nil {
		return nil, fmt.Errorf("file: build message: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o640); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", path, err)
	}

	return &DeliveryResult{
		ProviderMessageID: "file-" + msg.ID,
		Status:            StatusSent,
		Timestamp:         now,
		Metadata:          map[string]string{"path": path},
	}, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return nil
}
