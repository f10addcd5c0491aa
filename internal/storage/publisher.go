package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/timmy/examforge/internal/logger"
)

// Publisher uploads generated documents to object storage.
type Publisher struct {
	store  ObjectStorage
	prefix string
	log    *logger.Logger
}

// NewPublisher creates a Publisher that stores objects under prefix.
func NewPublisher(store ObjectStorage, prefix string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Publisher{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		log:    log.WithField(logger.FieldComponent, "publisher"),
	}
}

// Publish uploads the local file at localPath under key (relative to the
// publisher prefix) and returns its URL.
func (p *Publisher) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat document: %w", err)
	}

	objectKey := path.Join(p.prefix, strings.TrimLeft(key, "/"))
	if err := p.store.Upload(ctx, objectKey, f, info.Size(), contentType); err != nil {
		return "", err
	}

	url := p.store.GetURL(objectKey)
	p.log.WithFields(logger.Fields{
		"key":            objectKey,
		logger.FieldSize: info.Size(),
	}).Debug("Document published")
	return url, nil
}
