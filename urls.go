package restless

import (
	"fmt"
	"strings"
	"sync"
)

// BasePathURLBuilder builds canonical URLs by joining a fixed API base path
// with collection names. Only registered collections resolve; asking for an
// unregistered one reports ErrNoEndpoint, which serializers treat as "omit
// the link".
type BasePathURLBuilder struct {
	base        string
	collections map[string]struct{}
	mu          sync.RWMutex
}

// NewBasePathURLBuilder creates a builder rooted at the given base path,
// e.g. "/api/v1".
func NewBasePathURLBuilder(base string) *BasePathURLBuilder {
	return &BasePathURLBuilder{
		base:        strings.TrimSuffix(base, "/"),
		collections: make(map[string]struct{}),
	}
}

// Register marks a collection as having endpoints.
func (b *BasePathURLBuilder) Register(collection string) {
	b.mu.Lock()
	b.collections[collection] = struct{}{}
	b.mu.Unlock()
}

// BasePath returns the base path the builder was created with.
func (b *BasePathURLBuilder) BasePath() string {
	return b.base
}

func (b *BasePathURLBuilder) resolve(collection string) error {
	b.mu.RLock()
	_, ok := b.collections[collection]
	b.mu.RUnlock()
	if !ok {
		return ErrNoEndpoint
	}
	return nil
}

func (b *BasePathURLBuilder) ResourceURL(collection, id string) (string, error) {
	if err := b.resolve(collection); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", b.base, collection, id), nil
}

func (b *BasePathURLBuilder) RelationshipURL(collection, id, relation string) (string, error) {
	if err := b.resolve(collection); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/relationships/%s", b.base, collection, id, relation), nil
}

func (b *BasePathURLBuilder) RelatedURL(collection, id, relation string) (string, error) {
	if err := b.resolve(collection); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/%s", b.base, collection, id, relation), nil
}
