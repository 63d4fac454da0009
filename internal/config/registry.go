package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when the config
// names a provider nothing was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a live provider client from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// table is one provider kind's name-to-factory map. The zero value is ready
// to use.
type table[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

func (tb *table[T]) register(name string, fn Factory[T]) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.factories == nil {
		tb.factories = make(map[string]Factory[T])
	}
	tb.factories[name] = fn
}

func (tb *table[T]) create(kind string, entry ProviderEntry) (T, error) {
	tb.mu.RLock()
	fn, ok := tb.factories[entry.Name]
	tb.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return fn(entry)
}

// Registry resolves the provider entries of a config file into live clients.
// main registers one factory per known provider name; the app creates
// whatever the file names. Safe for concurrent use.
type Registry struct {
	chat       table[chat.Client]
	stt        table[stt.Provider]
	embeddings table[embeddings.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterChat registers a chat client factory under name. Registering a
// name again replaces the earlier factory.
func (r *Registry) RegisterChat(name string, fn Factory[chat.Client]) {
	r.chat.register(name, fn)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Provider]) {
	r.stt.register(name, fn)
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, fn Factory[embeddings.Provider]) {
	r.embeddings.register(name, fn)
}

// CreateChat builds the chat client entry names. Returns
// [ErrProviderNotRegistered] when no factory matches.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Client, error) {
	return r.chat.create("chat", entry)
}

// CreateSTT builds the STT provider entry names.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create("stt", entry)
}

// CreateEmbeddings builds the embeddings provider entry names.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create("embeddings", entry)
}
