// Package wiring assembles the stores, LLM client and services selected by the
// configuration. The HTTP server and the CLI share it.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/PabloGalante/farum-coach/internal/adapters/auth"
	httpadapter "github.com/PabloGalante/farum-coach/internal/adapters/http"
	"github.com/PabloGalante/farum-coach/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/farum-coach/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-coach/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/farum-coach/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-coach/internal/app/conversation"
	journalapp "github.com/PabloGalante/farum-coach/internal/app/journal"
	"github.com/PabloGalante/farum-coach/internal/app/tools"
	"github.com/PabloGalante/farum-coach/internal/app/transcript"
	"github.com/PabloGalante/farum-coach/internal/config"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/observability"
)

// Stores groups every persistence port. The SQLite and Firestore stores
// implement all of them; memory mode combines several stores.
type Stores struct {
	Sessions    domain.SessionStore
	Messages    domain.MessageStore
	Transcripts domain.TranscriptStore
	Journal     domain.JournalStore
	Records     domain.RecordBackend
}

type fullStore interface {
	domain.SessionStore
	domain.MessageStore
	domain.TranscriptStore
	domain.JournalStore
	domain.RecordBackend
}

func storesOf(s fullStore) Stores {
	return Stores{Sessions: s, Messages: s, Transcripts: s, Journal: s, Records: s}
}

// MemoryStores returns fresh in-memory stores.
func MemoryStores() Stores {
	messages := memstore.NewMessageStore()
	return Stores{
		Sessions:    memstore.NewSessionStore(),
		Messages:    messages,
		Transcripts: messages,
		Journal:     memstore.NewJournalStore(),
		Records:     memstore.NewRecordStore(),
	}
}

type Container struct {
	Config *config.Config
	Stores Stores

	Transcripts  *transcript.Coordinator
	Conversation *conversation.Service
	Journal      *journalapp.Service

	closers []func() error
}

// Build opens the configured backends. Callers must Close the container.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := observability.WithFields("storage", cfg.StorageBackend, "mock_llm", cfg.UseMockLLM)

	c := &Container{Config: cfg}

	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, fmt.Errorf("init firestore store: %w", err)
		}
		c.closers = append(c.closers, fs.Close)
		c.Stores = storesOf(fs)

	case config.StorageSQLite:
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		c.Stores = storesOf(db)

	default:
		log.Info("using in-memory storage")
		c.Stores = MemoryStores()
	}

	var llmClient domain.LLMClient
	if cfg.UseMockLLM {
		llmClient = llm.NewMockLLM()
	} else {
		vc, err := llm.NewVertexClient(ctx, llm.VertexConfig{
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelName,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("init vertex client: %w", err)
		}
		llmClient = vc
	}

	c.wire(llmClient)
	return c, nil
}

// New wires a container around already-built stores and LLM client.
func New(cfg *config.Config, stores Stores, llmClient domain.LLMClient) *Container {
	c := &Container{Config: cfg, Stores: stores}
	c.wire(llmClient)
	return c
}

func (c *Container) wire(llmClient domain.LLMClient) {
	authProvider := auth.ContextProvider{Fallback: auth.StaticProvider(c.Config.DevAuthToken)}

	c.Transcripts = transcript.NewCoordinator(
		c.Stores.Sessions,
		c.Stores.Messages,
		c.Stores.Transcripts,
		c.Stores.Records,
		authProvider,
	)
	c.Conversation = conversation.NewService(
		llmClient,
		c.Stores.Sessions,
		c.Transcripts,
		tools.NewJournalTool(c.Stores.Journal),
	)
	c.Journal = journalapp.NewService(c.Stores.Journal)
}

// Handler returns the HTTP API.
func (c *Container) Handler() http.Handler {
	return httpadapter.NewServer(c.Conversation, c.Journal, c.Transcripts)
}

func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
