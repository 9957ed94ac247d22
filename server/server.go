package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/primojavier/pdfrag/internal/types"
	"github.com/primojavier/pdfrag/pkg/llm"
	"github.com/primojavier/pdfrag/pkg/loader"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Config struct {
	Streaming bool
	DocsDir   string
}

type WSServer struct {
	config      Config
	processor   types.Processor
	embedder    types.Embedder
	chatEngine  *llm.ChatEngine
	vectorStore types.VectorStore
}

func New(config Config, processor types.Processor, embedder types.Embedder, chatEngine *llm.ChatEngine, vectorStore types.VectorStore) *WSServer {
	return &WSServer{
		config:      config,
		processor:   processor,
		embedder:    embedder,
		chatEngine:  chatEngine,
		vectorStore: vectorStore,
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		switch msg.Type {
		case "ingest":
			s.handleIngest(r.Context(), conn, msg)
		default:
			s.handleChat(r.Context(), conn, msg)
		}
	}
}

func (s *WSServer) handleIngest(ctx context.Context, conn *websocket.Conn, msg Message) {
	docsDir := msg.Content
	if docsDir == "" {
		docsDir = s.config.DocsDir
	}
	if docsDir == "" {
		s.sendMessage(conn, "error", "no documents folder configured")
		return
	}

	s.sendMessage(conn, "status", fmt.Sprintf("Ingesting documents from %s", docsDir))

	loadedCount := 0
	l, err := loader.NewWithConfig(loader.LoaderConfig{
		RootDir: docsDir,
		OnProgress: func(path string) {
			loadedCount++
			s.sendMessage(conn, "progress", fmt.Sprintf("Loaded %d documents", loadedCount))
		},
	})
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to initialize loader: %v", err))
		return
	}

	docs, err := l.Load()
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to load documents: %v", err))
		return
	}
	s.sendMessage(conn, "status", fmt.Sprintf("Loaded %d documents", len(docs)))

	if err := s.vectorStore.StoreRaw(ctx, docs); err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to store raw documents: %v", err))
		return
	}

	chunks, err := s.processor.Process(docs)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to chunk documents: %v", err))
		return
	}
	s.sendMessage(conn, "status", fmt.Sprintf("Split into %d chunks", len(chunks)))

	embedded, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to embed chunks: %v", err))
		return
	}
	s.sendMessage(conn, "status", fmt.Sprintf("Embedded %d chunks", len(embedded)))

	if err := s.vectorStore.Store(ctx, embedded); err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to store chunks: %v", err))
		return
	}

	s.sendMessage(conn, "done", fmt.Sprintf("Ingested %d documents (%d chunks)", len(docs), len(embedded)))
}

func (s *WSServer) handleChat(ctx context.Context, conn *websocket.Conn, msg Message) {
	query := msg.Content

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to create query embedding: %v", err))
		return
	}

	chunks, err := s.vectorStore.Query(ctx, queryEmbedding, 0)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error querying chunks: %v", err))
		return
	}

	if s.config.Streaming {
		stream, err := s.chatEngine.ChatStream(ctx, query, chunks)
		if err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
			return
		}

		for chunk := range stream {
			if strings.HasPrefix(chunk, "Error:") {
				s.sendMessage(conn, "error", chunk)
				break
			}
			s.sendMessage(conn, "stream", chunk)
		}
	} else {
		response, err := s.chatEngine.Chat(ctx, query, chunks)
		if err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
			return
		}
		s.sendMessage(conn, "response", response)
	}
}

func (s *WSServer) sendMessage(conn *websocket.Conn, msgType string, content string) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// ListenAndServe serves the WebSocket endpoint on /ws plus a health check.
func (s *WSServer) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	log.Printf("Starting WebSocket server on %s", addr)
	return http.ListenAndServe(addr, mux)
}
