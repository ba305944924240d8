// Command agrilab runs the AgriFood Data Lab assistant on a terminal chat
// surface, plus a CSV ingestion mode for loading records into the vector
// index.
//
// Environment:
//
//	OPENAI_API_KEY     required
//	AGRILAB_MODEL      completion model (default gpt-3.5-turbo-1106)
//	VECTOR_STORE       "qdrant" (default) or "postgres"
//	QDRANT_HOST        qdrant host (default localhost)
//	POSTGRES_DSN       pgvector DSN when VECTOR_STORE=postgres
//	TRANSCRIPT_TYPE    transcript store backend (default inmemory)
//	TRANSCRIPT_CONN    backend connection string
//	FACETS_FILE        optional YAML facet schema overriding the default
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/barekit/agrilab/pkg/facets"
	"github.com/barekit/agrilab/pkg/knowledge"
	knowledgeopenai "github.com/barekit/agrilab/pkg/knowledge/openai"
	postgresvec "github.com/barekit/agrilab/pkg/knowledge/postgres"
	"github.com/barekit/agrilab/pkg/knowledge/qdrant"
	"github.com/barekit/agrilab/pkg/llm"
	llmopenai "github.com/barekit/agrilab/pkg/llm/openai"
	"github.com/barekit/agrilab/pkg/retrieval"
	"github.com/barekit/agrilab/pkg/session"
	"github.com/barekit/agrilab/pkg/transcript"
	"github.com/joho/godotenv"
)

const vectorSize = 1536 // text-embedding-3-small

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	embedder := knowledgeopenai.NewEmbedder()
	store, err := newVectorStore()
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}

	if len(os.Args) > 2 && os.Args[1] == "ingest" {
		kb := knowledge.NewKnowledgeBase(embedder, store)
		if err := ingest(ctx, kb, os.Args[2]); err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		fmt.Println("Ingestion complete.")
		return
	}

	schema := facets.Default()
	if path := os.Getenv("FACETS_FILE"); path != "" {
		schema, err = facets.Load(path)
		if err != nil {
			log.Fatalf("Failed to load facet schema: %v", err)
		}
	}

	transcripts, err := transcript.NewFactory(ctx, transcript.Config{
		Type:             transcript.Type(os.Getenv("TRANSCRIPT_TYPE")),
		ConnectionString: os.Getenv("TRANSCRIPT_CONN"),
		Username:         os.Getenv("TRANSCRIPT_USER"),
		Password:         os.Getenv("TRANSCRIPT_PASS"),
		DBName:           os.Getenv("TRANSCRIPT_DB"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize transcript store: %v", err)
	}

	provider := llmopenai.New()
	if model := os.Getenv("AGRILAB_MODEL"); model != "" {
		provider.SetModel(model)
	}

	retriever := retrieval.New(embedder, store)
	sess := session.New(provider, retriever,
		session.WithStore(transcripts),
		session.WithSchema(schema),
		session.WithDebug(os.Getenv("AGRILAB_DEBUG") != ""),
	)

	if err := chat(ctx, sess); err != nil && err != io.EOF {
		log.Fatalf("Chat failed: %v", err)
	}
}

func newVectorStore() (knowledge.VectorStore, error) {
	if os.Getenv("VECTOR_STORE") == "postgres" {
		dsn := os.Getenv("POSTGRES_DSN")
		if dsn == "" {
			dsn = "host=localhost user=postgres password=postgres dbname=agrilab port=5432 sslmode=disable"
		}
		return postgresvec.New(dsn)
	}

	host := "localhost"
	if h := os.Getenv("QDRANT_HOST"); h != "" {
		host = h
	}
	return qdrant.New(host, 6334, "agrilab_knowledge", vectorSize)
}

// chat drives the render loop: every user interaction triggers render
// cycles until the session has nothing left to do, then the surface waits
// for the next input.
func chat(ctx context.Context, sess *session.Session) error {
	reader := bufio.NewScanner(os.Stdin)
	printed := 0

	for {
		for {
			action, err := sess.Advance(ctx)
			if err != nil {
				return err
			}
			printed = render(ctx, sess, printed)
			if action == session.ActionNone {
				break
			}
			if action == session.ActionPreselect {
				renderFilters(sess)
			}
		}

		fmt.Print("> ")
		if !reader.Scan() {
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil
		case line == "/reset":
			if err := sess.Reset(ctx); err != nil {
				return err
			}
			printed = 0
		case line == "/filters":
			renderFilters(sess)
		case line == "/search":
			sess.Confirm()
		case strings.HasPrefix(line, "/set "):
			if err := setFilter(sess, strings.TrimPrefix(line, "/set ")); err != nil {
				fmt.Printf("error: %v\n", err)
			} else {
				renderFilters(sess)
			}
		default:
			if err := sess.UserInput(ctx, line); err != nil {
				return err
			}
		}
	}
}

func render(ctx context.Context, sess *session.Session, printed int) int {
	msgs, err := sess.Transcript(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return printed
	}
	for _, msg := range msgs[printed:] {
		switch msg.Role {
		case llm.RoleAssistant:
			label := "assistant"
			if msg.Error {
				label = "assistant (error)"
			}
			fmt.Printf("\n[%s]\n%s\n\n", label, msg.Content)
		case llm.RoleUser:
			// Echoed as typed; nothing to re-render.
		}
	}
	return len(msgs)
}

func renderFilters(sess *session.Session) {
	fmt.Println("Current filters (edit with /set <facet> v1; v2, run with /search):")
	for _, f := range sess.Schema().Facets {
		values := sess.Selection().Values(f.Name)
		if len(values) == 0 {
			fmt.Printf("  %-16s (any)\n", f.Name)
			continue
		}
		fmt.Printf("  %-16s %s\n", f.Name, strings.Join(values, "; "))
	}
}

func setFilter(sess *session.Session, arg string) error {
	name, rest, found := strings.Cut(arg, " ")
	if !found {
		return fmt.Errorf("usage: /set <facet> value1; value2")
	}
	var values []string
	for _, v := range strings.Split(rest, ";") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return sess.SetFilter(name, values)
}

// ingest loads knowledge-base records from a CSV file. Expected header:
// id,title,description,type,project,organization,region,country,topic,
// year,contact,project_id,document. Multi-valued cells use "|" between
// values, document cells use "name=url" pairs.
func ingest(ctx context.Context, kb *knowledge.KnowledgeBase, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["id"]; !ok {
		return fmt.Errorf("csv has no id column")
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	list := func(row []string, name string) []string {
		raw := cell(row, name)
		if raw == "" {
			return nil
		}
		var out []string
		for _, v := range strings.Split(raw, "|") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}

	var docs []knowledge.Document
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}

		links := make(map[string]interface{})
		for _, pair := range list(row, "document") {
			if name, url, ok := strings.Cut(pair, "="); ok {
				links[strings.TrimSpace(name)] = strings.TrimSpace(url)
			}
		}

		docs = append(docs, knowledge.Document{
			ID:      cell(row, "id"),
			Content: cell(row, "description"),
			Metadata: map[string]interface{}{
				"title":        cell(row, "title"),
				"description":  cell(row, "description"),
				"type":         cell(row, "type"),
				"project":      cell(row, "project"),
				"organization": cell(row, "organization"),
				"region":       cell(row, "region"),
				"country":      cell(row, "country"),
				"topic":        list(row, "topic"),
				"year":         list(row, "year"),
				"contact":      list(row, "contact"),
				"project_id":   cell(row, "project_id"),
				"document":     links,
			},
		})
	}

	if len(docs) == 0 {
		return fmt.Errorf("no records found in %s", path)
	}

	fmt.Printf("Ingesting %d records...\n", len(docs))
	return kb.Ingest(ctx, docs)
}
