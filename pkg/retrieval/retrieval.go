// Package retrieval turns a query string and facet selections into a
// filtered top-k similarity search and formats the matches for the chat
// transcript. Ranking is the vector index's own; nothing is re-ranked here.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/barekit/agrilab/pkg/facets"
	"github.com/barekit/agrilab/pkg/knowledge"
	"github.com/cenkalti/backoff/v4"
)

const (
	// TopK is the number of nearest neighbours requested per search.
	TopK = 5

	// maxRetries bounds the exponential backoff on external calls:
	// each call is attempted at most maxRetries+1 times.
	maxRetries = 2

	matchPreamble  = "We used the conversation and selected filters to run an AI-enabled semantic search on our database. Here are the top matches:"
	matchPostamble = "Would you like to know more about any of these matches or search for something else?"

	embeddingFailureMessage = "We couldn't run the search because the embedding service is unavailable. Please try again later."
	indexFailureMessage     = "We couldn't reach the search index. Please try again later."
)

// Adapter runs searches against the knowledge base on behalf of a session.
type Adapter struct {
	embedder knowledge.Embedder
	store    knowledge.VectorStore
	debug    bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDebug enables debug logging.
func WithDebug(enable bool) Option {
	return func(a *Adapter) {
		a.debug = enable
	}
}

// New creates an Adapter over the given embedder and vector store.
func New(embedder knowledge.Embedder, store knowledge.VectorStore, opts ...Option) *Adapter {
	a := &Adapter{
		embedder: embedder,
		store:    store,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search embeds the query, runs a filtered top-k similarity search, and
// returns the formatted match summary. A facet constrains the search only
// when its selection is non-empty. On failure the returned string is a
// user-visible message and the error carries the cause; the session stays
// interactive either way.
func (a *Adapter) Search(ctx context.Context, query string, selection facets.Selection) (string, error) {
	vector, err := a.embed(ctx, query)
	if err != nil {
		if a.debug {
			slog.Error("embedding failed", "error", err)
		}
		return embeddingFailureMessage, &knowledge.EmbeddingError{Err: err}
	}

	filter := buildFilter(selection)
	if a.debug {
		slog.Info("searching knowledge base", "filter_facets", len(filter))
	}

	var docs []knowledge.Document
	queryOp := func() error {
		var qerr error
		docs, qerr = a.store.Query(ctx, vector, TopK, filter)
		return qerr
	}
	if err := backoff.Retry(queryOp, newBackOff(ctx)); err != nil {
		if a.debug {
			slog.Error("vector query failed", "error", err)
		}
		return indexFailureMessage, fmt.Errorf("vector query failed: %w", err)
	}

	return FormatMatches(docs), nil
}

// MoreInformation fetches a single record by id and formats everything the
// knowledge base holds on it. An absent id yields a *knowledge.NotFoundError
// with a user-visible message, not a crash.
func (a *Adapter) MoreInformation(ctx context.Context, id string) (string, error) {
	var docs []knowledge.Document
	fetchOp := func() error {
		var ferr error
		docs, ferr = a.store.Fetch(ctx, []string{id})
		return ferr
	}
	if err := backoff.Retry(fetchOp, newBackOff(ctx)); err != nil {
		if a.debug {
			slog.Error("fetch failed", "id", id, "error", err)
		}
		return indexFailureMessage, fmt.Errorf("fetch %s failed: %w", id, err)
	}

	if len(docs) == 0 {
		err := &knowledge.NotFoundError{ID: id}
		return fmt.Sprintf("We couldn't find a record with ID %s in our database. Would you like to search for something else?", id), err
	}

	return FormatRecord(docs[0]), nil
}

func (a *Adapter) embed(ctx context.Context, query string) ([]float32, error) {
	var vector []float32
	op := func() error {
		vectors, err := a.embedder.Embed(ctx, []string{query})
		if err != nil {
			return err
		}
		if len(vectors) == 0 {
			return backoff.Permanent(fmt.Errorf("embedder returned no vectors"))
		}
		vector = vectors[0]
		return nil
	}
	if err := backoff.Retry(op, newBackOff(ctx)); err != nil {
		return nil, err
	}
	return vector, nil
}

func newBackOff(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
}

// buildFilter converts the non-empty facet selections into store
// constraints. Empty facets impose no constraint.
func buildFilter(selection facets.Selection) knowledge.Filter {
	filter := make(knowledge.Filter)
	for facet, values := range selection {
		if len(values) > 0 {
			filter[facet] = values
		}
	}
	return filter
}

// FormatMatches renders up to TopK matches as the fixed one-paragraph-per-
// match summary between the preamble and postamble.
func FormatMatches(docs []knowledge.Document) string {
	var b strings.Builder
	b.WriteString(matchPreamble)
	for _, doc := range docs {
		b.WriteString(fmt.Sprintf("  \n  \n**%s in %s:**  %s (ID: %s)  \n  \n",
			metaString(doc, "title"),
			metaString(doc, "country"),
			firstSentence(description(doc)),
			doc.ID,
		))
	}
	b.WriteString(matchPostamble)
	return b.String()
}

// FormatRecord renders everything the knowledge base holds on one record.
func FormatRecord(doc knowledge.Document) string {
	var documents strings.Builder
	links := metaMap(doc, "document")
	names := make([]string, 0, len(links))
	for name := range links {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		documents.WriteString(fmt.Sprintf(" - [%s](%s)  \n", name, links[name]))
	}

	return fmt.Sprintf("Here's all of the information we have on that record in our database:  \n  \n"+
		"**Title:** %s  \n **Description:** %s  \n **Type:** %s  \n **Project:** %s  \n "+
		"**Organization:** %s  \n **Region:** %s  \n **Country:** %s  \n"+
		"**Document(s):** %s  \n **Topic(s):** %s  \n **Year(s):** %s  \n "+
		"**Contact(s):** %s  \n **Project ID:** %s  \n  \n"+
		"Would you like us to analyze any of the linked files or search for something else?",
		metaString(doc, "title"),
		description(doc),
		metaString(doc, "type"),
		metaString(doc, "project"),
		metaString(doc, "organization"),
		metaString(doc, "region"),
		metaString(doc, "country"),
		documents.String(),
		strings.Join(metaList(doc, "topic"), ", "),
		strings.Join(metaList(doc, "year"), ", "),
		strings.Join(metaList(doc, "contact"), ", "),
		metaString(doc, "project_id"),
	)
}

// firstSentence truncates text at the first sentence terminator, keeping it.
func firstSentence(text string) string {
	if i := strings.Index(text, "."); i >= 0 {
		return text[:i+1]
	}
	return text
}

func description(doc knowledge.Document) string {
	if d := metaString(doc, "description"); d != "" {
		return d
	}
	return doc.Content
}

func metaString(doc knowledge.Document, key string) string {
	if v, ok := doc.Metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func metaList(doc knowledge.Document, key string) []string {
	v, ok := doc.Metadata[key]
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vals}
	default:
		return nil
	}
}

func metaMap(doc knowledge.Document, key string) map[string]string {
	v, ok := doc.Metadata[key]
	if !ok {
		return nil
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}
