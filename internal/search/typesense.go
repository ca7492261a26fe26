package search

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// TypesenseIndex stores projection documents in a Typesense collection.
type TypesenseIndex struct {
	client     *typesense.Client
	collection string
}

var (
	_ Index    = (*TypesenseIndex)(nil)
	_ Searcher = (*TypesenseIndex)(nil)
)

func New(cfg Config) (*TypesenseIndex, error) {
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, errors.New("typesense url and collection are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(cfg.Timeout),
	)

	return &TypesenseIndex{client: client, collection: cfg.Collection}, nil
}

// Schema is the fixed collection layout. There is no schema evolution: a collection
// that already exists is used as is.
func Schema(name string) *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: name,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "title", Type: "string"},
			{Name: "content", Type: "string"},
			{Name: "tag", Type: "string[]"},
			{Name: "createdAt", Type: "int64"},
			{Name: "answerCount", Type: "int32"},
			{Name: "hasAcceptedAnswer", Type: "bool"},
		},
		DefaultSortingField: pointer.String("createdAt"),
	}
}

func (t *TypesenseIndex) EnsureCollection(ctx context.Context) error {
	_, err := t.client.Collection(t.collection).Retrieve(ctx)
	if err == nil {
		slog.InfoContext(ctx, "search collection exists", "collection", t.collection)
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("retrieving collection %s: %w", t.collection, err)
	}

	if _, err := t.client.Collections().Create(ctx, Schema(t.collection)); err != nil {
		return fmt.Errorf("creating collection %s: %w", t.collection, err)
	}

	slog.InfoContext(ctx, "search collection created", "collection", t.collection)
	return nil
}

func (t *TypesenseIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.Tag == nil {
		doc.Tag = []string{}
	}
	_, err := t.client.Collection(t.collection).Documents().Upsert(ctx, doc, &api.DocumentIndexParameters{})
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (t *TypesenseIndex) Delete(ctx context.Context, id string) error {
	_, err := t.client.Collection(t.collection).Document(id).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

func (t *TypesenseIndex) Export(ctx context.Context) ([]Document, error) {
	body, err := t.client.Collection(t.collection).Documents().Export(ctx, &api.ExportDocumentsParams{})
	if err != nil {
		return nil, fmt.Errorf("exporting documents: %w", err)
	}
	defer body.Close()

	return decodeJSONL(body)
}

func (t *TypesenseIndex) Search(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = "*"
	}
	limit := q.Limit
	if limit <= 0 || limit > 250 {
		limit = 20
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(text),
		QueryBy: pointer.String("title,content"),
		PerPage: pointer.Int(limit),
	}
	if q.Tag != nil && *q.Tag != "" {
		params.FilterBy = pointer.String(tagFilter(*q.Tag))
	}

	res, err := t.client.Collection(t.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", t.collection, err)
	}
	if res.Hits == nil {
		return []Document{}, nil
	}

	docs := make([]Document, 0, len(*res.Hits))
	for _, hit := range *res.Hits {
		if hit.Document == nil {
			continue
		}
		raw, err := json.Marshal(*hit.Document)
		if err != nil {
			return nil, fmt.Errorf("decoding hit: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decoding hit: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// decodeJSONL reads one document per line, the format of the export endpoint.
func decodeJSONL(r io.Reader) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, fmt.Errorf("decoding exported document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return docs, nil
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}

func tagFilter(tag string) string {
	return "tag:=[`" + tag + "`]"
}
