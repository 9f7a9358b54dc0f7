package milvus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodySize = 4096

// restClient speaks the Milvus RESTful API v2.
type restClient struct {
	endpoint string
	token    string
	database string
	client   *http.Client
}

// envelope is the common v2 response wrapper. Code 0 means success; some
// versions report 200 instead.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *restClient) call(ctx context.Context, path string, body map[string]any, out any) error {
	if c.database != "" {
		body["dbName"] = c.database
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("milvus: marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("milvus: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("milvus: %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("milvus: %s: HTTP %d: %s", path, resp.StatusCode, b)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("milvus: decode %s: %w", path, err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return fmt.Errorf("milvus: %s: code %d: %s", path, env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("milvus: decode %s data: %w", path, err)
		}
	}
	return nil
}

// hasCollection reports whether the collection exists.
func (c *restClient) hasCollection(ctx context.Context, name string) (bool, error) {
	var data struct {
		Has bool `json:"has"`
	}
	if err := c.call(ctx, "/v2/vectordb/collections/has", map[string]any{"collectionName": name}, &data); err != nil {
		return false, err
	}
	return data.Has, nil
}

// createCollection creates the memory collection with an IVF_FLAT inner
// product index on the embedding field.
func (c *restClient) createCollection(ctx context.Context, name string, dim int) error {
	body := map[string]any{
		"collectionName": name,
		"schema": map[string]any{
			"autoId": false,
			"fields": []map[string]any{
				{"fieldName": "id", "dataType": "VarChar", "isPrimary": true, "elementTypeParams": map[string]any{"max_length": 64}},
				{"fieldName": "embedding", "dataType": "FloatVector", "elementTypeParams": map[string]any{"dim": dim}},
				{"fieldName": "text", "dataType": "VarChar", "elementTypeParams": map[string]any{"max_length": 2000}},
				{"fieldName": "memory_type", "dataType": "VarChar", "elementTypeParams": map[string]any{"max_length": 50}},
				{"fieldName": "student_id", "dataType": "VarChar", "elementTypeParams": map[string]any{"max_length": 50}},
				{"fieldName": "timestamp", "dataType": "Int64"},
			},
		},
		"indexParams": []map[string]any{
			{"fieldName": "embedding", "indexName": "embedding_ivf", "metricType": "IP", "indexType": "IVF_FLAT", "params": map[string]any{"nlist": 128}},
		},
	}
	return c.call(ctx, "/v2/vectordb/collections/create", body, nil)
}

type entity struct {
	ID         string    `json:"id"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Text       string    `json:"text"`
	MemoryType string    `json:"memory_type"`
	StudentID  string    `json:"student_id"`
	Timestamp  int64     `json:"timestamp"`
	Distance   float64   `json:"distance,omitempty"`
}

var outputFields = []string{"id", "text", "memory_type", "student_id", "timestamp"}

func (c *restClient) upsert(ctx context.Context, collection string, e entity) error {
	return c.call(ctx, "/v2/vectordb/entities/upsert", map[string]any{
		"collectionName": collection,
		"data":           []entity{e},
	}, nil)
}

func (c *restClient) search(ctx context.Context, collection string, vec []float32, filter string, limit, nprobe int) ([]entity, error) {
	body := map[string]any{
		"collectionName": collection,
		"data":           [][]float32{vec},
		"annsField":      "embedding",
		"limit":          limit,
		"outputFields":   outputFields,
		"searchParams": map[string]any{
			"metricType": "IP",
			"params":     map[string]any{"nprobe": nprobe},
		},
	}
	if filter != "" {
		body["filter"] = filter
	}
	var hits []entity
	if err := c.call(ctx, "/v2/vectordb/entities/search", body, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// deleteByID deletes one entity and reports how many existed beforehand.
func (c *restClient) deleteByID(ctx context.Context, collection, id string) (int, error) {
	filter := "id == " + quote(id)
	var found []entity
	if err := c.call(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": collection,
		"filter":         filter,
		"outputFields":   []string{"id"},
		"limit":          1,
	}, &found); err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}
	if err := c.call(ctx, "/v2/vectordb/entities/delete", map[string]any{
		"collectionName": collection,
		"filter":         filter,
	}, nil); err != nil {
		return 0, err
	}
	return len(found), nil
}

func (c *restClient) count(ctx context.Context, collection string) (int, error) {
	var rows []map[string]any
	if err := c.call(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": collection,
		"filter":         "",
		"outputFields":   []string{"count(*)"},
	}, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0]["count(*)"].(float64)
	return int(n), nil
}

// buildFilter renders the type and student filters as a Milvus boolean
// expression.
func buildFilter(memoryType, studentID string) string {
	var parts []string
	if memoryType != "" {
		parts = append(parts, "memory_type == "+quote(memoryType))
	}
	if studentID != "" {
		parts = append(parts, "student_id == "+quote(studentID))
	}
	return strings.Join(parts, " && ")
}

// quote renders s as a double-quoted Milvus string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
