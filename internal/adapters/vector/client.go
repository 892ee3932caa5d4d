package vector

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recalldev/recall/internal/adapters/circuitbreaker"
	"github.com/recalldev/recall/internal/adapters/metrics"
	"github.com/recalldev/recall/internal/adapters/retry"
	"github.com/recalldev/recall/internal/ports"
)

// Client is a minimal Qdrant REST client scoped to one collection.
// Point IDs are UUIDs derived from memory unit IDs; the original unit
// ID travels in the payload.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   retry.BackoffConfig
}

func NewClient(baseURL, collection string) *Client {
	return &Client{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker:  circuitbreaker.New(5, 30*time.Second),
		retryCfg: retry.HTTPConfig(),
	}
}

// pointID maps an arbitrary unit ID onto a UUID, since Qdrant only
// accepts UUIDs or unsigned integers as point IDs. The mapping is
// deterministic so upserts for the same unit overwrite.
func pointID(unitID string) string {
	sum := sha1.Sum([]byte(unitID))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// EnsureCollection creates the collection with a cosine index if it
// does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, dimension int) error {
	status, err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, nil)
	if err == nil && status == http.StatusOK {
		return nil
	}
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("checking collection: %w", err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil); err != nil {
		return fmt.Errorf("creating collection %s: %w", c.collection, err)
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, points []ports.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]map[string]any, len(points))
	for i, p := range points {
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["memory_unit_id"] = p.ID
		qdrantPoints[i] = map[string]any{
			"id":      pointID(p.ID),
			"vector":  p.Vector,
			"payload": payload,
		}
	}

	body := map[string]any{"points": qdrantPoints}
	_, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection+"/points?wait=true", body, nil)
	c.observe("upsert", err)
	return err
}

type queryResponse struct {
	Result struct {
		Points []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

type searchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search runs dense retrieval filtered to the project's memories plus
// global ones. Scores come back as cosine similarity and are clamped
// to [0, 1].
func (c *Client) Search(ctx context.Context, vector []float32, limit int, projectID string, minScore float32) ([]ports.VectorHit, error) {
	body := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if minScore > 0 {
		body["score_threshold"] = minScore
	}
	if filter := projectFilter(projectID); filter != nil {
		body["filter"] = filter
	}

	var qr queryResponse
	status, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/query", body, &qr)
	if err == nil {
		c.observe("search", nil)
		return c.toHits(pointsFromQuery(qr)), nil
	}

	// Older Qdrant versions predate the query API.
	if status == http.StatusNotFound {
		delete(body, "query")
		body["vector"] = vector
		var sr searchResponse
		if _, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", body, &sr); err != nil {
			c.observe("search", err)
			return nil, err
		}
		c.observe("search", nil)
		return c.toHits(pointsFromSearch(sr)), nil
	}

	c.observe("search", err)
	return nil, err
}

// SetPayload merges payload fields onto the point for one unit.
func (c *Client) SetPayload(ctx context.Context, id string, payload map[string]any) error {
	body := map[string]any{
		"payload": payload,
		"points":  []string{pointID(id)},
	}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/payload?wait=true", body, nil)
	c.observe("set_payload", err)
	return err
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	body := map[string]any{"points": pointIDs}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", body, nil)
	c.observe("delete", err)
	return err
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"exact": true}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/count", body, &resp)
	c.observe("count", err)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (c *Client) Healthy(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("collection %s not ready: status %d", c.collection, status)
	}
	return nil
}

type scoredPoint struct {
	score   float32
	payload map[string]any
}

func pointsFromQuery(qr queryResponse) []scoredPoint {
	out := make([]scoredPoint, len(qr.Result.Points))
	for i, p := range qr.Result.Points {
		out[i] = scoredPoint{score: p.Score, payload: p.Payload}
	}
	return out
}

func pointsFromSearch(sr searchResponse) []scoredPoint {
	out := make([]scoredPoint, len(sr.Result))
	for i, p := range sr.Result {
		out[i] = scoredPoint{score: p.Score, payload: p.Payload}
	}
	return out
}

func (c *Client) toHits(points []scoredPoint) []ports.VectorHit {
	hits := make([]ports.VectorHit, 0, len(points))
	for _, p := range points {
		unitID, _ := p.payload["memory_unit_id"].(string)
		if unitID == "" {
			continue
		}
		score := p.score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		hits = append(hits, ports.VectorHit{
			ID:      unitID,
			Score:   score,
			Payload: p.payload,
		})
	}
	return hits
}

// projectFilter restricts matches to one project plus global memories.
// An empty project means no filter at all.
func projectFilter(projectID string) map[string]any {
	if projectID == "" {
		return nil
	}
	return map[string]any{
		"should": []map[string]any{
			{"key": "project_id", "match": map[string]any{"value": projectID}},
			{"key": "project_id", "match": map[string]any{"value": "global"}},
		},
	}
}

// do executes one request with retry and circuit breaking. It returns
// the last HTTP status even on error so callers can branch on 404.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) (int, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastStatus int
	err := c.breaker.Execute(func() error {
		return retry.WithBackoffHTTP(ctx, c.retryCfg, func() (int, error) {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
			if err != nil {
				return 0, err
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			lastStatus = resp.StatusCode

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				return resp.StatusCode, nil
			}
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
				}
			}
			return resp.StatusCode, nil
		})
	})
	if err != nil {
		return lastStatus, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	return lastStatus, nil
}

func (c *Client) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.VectorOpsTotal.WithLabelValues(op, outcome).Inc()
}
