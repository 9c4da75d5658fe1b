// Package knowledge mirrors documents and the citations that reference them
// into Neo4j.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/querry/chat"
)

type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

// SyncDocument upserts (:User)-[:OWNS]->(:Document) for a completed document.
func (g *Graph) SyncDocument(ctx context.Context, doc chat.Document) error {
	return g.write(ctx, func(tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, `
			MERGE (u:User {id: $owner_id})
			MERGE (d:Document {id: $id})
			SET d.title = $title,
			    d.status = $status,
			    d.created_at = datetime($created_at),
			    d.updated_at = datetime()
			MERGE (u)-[:OWNS]->(d)
		`, map[string]any{
			"id":         doc.ID,
			"owner_id":   doc.OwnerID,
			"title":      doc.Title,
			"status":     string(doc.Status),
			"created_at": doc.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		}); err != nil {
			return fmt.Errorf("upsert document node: %w", err)
		}
		return nil
	})
}

// RemoveDocument deletes the document node and its citation edges.
func (g *Graph) RemoveDocument(ctx context.Context, id string) error {
	return g.write(ctx, func(tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})
			DETACH DELETE d
		`, map[string]any{"id": id}); err != nil {
			return fmt.Errorf("delete document node: %w", err)
		}
		return nil
	})
}

// RecordCitations links the session to every cited document with one CITES
// edge per turn. Re-recording the same turn is a no-op.
func (g *Graph) RecordCitations(ctx context.Context, session chat.Session, turnIndex int, citations []chat.Citation) error {
	return g.write(ctx, func(tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, `
			MERGE (u:User {id: $owner_id})
			MERGE (s:Session {id: $session_id})
			SET s.title = $title,
			    s.updated_at = datetime()
			MERGE (u)-[:STARTED]->(s)
		`, map[string]any{
			"owner_id":   session.OwnerID,
			"session_id": session.ID,
			"title":      session.Title,
		}); err != nil {
			return fmt.Errorf("upsert session node: %w", err)
		}

		for _, citation := range citations {
			if citation.DocumentID == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (s:Session {id: $session_id})
				MERGE (d:Document {id: $doc_id})
				ON CREATE SET d.title = $doc_title
				MERGE (s)-[c:CITES {turn: $turn, doc_id: $doc_id}]->(d)
				SET c.snippet = $snippet
			`, map[string]any{
				"session_id": session.ID,
				"doc_id":     citation.DocumentID,
				"doc_title":  citation.DocTitle,
				"turn":       turnIndex,
				"snippet":    citation.Snippet,
			}); err != nil {
				return fmt.Errorf("upsert citation edge: %w", err)
			}
		}
		return nil
	})
}

// CitedDocument is a document ranked by how often a user's sessions cite it.
type CitedDocument struct {
	ID    string
	Title string
	Count int64
}

// MostCited returns the owner's documents ordered by how many citation edges
// point at them.
func (g *Graph) MostCited(ctx context.Context, ownerID string, limit int) ([]CitedDocument, error) {
	if g == nil || g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (:User {id: $owner_id})-[:STARTED]->(:Session)-[c:CITES]->(d:Document)
		RETURN d.id AS id, d.title AS title, count(c) AS cites
		ORDER BY cites DESC, title ASC
		LIMIT $limit
	`, map[string]any{"owner_id": ownerID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("run cited documents query: %w", err)
	}

	docs := make([]CitedDocument, 0, limit)
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		titleVal, _ := record.Get("title")
		citesVal, _ := record.Get("cites")
		id, ok := idVal.(string)
		if !ok {
			continue
		}
		title, _ := titleVal.(string)
		var cites int64
		switch v := citesVal.(type) {
		case int64:
			cites = v
		case int32:
			cites = int64(v)
		}
		docs = append(docs, CitedDocument{ID: id, Title: title, Count: cites})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("cited documents result error: %w", err)
	}
	return docs, nil
}

func (g *Graph) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

var _ chat.CitationRecorder = (*Graph)(nil)
