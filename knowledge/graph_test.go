package knowledge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/config"
	"github.com/fabfab/querry/database"
)

func TestNilDriverIsRejected(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	assert.Error(t, g.SyncDocument(ctx, chat.Document{ID: "d"}))
	assert.Error(t, g.RemoveDocument(ctx, "d"))
	assert.Error(t, g.RecordCitations(ctx, chat.Session{ID: "s"}, 0, nil))
	_, err := g.MostCited(ctx, "owner", 5)
	assert.Error(t, err)
}

func TestCitationGraphRoundTrip(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run neo4j checks")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	require.NoError(t, err)
	require.NotNil(t, driver, "NEO4J_URI must be set")
	defer func() { _ = driver.Close(ctx) }()

	g := NewGraph(driver)
	owner := uuid.NewString()
	policy := chat.Document{ID: uuid.NewString(), OwnerID: owner, Title: "Policy.pdf", Status: chat.StatusCompleted, CreatedAt: time.Now()}
	handbook := chat.Document{ID: uuid.NewString(), OwnerID: owner, Title: "Handbook.pdf", Status: chat.StatusCompleted, CreatedAt: time.Now()}
	require.NoError(t, g.SyncDocument(ctx, policy))
	require.NoError(t, g.SyncDocument(ctx, handbook))
	defer func() {
		_ = g.RemoveDocument(ctx, policy.ID)
		_ = g.RemoveDocument(ctx, handbook.ID)
	}()

	session := chat.Session{ID: uuid.NewString(), OwnerID: owner, Title: "Refunds"}
	require.NoError(t, g.RecordCitations(ctx, session, 0, []chat.Citation{
		{DocTitle: "Policy.pdf", Snippet: "14 days", DocumentID: policy.ID},
	}))
	require.NoError(t, g.RecordCitations(ctx, session, 1, []chat.Citation{
		{DocTitle: "Policy.pdf", Snippet: "store credit", DocumentID: policy.ID},
		{DocTitle: "Handbook.pdf", Snippet: "returns desk", DocumentID: handbook.ID},
	}))
	// replaying a turn must not add edges
	require.NoError(t, g.RecordCitations(ctx, session, 1, []chat.Citation{
		{DocTitle: "Policy.pdf", Snippet: "store credit", DocumentID: policy.ID},
	}))

	cited, err := g.MostCited(ctx, owner, 5)
	require.NoError(t, err)
	require.Len(t, cited, 2)
	assert.Equal(t, CitedDocument{ID: policy.ID, Title: "Policy.pdf", Count: 2}, cited[0])
	assert.Equal(t, int64(1), cited[1].Count)
}
