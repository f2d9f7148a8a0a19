//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestEngineDB_MigratedSchema(t *testing.T) {
	engineDB := GetEngineDB(t)

	ctx := context.Background()

	tables := []string{
		"engine_projects",
		"epics",
		"design_files",
		"artifacts",
		"notion_integrations",
		"notion_database_mappings",
	}

	for _, table := range tables {
		var exists bool
		err := engineDB.DB.Pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected migrated table %s to exist", table)
		}
	}
}
