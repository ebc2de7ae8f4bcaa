package service_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harborview/mediahub/internal/sessions/store"
	"github.com/harborview/mediahub/internal/sessions/store/drivers/sqlite"
)

// newTestStore opens a per-test in-memory database with migrations applied.
// The shared cache keeps every pooled connection on the same database.
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}
