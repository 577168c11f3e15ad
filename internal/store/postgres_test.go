package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newthinker/presetd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pgKey struct{ path, name string }

// fakeTable answers the store's statements from a map.
type fakeTable struct {
	mu      sync.Mutex
	rows    map[pgKey]string
	stmts   []string
	failErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: make(map[pgKey]string)}
}

func (f *fakeTable) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, sql)
	if f.failErr != nil {
		return pgconn.CommandTag{}, f.failErr
	}

	switch sql {
	case createPresetsTable:
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case upsertPresetSQL:
		f.rows[pgKey{args[0].(string), args[1].(string)}] = args[2].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case deletePresetSQL:
		k := pgKey{args[0].(string), args[1].(string)}
		if _, ok := f.rows[k]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(f.rows, k)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement: " + sql)
}

func (f *fakeTable) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, sql)
	if f.failErr != nil {
		return nil, f.failErr
	}

	seen := make(map[string]bool)
	var out []string
	for k := range f.rows {
		var v string
		switch sql {
		case listPresetsSQL:
			if k.path != args[0].(string) {
				continue
			}
			v = k.name
		case listNamespacesSQL:
			v = k.path
		default:
			return nil, errors.New("unexpected query: " + sql)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return &fakeRows{values: out}, nil
}

func (f *fakeTable) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, sql)
	if f.failErr != nil {
		return fakeRow{err: f.failErr}
	}
	data, ok := f.rows[pgKey{args[0].(string), args[1].(string)}]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{data: data}
}

type fakeRow struct {
	data string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = []byte(r.data)
	return nil
}

// fakeRows yields one text column.
type fakeRows struct {
	values []string
	pos    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.values[r.pos-1]
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	return []any{r.values[r.pos-1]}, nil
}

func TestPostgresStore_Contract(t *testing.T) {
	testStoreContract(t, &PostgresStore{db: newFakeTable()})
}

func TestPostgresStore_Migrate(t *testing.T) {
	table := newFakeTable()
	s := &PostgresStore{db: table}
	require.NoError(t, s.Migrate(context.Background()))
	assert.Equal(t, []string{createPresetsTable}, table.stmts)
}

func TestPostgresStore_SaveUpserts(t *testing.T) {
	table := newFakeTable()
	s := &PostgresStore{db: table}
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "strategies/ema", "ema-cross", emaSet()))
	updated := emaSet()
	updated.SetValue("slow", 30)
	require.NoError(t, s.Save(ctx, "strategies/ema", "ema-cross", updated))

	assert.Equal(t, []string{upsertPresetSQL, upsertPresetSQL}, table.stmts)
	require.Len(t, table.rows, 1)

	raw := table.rows[pgKey{"strategies/ema", "ema-cross"}]
	assert.Regexp(t, `^\{"fast":.*"slow":\{"value":30.*"symbol":`, raw)

	got, err := s.Load(ctx, "strategies/ema", "ema-cross")
	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "slow", "symbol"}, got.Names())
}

func TestPostgresStore_NoRowsIsNotFound(t *testing.T) {
	s := &PostgresStore{db: newFakeTable()}

	_, err := s.Load(context.Background(), "strategies/ema", "missing")
	require.ErrorIs(t, err, core.ErrPresetNotFound)

	var rec *RecordError
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, "strategies/ema", rec.Path)
}

func TestPostgresStore_DatabaseErrors(t *testing.T) {
	table := newFakeTable()
	table.failErr = errors.New("connection refused")
	s := &PostgresStore{db: table}
	ctx := context.Background()

	_, err := s.List(ctx, "p")
	assert.ErrorContains(t, err, "listing p")
	_, err = s.Load(ctx, "p", "a")
	assert.ErrorContains(t, err, "reading p/a")
	assert.NotErrorIs(t, err, core.ErrPresetNotFound)
	assert.ErrorContains(t, s.Save(ctx, "p", "a", emaSet()), "writing p/a")
	assert.ErrorContains(t, s.Delete(ctx, "p", "a"), "deleting p/a")
	_, err = s.Namespaces(ctx)
	assert.ErrorContains(t, err, "listing namespaces")
	assert.ErrorContains(t, s.Migrate(ctx), "creating preset_records")
}
