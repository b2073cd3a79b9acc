package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type row struct {
	id    string
	title string
}

func (r row) StableId() string { return r.id }

func (r row) Validate() error {
	if r.id == "" {
		return errors.New("missing id")
	}
	return nil
}

type item struct {
	id          string
	title       string
	invalidated bool
}

func (i *item) StableId() string { return i.id }

func (i *item) Update(r row) error {
	i.title = r.title
	return nil
}

func (i *item) Invalidate() { i.invalidated = true }

func newItem(r row) (*item, error) {
	return &item{id: r.id, title: r.title}, nil
}

func TestReconcile(t *testing.T) {
	one, _ := newItem(row{id: "1", title: "a"})
	two, _ := newItem(row{id: "2", title: "b"})

	out, err := Reconcile([]*item{one, two}, []row{
		{id: "3", title: "c"},
		{id: "2", title: "b2"},
	}, newItem)
	require.NoError(t, err)

	require.Len(t, out, 2)
	require.Same(t, two, out[0])
	require.Equal(t, "b2", two.title)
	require.Equal(t, "3", out[1].id)
	require.Equal(t, "c", out[1].title)

	require.True(t, one.invalidated)
	require.False(t, two.invalidated)
}

func TestReconcileKeepsHeldOnInvalidRow(t *testing.T) {
	one, _ := newItem(row{id: "1", title: "a"})

	_, err := Reconcile([]*item{one}, []row{{id: "1", title: "changed"}, {}}, newItem)
	require.Error(t, err)
	require.Equal(t, "a", one.title)
	require.False(t, one.invalidated)
}

func TestReconcileDuplicateRows(t *testing.T) {
	out, err := Reconcile(nil, []row{
		{id: "1", title: "first"},
		{id: "1", title: "second"},
	}, newItem)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "second", out[0].title)
}

func TestReconcileEmpty(t *testing.T) {
	one, _ := newItem(row{id: "1", title: "a"})

	out, err := Reconcile([]*item{one}, nil, newItem)
	require.NoError(t, err)
	require.Empty(t, out)
	require.True(t, one.invalidated)
}

func TestUpsert(t *testing.T) {
	one, _ := newItem(row{id: "1", title: "a"})

	held, e, err := Upsert([]*item{one}, row{id: "1", title: "a2"}, newItem)
	require.NoError(t, err)
	require.Same(t, one, e)
	require.Len(t, held, 1)
	require.Equal(t, "a2", one.title)

	held, e, err = Upsert(held, row{id: "2", title: "b"}, newItem)
	require.NoError(t, err)
	require.Len(t, held, 2)
	require.Same(t, e, held[1])

	_, _, err = Upsert(held, row{}, newItem)
	require.Error(t, err)
}
