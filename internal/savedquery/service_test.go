package savedquery_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsearch/internal/savedquery"
	"jobmate/jobsearch/internal/store"
)

func newService() *savedquery.Service {
	return savedquery.NewService(store.NewMemory().SavedQueries, nil)
}

func ptr[T any](v T) *T { return &v }

func date(s string) *savedquery.Date {
	t, err := savedquery.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &savedquery.Date{Time: t}
}

func TestCreate_Defaults(t *testing.T) {
	svc := newService()

	q, err := svc.Create(context.Background(), "u-1", savedquery.Input{Query: " nurse ", Location: "Austin, TX"})
	require.NoError(t, err)
	assert.NotZero(t, q.ID)
	assert.Equal(t, "u-1", q.UserID)
	assert.Equal(t, "nurse", q.Query)
	assert.True(t, q.IsActive)
	assert.Equal(t, savedquery.DefaultDistance, q.Distance)
	assert.Nil(t, q.LastRunAt)
}

func TestCreate_RejectsDuplicate(t *testing.T) {
	svc := newService()
	in := savedquery.Input{Query: "nurse", Location: "Austin"}

	_, err := svc.Create(context.Background(), "u-1", in)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "u-1", in)
	assert.ErrorIs(t, err, savedquery.ErrDuplicate)

	_, err = svc.Create(context.Background(), "u-2", in)
	assert.NoError(t, err, "another user may save the same search")
}

func TestCreate_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   savedquery.Input
		msg  string
	}{
		{"blank query", savedquery.Input{Location: "Austin"}, "query cannot be blank"},
		{"blank location", savedquery.Input{Query: "nurse"}, "location cannot be blank"},
		{"query too long", savedquery.Input{Query: strings.Repeat("a", 256), Location: "Austin"}, "query must not exceed 255 characters"},
		{"query charset", savedquery.Input{Query: "nurse; DROP", Location: "Austin"}, "query contains invalid characters"},
		{"location charset", savedquery.Input{Query: "nurse", Location: "Austin_TX"}, "location contains invalid characters"},
		{"comma only in location", savedquery.Input{Query: "nurse, rn", Location: "Austin"}, "query contains invalid characters"},
		{"distance too large", savedquery.Input{Query: "nurse", Location: "Austin", Distance: ptr(501)}, "distance must be at most 500"},
		{"negative distance", savedquery.Input{Query: "nurse", Location: "Austin", Distance: ptr(-1)}, "distance must be at least 0"},
		{"excluded terms too long", savedquery.Input{Query: "nurse", Location: "Austin", ExcludedTerms: strings.Repeat("x", 501)}, "excludedTerms must not exceed 500 characters"},
		{"inverted dates", savedquery.Input{Query: "nurse", Location: "Austin", DateFrom: date("2024-03-02"), DateTo: date("2024-03-01")}, "dateFrom must not be after dateTo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newService().Create(context.Background(), "u-1", tc.in)
			var verr *savedquery.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.msg, verr.Msg)
		})
	}
}

func TestUpdate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	q, err := svc.Create(ctx, "u-1", savedquery.Input{Query: "nurse", Location: "Austin", Distance: ptr(10)})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "u-1", q.ID, savedquery.Input{
		Query: "icu nurse", Location: "Round Rock", ExcludedTerms: "travel",
		DateFrom: date("2024-01-01"), DateTo: date("2024-12-31"),
	})
	require.NoError(t, err)
	assert.Equal(t, "icu nurse", updated.Query)
	assert.Equal(t, "Round Rock", updated.Location)
	assert.Equal(t, 10, updated.Distance, "absent distance keeps the stored value")
	assert.True(t, updated.IsActive)
	assert.Equal(t, "travel", updated.ExcludedTerms)
	require.NotNil(t, updated.DateFrom)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *updated.DateFrom)

	_, err = svc.Update(ctx, "u-2", q.ID, savedquery.Input{Query: "x", Location: "y"})
	assert.ErrorIs(t, err, savedquery.ErrNotFound, "other users cannot edit")

	other, err := svc.Create(ctx, "u-1", savedquery.Input{Query: "welder", Location: "Austin"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, "u-1", other.ID, savedquery.Input{Query: "icu nurse", Location: "Round Rock"})
	assert.ErrorIs(t, err, savedquery.ErrDuplicate)
}

func TestToggleListDelete(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	a, err := svc.Create(ctx, "u-1", savedquery.Input{Query: "nurse", Location: "Austin"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, "u-1", savedquery.Input{Query: "welder", Location: "Austin"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u-2", savedquery.Input{Query: "chef", Location: "Austin"})
	require.NoError(t, err)

	toggled, err := svc.Toggle(ctx, "u-1", b.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	all, err := svc.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.ListActive(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	require.NoError(t, svc.Delete(ctx, "u-1", a.ID))
	_, err = svc.Get(ctx, "u-1", a.ID)
	assert.ErrorIs(t, err, savedquery.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "u-1", a.ID), savedquery.ErrNotFound)
	_, err = svc.Toggle(ctx, "u-1", 9999)
	assert.ErrorIs(t, err, savedquery.ErrNotFound)
}

func TestDateJSON(t *testing.T) {
	var in savedquery.Input
	require.NoError(t, json.Unmarshal([]byte(`{"query":"q","location":"l","dateFrom":"2024-03-01","dateTo":null}`), &in))
	require.NotNil(t, in.DateFrom)
	assert.Equal(t, "2024-03-01", in.DateFrom.Format("2006-01-02"))
	assert.Nil(t, in.DateTo)

	assert.Error(t, json.Unmarshal([]byte(`{"dateFrom":"03/01/2024"}`), &in))
}
