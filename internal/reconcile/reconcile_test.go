package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tradefair-crawler/internal/parser"
	"github.com/JakeFAU/tradefair-crawler/internal/storage/memory"
	"github.com/JakeFAU/tradefair-crawler/internal/store"
	"github.com/JakeFAU/tradefair-crawler/internal/tradefair"
)

type mockSite struct {
	mock.Mock
}

func (m *mockSite) ProbeCount(ctx context.Context, exhibitorsURL string) (int, *tradefair.CachedPage) {
	args := m.Called(ctx, exhibitorsURL)
	page, _ := args.Get(1).(*tradefair.CachedPage)
	return args.Int(0), page
}

func (m *mockSite) ListExhibitors(ctx context.Context, exhibitorsURL string, cached *tradefair.CachedPage) []tradefair.Exhibitor {
	args := m.Called(ctx, exhibitorsURL, cached)
	rows, _ := args.Get(0).([]tradefair.Exhibitor)
	return rows
}

// faultyRepo injects failures into an otherwise working memory store.
type faultyRepo struct {
	*memory.Store
	failDataSource bool
	failEvent      bool
	failCountry    bool
	failInsert     string
}

func (f *faultyRepo) EnsureDataSource(ctx context.Context, name, www string) (int64, error) {
	if f.failDataSource {
		return 0, errors.New("data source table locked")
	}
	return f.Store.EnsureDataSource(ctx, name, www)
}

func (f *faultyRepo) EnsureEvent(ctx context.Context, e store.Event) (int64, error) {
	if f.failEvent {
		return 0, errors.New("event table locked")
	}
	return f.Store.EnsureEvent(ctx, e)
}

func (f *faultyRepo) EnsureCountry(ctx context.Context, name string) (int64, error) {
	if f.failCountry {
		return 0, errors.New("country table locked")
	}
	return f.Store.EnsureCountry(ctx, name)
}

func (f *faultyRepo) InsertCompany(ctx context.Context, c store.Company) error {
	if f.failInsert != "" && c.Name == f.failInsert {
		return errors.New("value too long")
	}
	return f.Store.InsertCompany(ctx, c)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		DataSourceName:      "targikielce.pl",
		DataSourceWWW:       "https://www.targikielce.pl",
		DefaultDataSourceID: 99,
		DefaultCountryID:    1,
		DefaultIndustryID:   1,
	}
}

func newTestReconciler(t *testing.T, site Site, repo store.Repository, opts ...Option) *Reconciler {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock{now: testNow})}, opts...)
	r, err := New(site, repo, testConfig(), nil, opts...)
	require.NoError(t, err)
	return r
}

func testEvent(name string) tradefair.Event {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	return tradefair.Event{
		Name:          name,
		URL:           "https://www.targikielce.pl/" + slug,
		DateRange:     "12-14.03.2025",
		ExhibitorsURL: "https://www.targikielce.pl/" + slug + "/lista-wystawcow",
		Slug:          slug,
	}
}

func exhibitors(names ...string) []tradefair.Exhibitor {
	out := make([]tradefair.Exhibitor, 0, len(names))
	for _, name := range names {
		out = append(out, tradefair.Exhibitor{Name: name, Country: "Polska"})
	}
	return out
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, memory.NewStore(), Config{}, nil)
	require.Error(t, err)
	_, err = New(&mockSite{}, nil, Config{}, nil)
	require.Error(t, err)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	page := &tradefair.CachedPage{URL: ev.ExhibitorsURL, Body: "<html></html>"}
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(3, page)
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, page).
		Return(exhibitors("Acme Corp", "Beta SA", "Gamma Sp. z o.o.")).Once()

	repo := memory.NewStore()
	r := newTestReconciler(t, site, repo)

	first := r.Reconcile(context.Background(), ev)
	assert.Equal(t, Processed, first.Outcome)
	assert.Equal(t, 3, first.Added)
	assert.Equal(t, 0, first.Existing)

	second := r.Reconcile(context.Background(), ev)
	assert.Equal(t, SkippedUpToDate, second.Outcome)
	assert.Equal(t, 3, second.Existing)
	assert.Zero(t, second.Added)

	site.AssertNumberOfCalls(t, "ListExhibitors", 1)
	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.Len(t, repo.Companies(events[0].ID), 3)
}

func TestReconcileShortCircuitsWhenStoredCountCoversProbe(t *testing.T) {
	t.Parallel()

	ev := testEvent("Metal")
	repo := memory.NewStore()
	eventID, err := repo.EnsureEvent(context.Background(), store.Event{Name: ev.Name})
	require.NoError(t, err)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, repo.InsertCompany(context.Background(), store.Company{EventID: eventID, Name: name}))
	}

	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(5, (*tradefair.CachedPage)(nil))

	res := newTestReconciler(t, site, repo).Reconcile(context.Background(), ev)
	assert.Equal(t, SkippedUpToDate, res.Outcome)
	site.AssertNotCalled(t, "ListExhibitors", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileSkipsEmptyListing(t *testing.T) {
	t.Parallel()

	ev := testEvent("Pusty")
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(0, (*tradefair.CachedPage)(nil))

	repo := memory.NewStore()
	res := newTestReconciler(t, site, repo).Reconcile(context.Background(), ev)
	assert.Equal(t, SkippedEmpty, res.Outcome)
	site.AssertNotCalled(t, "ListExhibitors", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, repo.Events(), 1, "event row is ensured even when empty")
}

func TestReconcileDedupesPerEvent(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	ev2 := testEvent("Metal")
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(1, (*tradefair.CachedPage)(nil)).Once()
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(2, (*tradefair.CachedPage)(nil)).Once()
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, mock.Anything).Return(exhibitors("Acme Corp"))
	site.On("ProbeCount", mock.Anything, ev2.ExhibitorsURL).Return(1, (*tradefair.CachedPage)(nil))
	site.On("ListExhibitors", mock.Anything, ev2.ExhibitorsURL, mock.Anything).Return(exhibitors("Acme Corp"))

	r := newTestReconciler(t, site, memory.NewStore())

	assert.Equal(t, 1, r.Reconcile(context.Background(), ev).Added)
	rerun := r.Reconcile(context.Background(), ev)
	assert.Equal(t, Processed, rerun.Outcome)
	assert.Zero(t, rerun.Added)
	assert.Equal(t, 1, r.Reconcile(context.Background(), ev2).Added)
}

func TestReconcileSkipsInListingDuplicatesAndTruncationCollisions(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	prefix := strings.Repeat("Ż", store.MaxCompanyName)
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(4, (*tradefair.CachedPage)(nil))
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, mock.Anything).
		Return(exhibitors(prefix+" Polska", prefix+" Niemcy", "Acme Corp", " Acme Corp "))

	repo := memory.NewStore()
	res := newTestReconciler(t, site, repo).Reconcile(context.Background(), ev)
	assert.Equal(t, 2, res.Added)
	assert.Zero(t, res.InsertErrors)
}

func TestReconcileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(2, (*tradefair.CachedPage)(nil))
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, mock.Anything).Return([]tradefair.Exhibitor{
		{Name: "Acme Corp", Country: "Niemcy"},
		{Name: "Beta SA"},
	})

	repo := &faultyRepo{Store: memory.NewStore(), failDataSource: true, failCountry: true}
	r := newTestReconciler(t, site, repo)
	assert.Equal(t, int64(99), r.BeginRun(context.Background()))

	res := r.Reconcile(context.Background(), ev)
	assert.Equal(t, 2, res.Added)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, int64(99), events[0].DataSourceID)
	for _, c := range repo.Companies(events[0].ID) {
		assert.Equal(t, int64(1), c.CountryID)
		assert.Equal(t, int64(1), c.IndustryID)
		assert.Equal(t, testNow, c.AddedAt)
	}
}

func TestReconcileCachesCountries(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(2, (*tradefair.CachedPage)(nil))
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, mock.Anything).Return([]tradefair.Exhibitor{
		{Name: "Acme Corp", Country: "Niemcy"},
		{Name: "Beta SA", Country: "Niemcy"},
	})

	repo := memory.NewStore()
	r := newTestReconciler(t, site, repo)
	require.Equal(t, 2, r.Reconcile(context.Background(), ev).Added)

	companies := repo.Companies(repo.Events()[0].ID)
	require.Len(t, companies, 2)
	assert.Equal(t, companies[0].CountryID, companies[1].CountryID)
	assert.NotEqual(t, int64(1), companies[0].CountryID)
}

func TestReconcileFailsWhenEventCannotBeStored(t *testing.T) {
	t.Parallel()

	site := &mockSite{}
	repo := &faultyRepo{Store: memory.NewStore(), failEvent: true}

	res := newTestReconciler(t, site, repo).Reconcile(context.Background(), testEvent("Agrotech"))
	assert.Equal(t, Failed, res.Outcome)
	require.Error(t, res.Err)
	site.AssertNotCalled(t, "ProbeCount", mock.Anything, mock.Anything)
}

func TestReconcileCountsInsertErrors(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(3, (*tradefair.CachedPage)(nil))
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, mock.Anything).
		Return(exhibitors("Acme Corp", "Broken Co", "Gamma"))

	repo := &faultyRepo{Store: memory.NewStore(), failInsert: "Broken Co"}
	res := newTestReconciler(t, site, repo).Reconcile(context.Background(), ev)
	assert.Equal(t, Processed, res.Outcome)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.InsertErrors)
}

type stubDetails map[string]string

func (s stubDetails) FetchText(_ context.Context, rawURL string) (string, error) {
	page, ok := s[rawURL]
	if !ok {
		return "", errors.New("status 404")
	}
	return page, nil
}

func TestReconcileEnrichesFromDetailPages(t *testing.T) {
	t.Parallel()

	ev := testEvent("Agrotech")
	detailsURL := "https://www.targikielce.pl/wystawca/acme"
	site := &mockSite{}
	site.On("ProbeCount", mock.Anything, ev.ExhibitorsURL).Return(2, (*tradefair.CachedPage)(nil))
	site.On("ListExhibitors", mock.Anything, ev.ExhibitorsURL, mock.Anything).Return([]tradefair.Exhibitor{
		{Name: "Acme Corp", DetailsURL: detailsURL},
		{Name: "Beta SA", DetailsURL: "https://www.targikielce.pl/wystawca/beta"},
	})

	registry, err := parser.NewRegistry(parser.TargiKielceName, nil, nil)
	require.NoError(t, err)
	details := stubDetails{detailsURL: `<h1>Acme Corp</h1><div class="adres">Kielce</div><p>biuro@acme.pl</p>`}

	repo := memory.NewStore()
	res := newTestReconciler(t, site, repo, WithDetails(details, registry)).Reconcile(context.Background(), ev)
	require.Equal(t, 2, res.Added)

	byName := map[string]store.Company{}
	for _, c := range repo.Companies(repo.Events()[0].ID) {
		byName[c.Name] = c
	}
	assert.Equal(t, "Kielce", byName["Acme Corp"].Address)
	assert.Equal(t, "biuro@acme.pl", byName["Acme Corp"].Email)
	assert.Equal(t, detailsURL, byName["Acme Corp"].WWW)
	assert.Equal(t, detailsURL, byName["Acme Corp"].CompanyEventLink)
	assert.Empty(t, byName["Beta SA"].Email)
}
