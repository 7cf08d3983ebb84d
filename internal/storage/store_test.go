package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetVendor(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "447700900001", got.PhoneNumber)
}

func TestResolveVendor_CreatesOnceAndDoesNotUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.ResolveVendor(ctx, "447700900001", "Alice", "447700900001@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 0, first.TotalListings)
	assert.Nil(t, first.LastMessageAt)
	assert.False(t, first.IsBlocked)

	second, err := store.ResolveVendor(ctx, "447700900001", "Alice Renamed", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice", second.DisplayName)
}

func TestTouchVendor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchVendor(ctx, v.ID, at))
	require.NoError(t, store.TouchVendor(ctx, v.ID, at.Add(time.Minute)))

	got, err := store.GetVendor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalListings)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(at.Add(time.Minute)))

	assert.Error(t, store.TouchVendor(ctx, "missing", at))
}

func TestGetVendor_NotFound(t *testing.T) {
	store := newTestStore(t)
	v, err := store.GetVendor(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestBuffers_OpenSlotIsUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)

	ts := time.Now()
	b, err := store.CreateImageBuffer(ctx, v.ID, "group-1", []string{"img1"}, "m1", ts)
	require.NoError(t, err)
	assert.Equal(t, BufferOpen, b.State())
	assert.Equal(t, KindImage, b.Kind)

	_, err = store.CreateImageBuffer(ctx, v.ID, "group-1", []string{"img2"}, "m2", ts)
	assert.ErrorIs(t, err, ErrOpenBufferExists)

	// A different group has its own slot
	_, err = store.CreateImageBuffer(ctx, v.ID, "group-2", []string{"img3"}, "m3", ts)
	assert.NoError(t, err)
}

func TestBuffers_AppendAndSeal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := store.CreateImageBuffer(ctx, v.ID, "g", []string{"image1"}, "m1", t0)
	require.NoError(t, err)
	require.NoError(t, store.AppendImage(ctx, b.ID, "image2"))

	open, err := store.OpenBufferFor(ctx, v.ID, "g")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, []string{"image1", "image2"}, open.ImageURLs)
	assert.True(t, open.ShouldCombine)
	assert.False(t, open.IsProcessed)

	sealed, err := store.SealWithText(ctx, b.ID, "Nike Air Max, size 9, £80", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, sealed)
	assert.Equal(t, BufferSealed, sealed.State())
	assert.Equal(t, KindMixed, sealed.Kind)
	assert.Equal(t, "Nike Air Max, size 9, £80", sealed.Description)
	assert.Equal(t, []string{"image1", "image2"}, sealed.ImageURLs)
	assert.True(t, sealed.SourceTimestamp.Equal(t0.Add(time.Minute)))

	// Sealing is one-shot and frees the open slot
	again, err := store.SealWithText(ctx, b.ID, "other", t0)
	assert.NoError(t, err)
	assert.Nil(t, again)

	open, err = store.OpenBufferFor(ctx, v.ID, "g")
	require.NoError(t, err)
	assert.Nil(t, open)

	assert.ErrorIs(t, store.AppendImage(ctx, b.ID, "image3"), ErrBufferNotOpen)

	require.NoError(t, store.DeleteBuffer(ctx, b.ID))
	gone, err := store.GetBuffer(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPurgeStaleBuffers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sealedBuf, err := store.CreateImageBuffer(ctx, v.ID, "g1", []string{"a"}, "m1", t0)
	require.NoError(t, err)
	_, err = store.SealWithText(ctx, sealedBuf.ID, "text", t0)
	require.NoError(t, err)

	// Old but still open: purge must not touch it
	openBuf, err := store.CreateImageBuffer(ctx, v.ID, "g2", []string{"b"}, "m2", t0.Add(-time.Hour))
	require.NoError(t, err)

	n, err := store.PurgeStaleBuffers(ctx, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.PurgeStaleBuffers(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetBuffer(ctx, sealedBuf.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetBuffer(ctx, openBuf.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func newTestListing(vendorID, description string) *Listing {
	return &Listing{
		VendorID:    vendorID,
		GroupID:     "g",
		GroupName:   "Sneaker Trades",
		Description: description,
		ImageURLs:   []string{"https://example.com/a.png"},
		Price:       80,
		Currency:    "GBP",
		Brand:       "Nike",
		ProductType: "sneakers",
		Gender:      GenderUnisex,
		Size:        "9",
		Condition:   ConditionNew,
		IsWTS:       true,
	}
}

func TestCreateListing_DuplicateGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)
	bob, err := store.ResolveVendor(ctx, "447700900002", "Bob", "")
	require.NoError(t, err)

	created, err := store.CreateListing(ctx, newTestListing(alice.ID, "Nike Air Max, size 9, £80"))
	require.NoError(t, err)
	assert.True(t, created)

	exists, err := store.DescriptionExists(ctx, alice.ID, "  Nike Air Max, size 9, £80 \n")
	require.NoError(t, err)
	assert.True(t, exists)

	created, err = store.CreateListing(ctx, newTestListing(alice.ID, " Nike  Air Max, size 9, £80"))
	require.NoError(t, err)
	assert.False(t, created)

	// Another vendor may post the same text
	created, err = store.CreateListing(ctx, newTestListing(bob.ID, "Nike Air Max, size 9, £80"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreateListing_RejectsAmbiguousIntent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)

	l := newTestListing(v.ID, "both")
	l.IsWTB = true
	l.IsWTS = true
	_, err = store.CreateListing(ctx, l)
	assert.Error(t, err)
}

func TestGetListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v, err := store.ResolveVendor(ctx, "447700900001", "Alice", "")
	require.NoError(t, err)

	l := newTestListing(v.ID, "Jordan 4 size 10")
	l.RawMessage = []byte(`{"id":"m1"}`)
	_, err = store.CreateListing(ctx, l)
	require.NoError(t, err)

	got, err := store.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jordan 4 size 10", got.Description)
	assert.Equal(t, []string{"https://example.com/a.png"}, got.ImageURLs)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "Alice", got.VendorName)
	assert.JSONEq(t, `{"id":"m1"}`, string(got.RawMessage))

	missing, err := store.GetListing(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSearchListings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return clock })

	alice, err := store.ResolveVendor(ctx, "447700900001", "Alice Kicks", "")
	require.NoError(t, err)

	for i, desc := range []string{"Nike Air Max 90", "Adidas Samba", "Nike Dunk Low", "Stone Island jacket"} {
		clock = clock.Add(time.Duration(i+1) * time.Minute)
		l := newTestListing(alice.ID, desc)
		l.Brand = ""
		_, err := store.CreateListing(ctx, l)
		require.NoError(t, err)
	}

	res, err := store.SearchListings(ctx, SearchQuery{Term: "nike"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultSearchLimit, res.Limit)
	require.Len(t, res.Listings, 2)
	assert.Equal(t, "Nike Dunk Low", res.Listings[0].Description)
	assert.Equal(t, "Nike Air Max 90", res.Listings[1].Description)

	// Vendor display name is searchable
	res, err = store.SearchListings(ctx, SearchQuery{Term: "kicks"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)

	res, err = store.SearchListings(ctx, SearchQuery{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "Nike Air Max 90", res.Listings[0].Description)

	// LIKE wildcards in the term are literal
	res, err = store.SearchListings(ctx, SearchQuery{Term: "%"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = store.SearchListings(ctx, SearchQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxSearchLimit, res.Limit)
}

func TestVisionCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry, err := store.GetVisionCache(ctx, "hash")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, store.SetVisionCache(ctx, "hash", &VisionCacheEntry{Brand: "Nike", ProductType: "sneakers"}))
	require.NoError(t, store.SetVisionCache(ctx, "hash", &VisionCacheEntry{Brand: "Adidas", ProductType: "sneakers"}))

	entry, err = store.GetVisionCache(ctx, "hash")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Adidas", entry.Brand)
}

func TestNormalizeDescription(t *testing.T) {
	assert.Equal(t, "nike air max, size 9", NormalizeDescription("  Nike   Air Max,\nsize 9 "))
	assert.Equal(t, "", NormalizeDescription("   "))
}
