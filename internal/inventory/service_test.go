package inventory

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/feed"
	"github.com/showroom-auto/showroom/internal/store"
	"github.com/showroom-auto/showroom/internal/web/cache"
)

const actor = "admin@example.com"

type harness struct {
	svc    *Service
	store  *store.Store
	blobs  *hookedBlobs
	events <-chan feed.Event
}

// hookedBlobs lets a test act between the blob write and the database write
type hookedBlobs struct {
	*blob.LocalStore
	afterPut func()
}

func (h *hookedBlobs) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	n, err := h.LocalStore.Put(ctx, key, r, contentType)
	if err == nil && h.afterPut != nil {
		h.afterPut()
	}
	return n, err
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "inventory.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.Migrate(ctx)
	require.NoError(t, err)

	local, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	blobs := &hookedBlobs{LocalStore: local}

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { mem.Close() })

	broker := feed.NewLocalBroker(128, nil)
	t.Cleanup(func() { broker.Close() })
	subCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	events, err := broker.Subscribe(subCtx)
	require.NoError(t, err)

	return &harness{
		svc:    New(st, blobs, mem, broker, DefaultConfig(), nil),
		store:  st,
		blobs:  blobs,
		events: events,
	}
}

// drain returns the kinds of all events published so far
func (h *harness) drain() []string {
	var kinds []string
	for {
		select {
		case e := <-h.events:
			kinds = append(kinds, e.Kind)
		case <-time.After(50 * time.Millisecond):
			return kinds
		}
	}
}

func corolla() domain.CarInput {
	return domain.CarInput{
		Make:         "Toyota",
		Model:        "Corolla",
		Year:         2021,
		Price:        18500,
		Mileage:      32000,
		BodyType:     "sedan",
		FuelType:     "hybrid",
		Transmission: "automatic",
		Color:        "Silver",
		Description:  "<p>One owner</p>",
	}
}

func pngUpload(t *testing.T) *blob.Upload {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	up, err := blob.NewUploader(blob.DefaultUploadConfig()).FromBytes("photo.png", buf.Bytes())
	require.NoError(t, err)
	return up
}

func activityActions(t *testing.T, h *harness) []string {
	t.Helper()
	recent, err := h.store.RecentActivities(context.Background(), 50)
	require.NoError(t, err)
	actions := make([]string, 0, len(recent))
	for _, a := range recent {
		actions = append(actions, a.Action)
	}
	return actions
}

func TestCreateCarValidatesAndSanitizes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateCar(ctx, actor, domain.CarInput{Year: 1800})
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, ve.First("make"))
	assert.NotEmpty(t, ve.First("year"))
	assert.Empty(t, activityActions(t, h))

	in := corolla()
	in.Description = `<p onclick="x()">Clean <script>alert(1)</script><b>history</b></p>`
	car, err := h.svc.CreateCar(ctx, actor, in)
	require.NoError(t, err)
	assert.Equal(t, `<p>Clean <b>history</b></p>`, car.Description)
	assert.Equal(t, actor, car.CreatedBy)
	assert.Equal(t, domain.StatusAvailable, car.Status)

	assert.Equal(t, []string{domain.ActionCarCreated}, activityActions(t, h))
	assert.Equal(t, []string{feed.KindActivity, feed.KindCarChanged, feed.KindStats}, h.drain())
}

func TestUpdateCarRecordsChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	car, err := h.svc.CreateCar(ctx, actor, corolla())
	require.NoError(t, err)
	h.drain()

	_, changed, err := h.svc.UpdateCar(ctx, actor, car.ID, corolla())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, h.drain())

	in := corolla()
	in.Status = domain.StatusReserved
	updated, changed, err := h.svc.UpdateCar(ctx, actor, car.ID, in)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusReserved, updated.Status)

	in.Price = 17900
	in.Description = "<p>One owner, full service history</p>"
	_, changed, err = h.svc.UpdateCar(ctx, actor, car.ID, in)
	require.NoError(t, err)
	assert.True(t, changed)

	recent, err := h.store.RecentActivities(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, domain.ActionCarUpdated, recent[0].Action)
	changes, ok := recent[0].Details["changes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, changes, "price")
	patch, ok := changes["description"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(patch, "@@"), patch)

	assert.Equal(t, domain.ActionCarStatusChanged, recent[1].Action)
	assert.Equal(t, "reserved", recent[1].Details["to"])

	_, _, err = h.svc.UpdateCar(ctx, actor, uuid.New(), corolla())
	assert.True(t, IsNotFound(err))
}

func TestListingCacheInvalidatedByMutations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := ListQuery{Sort: domain.SortNewest, Limit: 10}

	page, err := h.svc.ListCars(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	// Written behind the service's back, so the cached page stays stale
	require.NoError(t, h.store.CreateCar(ctx, &domain.Car{Make: "Ford", Model: "Focus", Year: 2019, Status: domain.StatusAvailable}))
	page, err = h.svc.ListCars(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = h.svc.CreateCar(ctx, actor, corolla())
	require.NoError(t, err)
	page, err = h.svc.ListCars(ctx, q)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	makes, err := h.svc.Makes(ctx, domain.PublicStatuses)
	require.NoError(t, err)
	assert.Len(t, makes, 2)
}

func TestImagesLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	car, err := h.svc.CreateCar(ctx, actor, corolla())
	require.NoError(t, err)

	first, err := h.svc.AttachImage(ctx, actor, car.ID, pngUpload(t))
	require.NoError(t, err)
	second, err := h.svc.AttachImage(ctx, actor, car.ID, pngUpload(t))
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, "image/png", first.ContentType)

	rc, info, err := h.svc.OpenImage(ctx, first.Key)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, first.Size, info.Size)

	require.NoError(t, h.svc.RemoveImage(ctx, actor, car.ID, first.ID))
	_, _, err = h.svc.OpenImage(ctx, first.Key)
	assert.True(t, IsNotFound(err))

	got, err := h.svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 1)
	assert.Equal(t, 0, got.Images[0].Position)

	require.NoError(t, h.svc.DeleteCar(ctx, actor, car.ID))
	objects, err := h.blobs.List(ctx, blob.CarsPrefix)
	require.NoError(t, err)
	assert.Empty(t, objects)

	_, err = h.svc.GetCar(ctx, car.ID)
	assert.True(t, IsNotFound(err))

	_, err = h.svc.AttachImage(ctx, actor, car.ID, pngUpload(t))
	assert.True(t, IsNotFound(err))
}

func TestAttachImageDeletesBlobWhenRowFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	car, err := h.svc.CreateCar(ctx, actor, corolla())
	require.NoError(t, err)

	h.blobs.afterPut = func() {
		require.NoError(t, h.store.DeleteCar(ctx, car.ID))
	}
	_, err = h.svc.AttachImage(ctx, actor, car.ID, pngUpload(t))
	require.Error(t, err)

	objects, err := h.blobs.List(ctx, blob.CarsPrefix)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestSweepOrphans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	car, err := h.svc.CreateCar(ctx, actor, corolla())
	require.NoError(t, err)
	kept, err := h.svc.AttachImage(ctx, actor, car.ID, pngUpload(t))
	require.NoError(t, err)

	orphan := blob.ImageKey(car.ID, uuid.New(), ".png")
	_, err = h.blobs.Put(ctx, orphan, strings.NewReader("x"), "image/png")
	require.NoError(t, err)

	removed, err := h.svc.SweepOrphans(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed, "orphans inside the grace period are kept")

	h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = h.svc.SweepOrphans(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	objects, err := h.blobs.List(ctx, blob.CarsPrefix)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, kept.Key, objects[0].Key)
}

func TestInquiriesAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	car, err := h.svc.CreateCar(ctx, actor, corolla())
	require.NoError(t, err)
	sold := corolla()
	sold.Status = domain.StatusSold
	_, err = h.svc.CreateCar(ctx, actor, sold)
	require.NoError(t, err)

	missing := uuid.New()
	_, err = h.svc.SubmitInquiry(ctx, domain.InquiryInput{CarID: &missing, Name: "Ann", Email: "ann@example.com", Message: "Hi"})
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, ve.First("car_id"))

	inquiry, err := h.svc.SubmitInquiry(ctx, domain.InquiryInput{CarID: &car.ID, Name: "Ann", Email: "ANN@example.com", Message: "Is it still available?"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", inquiry.Email)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCars)
	assert.Equal(t, 1, stats.CarsByStatus[domain.StatusSold])
	assert.Equal(t, int64(18500), stats.InventoryValue)
	assert.Equal(t, 1, stats.OpenInquiries)
	assert.Equal(t, 3, stats.ActivitiesToday)

	require.NoError(t, h.svc.MarkInquiryHandled(ctx, actor, inquiry.ID))
	open, err := h.svc.ListInquiries(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)

	snap, err := h.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Stats.OpenInquiries)
	require.Len(t, snap.Activities, 4)
	assert.Equal(t, domain.ActionInquiryHandled, snap.Activities[0].Action)
}

func TestSettingsCachedUntilUpdated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	settings, err := h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings().DealershipName, settings.DealershipName)

	settings.DealershipName = ""
	_, err = h.svc.UpdateSettings(ctx, actor, settings)
	_, ok := IsValidation(err)
	assert.True(t, ok)

	settings.DealershipName = "Harbour Cars"
	settings.Currency = "eur"
	saved, err := h.svc.UpdateSettings(ctx, actor, settings)
	require.NoError(t, err)
	assert.Equal(t, "EUR", saved.Currency)

	got, err := h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Harbour Cars", got.DealershipName)
	assert.Contains(t, activityActions(t, h), domain.ActionSettingsUpdated)
}

func TestRecordAndPrune(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old := domain.NewActivity(domain.ActionUserSignedIn, domain.SubjectUser, "u1", actor, "signed in")
	old.CreatedAt = time.Now().Add(-400 * 24 * time.Hour)
	require.NoError(t, h.svc.Record(ctx, old))
	require.NoError(t, h.svc.Record(ctx, domain.NewActivity(domain.ActionUserSignedIn, domain.SubjectUser, "u1", actor, "signed in")))
	assert.Equal(t, []string{feed.KindActivity, feed.KindActivity}, h.drain())

	n, err := h.svc.PruneActivities(ctx, 180*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err := h.svc.Activities(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateUser(ctx, "not-an-email", "", "short")
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, ve.First("email"))
	assert.NotEmpty(t, ve.First("password"))

	user, err := h.svc.CreateUser(ctx, " Sam@Example.com ", "Sam", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", user.Email)

	_, err = h.svc.CreateUser(ctx, "sam@example.com", "", "correct horse battery")
	ve, ok = IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "is already registered", ve.First("email"))

	users, err := h.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
