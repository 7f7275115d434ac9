package site

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/web/websocket"
)

func TestAdminRedirectsAnonymousVisitors(t *testing.T) {
	h := newHarness(t)
	b := h.browser(t)

	rec := b.get("/admin/cars?page=2")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login?next=%2Fadmin%2Fcars%3Fpage%3D2", rec.Header().Get("Location"))

	rec = b.get("/admin/login?next=%2Fadmin%2Fcars")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="next" value="/admin/cars"`)

	rec = b.post("/admin/login", url.Values{"email": {adminEmail}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect email or password")
	assert.Contains(t, rec.Body.String(), `value="`+adminEmail+`"`)
}

func TestAdminLoginRejectsForeignRedirects(t *testing.T) {
	for _, next := range []string{"https://evil.test/", "//evil.test", "/cars", "/adminfoo", "/admin.evil.test", "/admin/login"} {
		assert.Equal(t, "/admin", safeNext(next), next)
	}
	assert.Equal(t, "/admin/cars?page=2", safeNext("/admin/cars?page=2"))
	assert.Equal(t, "/admin", safeNext("/admin"))
}

func TestAdminForbidsNonAdmins(t *testing.T) {
	h := newHarness(t)
	_, err := h.inv.CreateUser(context.Background(), "buyer@example.com", "Buyer", "buyer-password-1")
	require.NoError(t, err)
	b := h.browser(t)

	rec := b.login("buyer@example.com", "buyer-password-1")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = b.get("/admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not have access")
}

func TestAdminCarLifecycle(t *testing.T) {
	h := newHarness(t)
	b := h.browser(t)

	rec := b.login(adminEmail, adminPassword)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	rec = b.get("/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-feed="/admin/feed"`)

	b.get("/admin/cars/new")
	rec = b.post("/admin/cars", url.Values{"make": {"Volvo"}, "model": {"V70"}, "year": {"twenty"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be a whole number")
	assert.Contains(t, rec.Body.String(), `value="V70"`)

	rec = b.post("/admin/cars", url.Values{
		"make": {"Volvo"}, "model": {"V70"}, "year": {"2015"}, "price": {"12,900"},
		"mileage": {"180 000"}, "body_type": {"wagon"}, "status": {"available"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	edit := rec.Header().Get("Location")
	require.Regexp(t, `^/admin/cars/[0-9a-f-]{36}/edit$`, edit)
	carID := strings.TrimSuffix(strings.TrimPrefix(edit, "/admin/cars/"), "/edit")

	rec = b.get(edit)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2015 Volvo V70 was added")

	car, err := h.inv.GetCar(context.Background(), mustUUID(t, carID))
	require.NoError(t, err)
	assert.Equal(t, int64(12900), car.Price)
	assert.Equal(t, 180000, car.Mileage)

	rec = b.upload("/admin/cars/"+carID+"/images", "image", "side.png", pngBytes(t))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = b.get(edit)
	assert.Contains(t, rec.Body.String(), "Photo uploaded.")
	media := regexp.MustCompile(`src="(/media/cars/[^"]+)"`).FindStringSubmatch(rec.Body.String())
	require.NotNil(t, media)
	assert.Equal(t, http.StatusOK, b.get(media[1]).Code)

	rec = b.upload("/admin/cars/"+carID+"/images", "image", "notes.txt", []byte("plain text"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = b.get(edit)
	assert.Contains(t, rec.Body.String(), "flash-error")

	update := url.Values{
		"make": {"Volvo"}, "model": {"V70"}, "year": {"2015"}, "price": {"11900"},
		"mileage": {"180000"}, "body_type": {"wagon"}, "status": {"reserved"},
	}
	rec = b.post("/admin/cars/"+carID, update)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = b.get(edit)
	assert.Contains(t, rec.Body.String(), "was saved")

	rec = b.post("/admin/cars/"+carID, update)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = b.get(edit)
	assert.Contains(t, rec.Body.String(), "Nothing to save")

	rec = b.get("/admin/activity")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2015 Volvo V70")

	rec = b.post("/admin/cars/"+carID+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/cars", rec.Header().Get("Location"))
	assert.Equal(t, http.StatusNotFound, b.get(edit).Code)
	assert.Equal(t, http.StatusNotFound, b.get(media[1]).Code)
}

func TestAdminRejectsMissingCSRFToken(t *testing.T) {
	h := newHarness(t)
	b := h.browser(t)
	b.login(adminEmail, adminPassword)

	rec := b.post("/admin/cars", url.Values{"csrf_token": {"stale"}, "make": {"Volvo"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminSettingsAndInquiries(t *testing.T) {
	h := newHarness(t)
	b := h.browser(t)
	b.login(adminEmail, adminPassword)

	b.get("/admin/settings")
	rec := b.post("/admin/settings", url.Values{"dealership_name": {""}, "currency": {"EUR"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = b.post("/admin/settings", url.Values{"dealership_name": {"Nordic Cars"}, "currency": {"eur"}, "phone": {"+46 8 123 456"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = b.get("/")
	assert.Contains(t, rec.Body.String(), "Nordic Cars")

	inquiry, err := h.inv.SubmitInquiry(context.Background(), domain.InquiryInput{
		Name: "Ana", Email: "ana@example.com", Message: "Do you take trade-ins?",
	})
	require.NoError(t, err)

	rec = b.get("/admin/inquiries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Do you take trade-ins?")

	rec = b.post("/admin/inquiries/"+inquiry.ID.String()+"/handled", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	open, err := h.inv.ListInquiries(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAdminLogout(t *testing.T) {
	h := newHarness(t)
	b := h.browser(t)
	b.login(adminEmail, adminPassword)

	b.get("/admin")
	rec := b.post("/admin/logout", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, http.StatusSeeOther, b.get("/admin").Code)
}

func TestAdminLiveFeed(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.hub.Run(ctx)
	go h.hub.Relay(ctx, h.broker)
	require.Eventually(t, func() bool { return h.broker.Subscribers() > 0 }, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.Get(srv.URL + "/admin/login")
	require.NoError(t, err)
	token := scrapeCSRF(t, resp)
	resp, err = client.PostForm(srv.URL+"/admin/login", url.Values{
		"csrf_token": {token}, "email": {adminEmail}, "password": {adminPassword},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// anonymous upgrades are refused outright
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/feed"
	_, resp, err = gorilla.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	base, _ := url.Parse(srv.URL)
	header := http.Header{}
	for _, c := range jar.Cookies(base) {
		header.Add("Cookie", c.String())
	}
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	first := readMessage(t, conn)
	assert.Equal(t, websocket.TypeSnapshot, first.Type)

	_, err = h.inv.CreateCar(context.Background(), adminEmail, domain.CarInput{Make: "Tesla", Model: "Model 3", Year: 2022})
	require.NoError(t, err)

	seen := map[string]json.RawMessage{}
	for len(seen) < 2 {
		msg := readMessage(t, conn)
		if msg.Type == websocket.TypeActivity || msg.Type == websocket.TypeStats {
			seen[msg.Type] = msg.Data
		}
	}
	assert.Contains(t, string(seen[websocket.TypeActivity]), "Tesla Model 3")
	assert.Contains(t, string(seen[websocket.TypeStats]), `"total_cars":1`)
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *gorilla.Conn) wireMessage {
	t.Helper()
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func scrapeCSRF(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body strings.Builder
	_, err := io.Copy(&body, resp.Body)
	require.NoError(t, err)
	m := csrfField.FindStringSubmatch(body.String())
	require.NotNil(t, m, "no csrf token in page")
	return m[1]
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func TestAdminProfilingIsGated(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.Profiling = true })
	t.Cleanup(func() {
		runtime.SetBlockProfileRate(0)
		runtime.SetMutexProfileFraction(0)
	})
	b := h.browser(t)

	assert.Equal(t, http.StatusSeeOther, b.get("/admin/debug/stats").Code)

	b.login(adminEmail, adminPassword)
	rec := b.get("/admin/debug/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"goroutines"`)

	off := newHarness(t)
	ob := off.browser(t)
	ob.login(adminEmail, adminPassword)
	assert.Equal(t, http.StatusNotFound, ob.get("/admin/debug/stats").Code)
}
