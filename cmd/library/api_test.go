// cmd/library/api_test.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/httpapi"
	"librarium/internal/notification"
)

type testServer struct {
	*httptest.Server
	staff uuid.UUID
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("STORAGE", "memory")
	t.Setenv("APP_MODE", "test")
	t.Setenv("REGISTRATIONS_PER_MINUTE", "0")

	a, err := newApp("")
	require.NoError(t, err)
	require.NoError(t, a.open(context.Background()))
	t.Cleanup(a.close)

	srv := httptest.NewServer(a.router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, staff: uuid.New()}
}

// do sends body as JSON on behalf of userID and decodes the envelope data
// into out when it is non-nil.
func (ts *testServer) do(t *testing.T, method, path string, userID uuid.UUID, staff bool, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+"/api/v1"+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set(httpapi.HeaderUserID, userID.String())
	}
	if staff {
		req.Header.Set(httpapi.HeaderUserRole, httpapi.RoleStaff)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode
}

func (ts *testServer) addBook(t *testing.T, title string, copies int) *catalog.Book {
	t.Helper()
	var b catalog.Book
	code := ts.do(t, http.MethodPost, "/books", ts.staff, true, map[string]any{
		"title": title, "author": "Jane Austen", "category": "Fiction",
		"published_year": 1813, "total_copies": copies,
	}, &b)
	require.Equal(t, http.StatusCreated, code)
	return &b
}

func (ts *testServer) register(t *testing.T, i int) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	code := ts.do(t, http.MethodPost, "/members", userID, false, map[string]string{
		"email": fmt.Sprintf("member%d@example.com", i), "name": fmt.Sprintf("Member %d", i),
	}, nil)
	require.Equal(t, http.StatusCreated, code)
	return userID
}

func (ts *testServer) book(t *testing.T, id uuid.UUID) *catalog.Book {
	t.Helper()
	var b catalog.Book
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/books/"+id.String(), uuid.Nil, false, nil, &b))
	return &b
}

func TestBorrowReturnAndReservationFlow(t *testing.T) {
	ts := setupTestServer(t)
	b := ts.addBook(t, "Pride and Prejudice", 1)
	reader := ts.register(t, 1)
	waiting := ts.register(t, 2)

	var record circulation.BorrowRecord
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/books/"+b.ID.String()+"/borrow", reader, false, nil, &record))
	assert.Equal(t, 0, ts.book(t, b.ID).CopiesAvailable)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/books/"+b.ID.String()+"/reserve", waiting, false, nil, nil))
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/books/"+b.ID.String()+"/borrow", waiting, false, nil, nil))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/borrows/"+record.ID.String()+"/return", reader, false, nil, nil))
	assert.Equal(t, 1, ts.book(t, b.ID).CopiesAvailable)

	var notices []notification.Notification
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/me/notifications", waiting, false, nil, &notices))
	var available int
	for _, n := range notices {
		if n.Type == notification.TypeAvailable {
			available++
		}
	}
	assert.Equal(t, 1, available, "the first in the queue hears about the returned copy")

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/books/"+b.ID.String()+"/borrow", waiting, false, nil, nil))

	var reservations []circulation.Reservation
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/me/reservations", waiting, false, nil, &reservations))
	require.Len(t, reservations, 1)
	assert.Equal(t, circulation.ReservationFulfilled, reservations[0].Status)
}

func TestConcurrentBorrowPreventsDoubleLending(t *testing.T) {
	ts := setupTestServer(t)
	b := ts.addBook(t, "The Great Gatsby", 1)

	members := make([]uuid.UUID, 10)
	for i := range members {
		members[i] = ts.register(t, i)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, m := range members {
		wg.Add(1)
		go func(m uuid.UUID) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/books/"+b.ID.String()+"/borrow", nil)
			req.Header.Set(httpapi.HeaderUserID, m.String())
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusCreated {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(m)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "only one concurrent borrow may win the last copy")
	assert.Equal(t, 0, ts.book(t, b.ID).CopiesAvailable)
}

func TestAuditTrailIsStaffOnly(t *testing.T) {
	ts := setupTestServer(t)
	ts.addBook(t, "Emma", 2)
	reader := ts.register(t, 1)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/admin/audit", reader, false, nil, nil))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/admin/audit", ts.staff, true, nil, nil))
}

func TestStaffEditsAndDeletesBooks(t *testing.T) {
	ts := setupTestServer(t)
	b := ts.addBook(t, "Emma", 1)
	reader := ts.register(t, 1)
	path := "/books/" + b.ID.String()
	edit := map[string]any{
		"title": "Emma", "author": "Jane Austen", "category": "Romance", "published_year": 1815,
	}

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPut, path, reader, false, edit, nil))
	var updated catalog.Book
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, path, ts.staff, true, edit, &updated))
	assert.Equal(t, catalog.CategoryRomance, updated.Category)
	assert.Equal(t, 1815, updated.PublishedYear)

	var record circulation.BorrowRecord
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, path+"/borrow", reader, false, nil, &record))
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodDelete, path, ts.staff, true, nil, nil))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/borrows/"+record.ID.String()+"/return", reader, false, nil, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, path, ts.staff, true, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path, uuid.Nil, false, nil, nil))
}
