package apirouter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/apirouter"
	"github.com/heraldhq/herald/internal/models"
	"github.com/heraldhq/herald/internal/userstore"
	"github.com/heraldhq/herald/internal/util/testutil"
	"github.com/heraldhq/herald/internal/worker"
)

type fakeUserStore struct {
	users map[string]*models.User
}

var _ userstore.Store = (*fakeUserStore)(nil)

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*models.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, user *models.User) error {
	for _, u := range s.users {
		if u.Email == user.Email {
			return userstore.ErrEmailTaken
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) Update(_ context.Context, user *models.User) (bool, error) {
	if _, ok := s.users[user.ID]; !ok {
		return false, nil
	}
	for id, u := range s.users {
		if id != user.ID && u.Email == user.Email {
			return false, userstore.ErrEmailTaken
		}
	}
	s.users[user.ID] = user
	return true, nil
}

func (s *fakeUserStore) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *fakeUserStore) List(_ context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *fakeUserStore) ListActive(_ context.Context) ([]*models.User, error) {
	var users []*models.User
	for _, u := range s.users {
		if u.IsActive {
			users = append(users, u)
		}
	}
	return users, nil
}

func validBody() map[string]any {
	return map[string]any{
		"first_name": "John",
		"last_name":  "Doe",
		"email":      "john.doe@example.com",
		"birthday":   "1990-05-15",
		"timezone":   "America/New_York",
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	return user
}

func TestUserAPI(t *testing.T) {
	t.Parallel()

	t.Run("create", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		rec := doRequest(t, handler, http.MethodPost, "/users", validBody())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		user := decodeUser(t, rec)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "john.doe@example.com", user.Email)
		assert.True(t, user.IsActive)
	})

	t.Run("create validation failures", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		tests := []struct {
			name   string
			mutate func(map[string]any)
		}{
			{"bad email", func(b map[string]any) { b["email"] = "not-an-email" }},
			{"bad birthday format", func(b map[string]any) { b["birthday"] = "15/05/1990" }},
			{"impossible birthday", func(b map[string]any) { b["birthday"] = "1990-02-30" }},
			{"unknown timezone", func(b map[string]any) { b["timezone"] = "Not/AZone" }},
			{"missing first name", func(b map[string]any) { delete(b, "first_name") }},
			{"bad anniversary", func(b map[string]any) { b["anniversary"] = "soon" }},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				body := validBody()
				tc.mutate(body)
				rec := doRequest(t, handler, http.MethodPost, "/users", body)
				assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			})
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		rec := doRequest(t, handler, http.MethodPost, "/users", validBody())
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doRequest(t, handler, http.MethodPost, "/users", validBody())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("get and list", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		created := decodeUser(t, doRequest(t, handler, http.MethodPost, "/users", validBody()))

		rec := doRequest(t, handler, http.MethodGet, "/users/"+created.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, created.ID, decodeUser(t, rec).ID)

		rec = doRequest(t, handler, http.MethodGet, "/users/usr_missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = doRequest(t, handler, http.MethodGet, "/users", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var users []models.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.Len(t, users, 1)
	})

	t.Run("update", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		created := decodeUser(t, doRequest(t, handler, http.MethodPost, "/users", validBody()))

		body := validBody()
		body["first_name"] = "Jane"
		body["anniversary"] = "2015-08-01"
		rec := doRequest(t, handler, http.MethodPut, "/users/"+created.ID, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		updated := decodeUser(t, rec)
		assert.Equal(t, "Jane", updated.FirstName)
		require.NotNil(t, updated.Anniversary)
		assert.Equal(t, "2015-08-01", *updated.Anniversary)

		rec = doRequest(t, handler, http.MethodPut, "/users/usr_missing", validBody())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		created := decodeUser(t, doRequest(t, handler, http.MethodPost, "/users", validBody()))

		rec := doRequest(t, handler, http.MethodDelete, "/users/"+created.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, handler, http.MethodDelete, "/users/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	t.Run("without tracker", func(t *testing.T) {
		t.Parallel()
		handler := apirouter.New(newFakeUserStore(), nil, testutil.CreateTestLogger(t))

		rec := doRequest(t, handler, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reports worker failure", func(t *testing.T) {
		t.Parallel()
		tracker := worker.NewHealthTracker()
		handler := apirouter.New(newFakeUserStore(), tracker, testutil.CreateTestLogger(t))

		tracker.MarkHealthy("process-scheduler")
		rec := doRequest(t, handler, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		tracker.MarkFailed("process-scheduler")
		rec = doRequest(t, handler, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, worker.StatusFailed, status["status"])
	})
}
