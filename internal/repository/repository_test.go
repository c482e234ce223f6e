package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmuni/internal/models"
	"mmuni/internal/remote"
)

type recorded struct {
	method string
	path   string
	query  map[string][]string
	body   map[string]any
}

func setupRemote(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*remote.Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.Query(), body})
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	return remote.New(srv.URL, "anon"), &calls
}

func TestObjectRepository_ListOrdering(t *testing.T) {
	client, calls := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	repo := NewObjectRepository(client)
	ctx := context.Background()

	typ := models.TypeEvent
	sphere := models.SphereSocial
	_, err := repo.List(ctx, "m1", &typ, &sphere)
	require.NoError(t, err)
	_, err = repo.News(ctx, "m1")
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	list := (*calls)[0]
	assert.Equal(t, "/rest/v1/obj", list.path)
	assert.Equal(t, []string{"eq.m1"}, list.query["obj_mun"])
	assert.Equal(t, []string{"eq.event"}, list.query["obj_type"])
	assert.Equal(t, []string{"eq.social"}, list.query["obj_sphere"])
	assert.Equal(t, []string{"obj_sort_order.asc,obj_date.desc"}, list.query["order"])

	news := (*calls)[1]
	assert.Equal(t, []string{"eq.news"}, news.query["obj_type"])
	assert.Equal(t, []string{"obj_date.desc"}, news.query["order"])
}

func TestObjectRepository_UpdateNeverMovesMunicipality(t *testing.T) {
	client, calls := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	repo := NewObjectRepository(client)

	obj := &models.ContentObject{ID: "o1", MunicipalityID: "m2", Type: models.TypeEvent, Sphere: models.SphereSocial, Title: "Fair"}
	require.NoError(t, repo.Update(context.Background(), obj))

	body := (*calls)[0].body
	assert.NotContains(t, body, "obj_mun")
	assert.NotContains(t, body, "obj_author")
	assert.Equal(t, "Fair", body["obj_title"])
}

func TestObjectRepository_SetReactionsWritesAllSets(t *testing.T) {
	client, calls := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	repo := NewObjectRepository(client)

	err := repo.SetReactions(context.Background(), "o1", models.Reactions{Likes: []string{"u1"}})
	require.NoError(t, err)

	call := (*calls)[0]
	assert.Equal(t, http.MethodPatch, call.method)
	assert.Equal(t, []string{"eq.o1"}, call.query["obj_id"])
	assert.Equal(t, []any{"u1"}, call.body["obj_likes"])
	assert.Equal(t, []any{}, call.body["obj_dislikes"])
	assert.Equal(t, []any{}, call.body["obj_reports"])
}

func TestCommentRepository_ListByObject(t *testing.T) {
	client, calls := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"comm_id":"c1","comm_obj":"o1","comm_author":"u1","comm_text":"hi","comm_date":"2024-05-01T10:00:00Z"}]`)
	})
	repo := NewCommentRepository(client)

	rows, err := repo.ListByObject(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0].Text)
	assert.Equal(t, []string{"comm_date.desc"}, (*calls)[0].query["order"])
}

func TestUserRepository_PatchOmitsNilFields(t *testing.T) {
	client, calls := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	repo := NewUserRepository(client)

	name := "Ann"
	require.NoError(t, repo.Update(context.Background(), "u1", UserPatch{Name: &name}))

	assert.Equal(t, map[string]any{"user_name": "Ann"}, (*calls)[0].body)
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	client, _ := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = io.WriteString(w, `{"code":"PGRST116","message":"no rows"}`)
	})
	repo := NewUserRepository(client)

	_, err := repo.GetByID(context.Background(), "u1")
	assert.True(t, models.IsNotFound(err))
}

func TestConfigRepository_Get(t *testing.T) {
	client, calls := setupRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"config_id":"1","config_key":"demo_mun","config_value":"m7"}`)
	})
	repo := NewConfigRepository(client)

	v, err := repo.Get(context.Background(), models.ConfigDemoMunicipality)
	require.NoError(t, err)
	assert.Equal(t, "m7", v)
	assert.Equal(t, []string{"eq.demo_mun"}, (*calls)[0].query["config_key"])
}
