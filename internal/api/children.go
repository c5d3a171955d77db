package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tramites/internal/collection"
)

// resource serves the CRUD routes of one child collection.
type resource[T collection.Entity[T]] struct {
	store *collection.Store[T]
	// ownerKey is the JSON field that links a record to its parent.
	ownerKey string
	// parentExists reports whether the owner in the URL exists.
	parentExists func(id string) bool
	// remove overrides plain removal, e.g. to cascade.
	remove func(r *http.Request, id string) (int, error)
	// filter narrows list results using query parameters. Optional. An error
	// means a malformed parameter.
	filter func(r *http.Request, items []T) ([]T, error)
}

// list handles GET /{parent}/{id}/{kind}.
func (res resource[T]) list(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "id")
	if !res.parentExists(owner) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	items := res.store.ByOwner(owner)
	if res.filter != nil {
		var err error
		if items, err = res.filter(r, items); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// create handles POST /{parent}/{id}/{kind}. The owner comes from the URL.
func (res resource[T]) create(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "id")
	if !res.parentExists(owner) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	raw, _ := json.Marshal(owner)
	patch[res.ownerKey] = raw

	rec, err := res.store.Create(r.Context(), patch)
	if err != nil {
		writeError(w, r, err, storedOrNil(rec, err))
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// get handles GET /{kind}/{id}.
func (res resource[T]) get(w http.ResponseWriter, r *http.Request) {
	rec, ok := res.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// update handles PATCH /{kind}/{id}.
func (res resource[T]) update(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	// Records never move to another owner.
	delete(patch, res.ownerKey)
	rec, err := res.store.Update(r.Context(), chi.URLParam(r, "id"), patch, changeMeta(r))
	if err != nil {
		writeError(w, r, err, storedOrNil(rec, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// delete handles DELETE /{kind}/{id}. Deleting a missing record removes nothing.
func (res resource[T]) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var n int
	var err error
	if res.remove != nil {
		n, err = res.remove(r, id)
	} else {
		n, err = res.store.Remove(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err, RemovedResponse{Removed: n})
		return
	}
	writeJSON(w, http.StatusOK, RemovedResponse{Removed: n})
}

// mount registers the item routes under prefix (e.g. "/fechas").
func (res resource[T]) mount(r chi.Router, prefix string) {
	r.Get(prefix+"/{id}", res.get)
	r.Patch(prefix+"/{id}", res.update)
	r.Delete(prefix+"/{id}", res.delete)
}

// storedOrNil returns rec when err says it was kept in memory.
func storedOrNil[T any](rec T, err error) any {
	if isPersistence(err) {
		return rec
	}
	return nil
}
