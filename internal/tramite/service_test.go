package tramite

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/lifecycle"
	"github.com/starford/tramites/internal/storage"
	"github.com/starford/tramites/internal/testutil"
)

func newService(t *testing.T) (*Service, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(testutil.Day(2025, 1, 2))
	svc, err := Open(context.Background(), storage.NewMemory(), collection.WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

func createTramite(t *testing.T, svc *Service, code string) *Tramite {
	t.Helper()
	tr, err := svc.Tramites.Create(context.Background(), testutil.Patch(t, map[string]any{
		"name":     "Certificado " + code,
		"code":     code,
		"category": "grado",
	}))
	require.NoError(t, err)
	return tr
}

func createFecha(t *testing.T, svc *Service, tramiteID string, dates ...string) *Fecha {
	t.Helper()
	f, err := svc.Fechas.Create(context.Background(), testutil.Patch(t, map[string]any{
		"tramiteId":        tramiteID,
		"start":            dates[0],
		"end":              dates[1],
		"remediationStart": dates[2],
		"remediationEnd":   dates[3],
	}))
	require.NoError(t, err)
	return f
}

func TestTramite_CodeIsUnique(t *testing.T) {
	svc, _ := newService(t)
	createTramite(t, svc, "CERT-01")
	_, err := svc.Tramites.Create(context.Background(), testutil.Patch(t, map[string]any{
		"name": "Otro", "code": "cert-01",
	}))
	require.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestTramite_ValidationCollectsEveryRule(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Tramites.Create(context.Background(), testutil.Patch(t, map[string]any{
		"category":        "doctorado",
		"requiresPayment": "maybe",
	}))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.ElementsMatch(t, []string{
		"Name is required",
		"Code is required",
		"Category must be one of: grado, posgrado, general",
		"Requires payment must be one of: si, no",
	}, apperr.Messages(err))
}

func TestEstado_SecondActiveIsDuplicate(t *testing.T) {
	svc, _ := newService(t)
	tr := createTramite(t, svc, "T1")
	ctx := context.Background()
	active := testutil.Patch(t, map[string]any{"tramiteId": tr.ID, "status": "ACTIVE", "actor": "ana"})

	_, err := svc.Estados.Create(ctx, active)
	require.NoError(t, err)
	_, err = svc.Estados.Create(ctx, active)
	require.ErrorIs(t, err, apperr.ErrDuplicate)
	assert.Equal(t, 1, svc.Estados.Len())
}

func TestEstado_ChangedAtDefaultsToNow(t *testing.T) {
	svc, clock := newService(t)
	tr := createTramite(t, svc, "T1")
	e, err := svc.Estados.Create(context.Background(), testutil.Patch(t, map[string]any{
		"tramiteId": tr.ID, "status": "INACTIVE", "actor": "ana",
	}))
	require.NoError(t, err)
	assert.True(t, e.ChangedAt.Equal(clock.Now()))
}

func TestFecha_UpdateRejectsRemediationBeforeEnd(t *testing.T) {
	svc, _ := newService(t)
	tr := createTramite(t, svc, "T1")
	f := createFecha(t, svc, tr.ID, "2025-01-01", "2025-03-01", "2025-03-02", "2025-03-17")

	_, err := svc.Fechas.Update(context.Background(), f.ID,
		testutil.Patch(t, map[string]any{"remediationStart": "2025-03-01"}), history.Meta{Actor: "ana"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Messages(err), lifecycle.MsgRemediationAfter)

	got, ok := svc.Fechas.Get(f.ID)
	require.True(t, ok)
	assert.Equal(t, "2025-03-02", got.RemediationStart.String())
	assert.Equal(t, 0, got.History.Len())
}

func TestFecha_UpdateRecordsDateChange(t *testing.T) {
	svc, clock := newService(t)
	tr := createTramite(t, svc, "T1")
	f := createFecha(t, svc, tr.ID, "2025-01-01", "2025-03-01", "2025-03-02", "2025-03-17")

	clock.Advance(24 * time.Hour)
	got, err := svc.Fechas.Update(context.Background(), f.ID,
		testutil.Patch(t, map[string]any{"end": "2025-03-05", "remediationStart": "2025-03-06"}),
		history.Meta{Actor: "ana", Reason: "Prórroga"})
	require.NoError(t, err)

	entry, ok := got.History.MostRecent()
	require.True(t, ok)
	assert.Equal(t, history.KindDateChange, entry.Kind)
	assert.Equal(t, []history.FieldChange{
		{Field: "end", Old: "2025-03-01", New: "2025-03-05"},
		{Field: "remediationStart", Old: "2025-03-02", New: "2025-03-06"},
	}, entry.Changes)
	assert.Equal(t, "Prórroga", got.Audit().Reason)
}

func TestFecha_IdenticalBoundariesAreDuplicate(t *testing.T) {
	svc, _ := newService(t)
	tr := createTramite(t, svc, "T1")
	dates := []string{"2025-01-01", "2025-03-01", "2025-03-02", "2025-03-17"}
	createFecha(t, svc, tr.ID, dates...)

	_, err := svc.Fechas.Create(context.Background(), testutil.Patch(t, map[string]any{
		"tramiteId": tr.ID, "start": dates[0], "end": dates[1],
		"remediationStart": dates[2], "remediationEnd": dates[3],
	}))
	require.ErrorIs(t, err, apperr.ErrDuplicate)

	other := createTramite(t, svc, "T2")
	createFecha(t, svc, other.ID, dates...)
}

func TestService_Status(t *testing.T) {
	svc, _ := newService(t)
	tr := createTramite(t, svc, "T1")

	view, err := svc.Status(tr.ID, testutil.Day(2025, 3, 10))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusNoDates, view.Status)

	createFecha(t, svc, tr.ID, "2025-01-01", "2025-03-01", "2025-03-02", "2025-03-17")
	for _, tc := range []struct {
		now  time.Time
		want lifecycle.Status
	}{
		{testutil.Day(2024, 12, 1), lifecycle.StatusPending},
		{testutil.Day(2025, 2, 1), lifecycle.StatusActive},
		{testutil.Day(2025, 3, 10), lifecycle.StatusRemediation},
		{testutil.Day(2025, 4, 1), lifecycle.StatusFinished},
	} {
		view, err := svc.Status(tr.ID, tc.now)
		require.NoError(t, err)
		assert.Equal(t, tc.want, view.Status, "at %s", tc.now.Format(time.DateOnly))
	}

	view, err = svc.Status(tr.ID, testutil.Day(2025, 3, 10))
	require.NoError(t, err)
	require.NotNil(t, view.DaysLeft)
	assert.Equal(t, 7, *view.DaysLeft)

	_, err = svc.Status("missing", time.Now())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_ManualOverrideWins(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()
	tr := createTramite(t, svc, "T1")
	f := createFecha(t, svc, tr.ID, "2025-01-01", "2025-03-01", "2025-03-02", "2025-03-17")

	_, err := svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoInactive, Actor: "ana", Manual: true})
	require.NoError(t, err)

	view, err := svc.Status(tr.ID, testutil.Day(2025, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusInactive, view.Status)
	assert.Equal(t, lifecycle.OverrideInactive, view.Override)
	assert.Nil(t, view.DaysLeft)

	st, err := svc.FechaStatus(f.ID, testutil.Day(2025, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusInactive, st)

	clock.Advance(time.Hour)
	_, err = svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive, Actor: "ana", Manual: true})
	require.NoError(t, err)
	view, err = svc.Status(tr.ID, testutil.Day(2025, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusActive, view.Status)
}

func TestService_ManualOverrideSameInstant(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2025, 1, 2, 10, 15, 30, 123456789, time.UTC))
	svc, err := Open(ctx, mem, collection.WithClock(clock.Now))
	require.NoError(t, err)
	tr := createTramite(t, svc, "T1")
	createFecha(t, svc, tr.ID, "2025-01-01", "2025-03-01", "2025-03-02", "2025-03-17")

	_, err = svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoInactive, Actor: "ana", Manual: true})
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive, Actor: "ana", Manual: true})
	require.NoError(t, err)

	view, err := svc.Status(tr.ID, testutil.Day(2025, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.OverrideActive, view.Override)
	assert.Equal(t, lifecycle.StatusActive, view.Status)

	// The latest change still wins after the collections are read back.
	reopened, err := Open(ctx, mem)
	require.NoError(t, err)
	view, err = reopened.Status(tr.ID, testutil.Day(2025, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.OverrideActive, view.Override)
	assert.Equal(t, lifecycle.StatusActive, view.Status)
}

func TestService_ChangeStatusDeactivatesPrevious(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()
	tr := createTramite(t, svc, "T1")

	first, err := svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive, Actor: "ana", Reason: "apertura"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive, Actor: "luis", Reason: "reapertura"})
	require.NoError(t, err)

	prev, ok := svc.Estados.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, EstadoInactive, prev.Status)
	entry, ok := prev.History.MostRecent()
	require.True(t, ok)
	assert.Equal(t, history.KindStatusChange, entry.Kind)
	assert.Equal(t, "luis", entry.Actor)

	assert.Equal(t, EstadoActive, second.Status)
	assert.Len(t, svc.Estados.Filter(func(e *Estado) bool { return e.Status == EstadoActive }), 1)

	assert.Len(t, collection.ByReason(svc.Estados.All(), "APERTURA"), 2)
	assert.Len(t, collection.ByActor(svc.Estados.All(), "luis"), 1)
}

func TestService_ChangeStatusValidatesFirst(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tr := createTramite(t, svc, "T1")
	_, err := svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive, Actor: "ana"})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, svc.Estados.Filter(func(e *Estado) bool { return e.Status == EstadoActive }), 1)

	_, err = svc.ChangeStatus(ctx, "missing", StatusChange{Status: EstadoActive, Actor: "ana"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_Attention(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	expired := createTramite(t, svc, "T1")
	closing := createTramite(t, svc, "T2")
	incomplete := createTramite(t, svc, "T3")
	calm := createTramite(t, svc, "T4")

	createFecha(t, svc, expired.ID, "2025-01-01", "2025-02-01", "2025-02-02", "2025-02-15")
	createFecha(t, svc, closing.ID, "2025-03-01", "2025-03-13", "2025-03-20", "2025-03-30")
	createFecha(t, svc, calm.ID, "2025-03-01", "2025-05-01", "2025-05-02", "2025-05-15")
	raw := []byte(`[{"id":"legacy","tramiteId":"` + incomplete.ID + `","start":"2025-01-01"}]`)
	report, err := svc.Fechas.Import(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped, "incomplete fechas are rejected on import")

	items := svc.Attention(testutil.Day(2025, 3, 10), 0)
	require.Len(t, items, 2)
	assert.Equal(t, PriorityHigh, items[0].Priority)
	assert.Equal(t, expired.ID, items[0].TramiteID)
	assert.Equal(t, lifecycle.StatusFinished, items[0].Status)
	assert.Equal(t, PriorityMedium, items[1].Priority)
	assert.Equal(t, closing.ID, items[1].TramiteID)
	require.NotNil(t, items[1].DaysLeft)
	assert.Equal(t, 3, *items[1].DaysLeft)

	// A wider window picks up the calm trámite too.
	items = svc.Attention(testutil.Day(2025, 3, 10), 60*24*time.Hour)
	assert.Len(t, items, 3)
}

func TestService_AttentionClosingToday(t *testing.T) {
	svc, _ := newService(t)
	tr := createTramite(t, svc, "T1")
	createFecha(t, svc, tr.ID, "2025-03-01", "2025-03-10", "2025-03-20", "2025-03-30")

	items := svc.Attention(testutil.Day(2025, 3, 10), 0)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].DaysLeft)
	assert.Equal(t, 0, *items[0].DaysLeft)

	b, err := json.Marshal(items[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"daysLeft":0`)
}

func TestService_AttentionFlagsIncompleteDates(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, KeyFechas, []json.RawMessage{
		json.RawMessage(`{"id":"f1","tramiteId":"t1","start":"2025-01-01"}`),
	}))
	svc, err := Open(ctx, mem)
	require.NoError(t, err)

	items := svc.Attention(testutil.Day(2025, 3, 10), 0)
	require.Len(t, items, 1)
	assert.Equal(t, PriorityLow, items[0].Priority)
	assert.Equal(t, lifecycle.StatusNoDates, items[0].Status)
	assert.Equal(t, "Incomplete dates: end, remediationStart, remediationEnd", items[0].Reason)
}

func TestService_EnabledFor(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a := createTramite(t, svc, "A")
	b := createTramite(t, svc, "B")

	for _, p := range []map[string]any{
		{"tramiteId": a.ID, "period": "2025-1", "enabled": "si"},
		{"tramiteId": b.ID, "period": "2025-1", "enabled": "no"},
		{"tramiteId": b.ID, "period": "2025-2", "enabled": "si"},
	} {
		_, err := svc.Habilitaciones.Create(ctx, testutil.Patch(t, p))
		require.NoError(t, err)
	}

	got := svc.EnabledFor("2025-1")
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	_, err := svc.Habilitaciones.Create(ctx, testutil.Patch(t, map[string]any{
		"tramiteId": a.ID, "period": "2025-1", "enabled": "no",
	}))
	require.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = svc.Habilitaciones.Create(ctx, testutil.Patch(t, map[string]any{
		"tramiteId": a.ID, "period": "2025-3",
	}))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Messages(err), "Period must look like YYYY-1 or YYYY-2")
}

func TestService_DeleteTramiteCascades(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	report, err := svc.Seed(ctx, 2, 2, rand.New(rand.NewPCG(7, 8)))
	require.NoError(t, err)
	require.Equal(t, 2, report[KeyTramites])

	victim := svc.Tramites.All()[0]
	docs := svc.Documentos.ByOwner(victim.ID)
	require.Len(t, docs, 2)

	n, err := svc.DeleteTramite(ctx, victim.ID)
	require.NoError(t, err)
	// trámite + 2 documentos + 4 campos + 2 fechas + 1 estado + 2 habilitaciones
	assert.Equal(t, 12, n)

	for _, d := range docs {
		assert.Empty(t, svc.Campos.ByOwner(d.ID))
	}
	assert.Empty(t, svc.Fechas.ByOwner(victim.ID))
	assert.Equal(t, 1, svc.Tramites.Len())

	n, err = svc.DeleteTramite(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_ExportImportRoundTrip(t *testing.T) {
	src, _ := newService(t)
	ctx := context.Background()
	_, err := src.Seed(ctx, 2, 2, rand.New(rand.NewPCG(9, 10)))
	require.NoError(t, err)
	tr := src.Tramites.All()[1]

	bundle, err := src.Export(tr.ID)
	require.NoError(t, err)
	assert.Len(t, bundle.Tramites, 1)
	assert.Len(t, bundle.Campos, 4)

	dst, _ := newService(t)
	report, err := dst.Import(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, collection.ImportReport{Imported: 1}, report[KeyTramites])
	assert.Equal(t, collection.ImportReport{Imported: 4}, report[KeyCampos])
	assert.Equal(t, collection.ImportReport{Imported: 2}, report[KeyFechas])

	got, err := dst.Tramite(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.Code, got.Code)
	assert.True(t, tr.CreatedAt.Equal(got.CreatedAt))

	// Children of unknown trámites are skipped.
	orphan := Bundle{Fechas: bundle.Fechas}
	fresh, _ := newService(t)
	report, err = fresh.Import(ctx, orphan)
	require.NoError(t, err)
	assert.Equal(t, collection.ImportReport{Skipped: 2}, report[KeyFechas])
}

func TestService_ExportImportKeepsChangedAt(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2025, 3, 10, 10, 15, 30, 123456789, time.UTC))
	src, err := Open(ctx, storage.NewMemory(), collection.WithClock(clock.Now))
	require.NoError(t, err)
	tr := createTramite(t, src, "T1")
	e, err := src.ChangeStatus(ctx, tr.ID, StatusChange{Status: EstadoActive, Actor: "ana"})
	require.NoError(t, err)

	bundle, err := src.Export(tr.ID)
	require.NoError(t, err)
	dst, _ := newService(t)
	_, err = dst.Import(ctx, bundle)
	require.NoError(t, err)

	got, ok := dst.Estados.Get(e.ID)
	require.True(t, ok)
	assert.True(t, e.ChangedAt.Equal(got.ChangedAt.Time), "changedAt %v, want %v", got.ChangedAt, e.ChangedAt)
	assert.True(t, e.ModifiedAt.Equal(got.ModifiedAt))
}

func TestService_ExportUnknownTramite(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Export("missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_ReloadUnknownKey(t *testing.T) {
	svc, _ := newService(t)
	require.Error(t, svc.Reload(context.Background(), "nope"))
	require.NoError(t, svc.Reload(context.Background(), KeyFechas))
}

func TestService_DeleteDocumentoCascades(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Seed(ctx, 1, 3, rand.New(rand.NewPCG(11, 12)))
	require.NoError(t, err)
	doc := svc.Documentos.All()[0]

	n, err := svc.DeleteDocumento(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, svc.Documentos.Len())
	assert.Equal(t, 6, svc.Campos.Len())
}
