package tramite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/lifecycle"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/testutil"
)

func TestDocumento_Validate(t *testing.T) {
	d := &Documento{
		TramiteID:    "t1",
		Name:         "Recibo",
		Required:     "tal vez",
		ValidityDays: -1,
		Fields: []DataField{
			{Name: "numero", Label: "Número", Type: FieldText},
			{Name: "Numero", Label: "Otro", Type: "color"},
			{Label: "Sin nombre", Type: FieldDate},
		},
	}
	assert.Equal(t, []string{
		"Required must be one of: si, no",
		"Validity days must not be negative",
		"Field 2: Type must be one of: text, number, date, email, file, select",
		`Field 2: name "Numero" is repeated`,
		"Field 3: Name is required",
	}, d.Validate().Errors)
}

func TestDocumento_ValidityDaysAcceptsNumericString(t *testing.T) {
	svc, _ := newService(t)
	tr := createTramite(t, svc, "T1")
	d, err := svc.Documentos.Create(context.Background(), testutil.Patch(t, map[string]any{
		"tramiteId": tr.ID, "name": "Recibo", "validityDays": "30",
	}))
	require.NoError(t, err)
	assert.Equal(t, 30, d.ValidityDays)

	_, err = svc.Documentos.Create(context.Background(), testutil.Patch(t, map[string]any{
		"tramiteId": tr.ID, "name": "Foto", "validityDays": "treinta",
	}))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Messages(err), "validityDays: must be a number")
}

func TestDocumento_CloneCopiesFields(t *testing.T) {
	d := &Documento{Fields: []DataField{{Name: "a"}}}
	c := d.Clone()
	c.Fields[0].Name = "b"
	assert.Equal(t, "a", d.Fields[0].Name)
}

func TestCampo_DuplicateNamePerDocument(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p := map[string]any{"documentoId": "d1", "name": "cedula", "label": "Cédula", "type": "number"}
	_, err := svc.Campos.Create(ctx, testutil.Patch(t, p))
	require.NoError(t, err)
	_, err = svc.Campos.Create(ctx, testutil.Patch(t, p))
	require.ErrorIs(t, err, apperr.ErrDuplicate)

	p["documentoId"] = "d2"
	_, err = svc.Campos.Create(ctx, testutil.Patch(t, p))
	require.NoError(t, err)
}

func TestFecha_ValidateReportsEveryOrderingRule(t *testing.T) {
	f := &Fecha{
		TramiteID:        "t1",
		Start:            record.D(2025, 3, 1),
		End:              record.D(2025, 1, 1),
		RemediationStart: record.D(2025, 1, 1),
		RemediationEnd:   record.D(2024, 12, 1),
	}
	assert.Equal(t, []string{
		lifecycle.MsgPrimaryOrder,
		lifecycle.MsgRemediationOrder,
		lifecycle.MsgRemediationAfter,
	}, f.Validate().Errors)

	missing := (&Fecha{TramiteID: "t1", Start: record.D(2025, 1, 1)}).Validate()
	assert.Equal(t, []string{
		"End date is required",
		"Remediation start date is required",
		"Remediation end date is required",
	}, missing.Errors)
}

func TestEstado_Override(t *testing.T) {
	for _, tc := range []struct {
		estado Estado
		want   lifecycle.Override
	}{
		{Estado{Status: EstadoActive, Manual: record.Yes}, lifecycle.OverrideActive},
		{Estado{Status: EstadoInactive, Manual: record.Yes}, lifecycle.OverrideInactive},
		{Estado{Status: EstadoInactive, Manual: record.No}, lifecycle.OverrideNone},
		{Estado{Status: EstadoActive}, lifecycle.OverrideNone},
	} {
		assert.Equal(t, tc.want, tc.estado.Override(), "%+v", tc.estado)
	}
}

func TestHabilitacion_ChangeOnlyWhenToggled(t *testing.T) {
	prev := &Habilitacion{Period: "2025-1", Enabled: record.No}
	next := prev.Clone()
	next.Start = record.D(2025, 1, 1)
	kind, _ := next.Change(prev)
	assert.Equal(t, history.Kind(""), kind)

	next.Enabled = record.Yes
	kind, changes := next.Change(prev)
	assert.Equal(t, history.KindStatusChange, kind)
	assert.Equal(t, []history.FieldChange{{Field: "enabled", Old: "no", New: "si"}}, changes)
}

func TestHabilitacion_UpdateWithoutToggleKeepsNoHistory(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tr := createTramite(t, svc, "T1")
	h, err := svc.Habilitaciones.Create(ctx, testutil.Patch(t, map[string]any{
		"tramiteId": tr.ID, "period": "2025-1", "enabled": "no",
	}))
	require.NoError(t, err)

	h, err = svc.Habilitaciones.Update(ctx, h.ID, testutil.Patch(t, map[string]any{
		"start": "2025-01-10", "end": "2025-01-05",
	}), history.Meta{Actor: "ana"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Nil(t, h)

	h2, err := svc.Habilitaciones.Update(ctx, tr.ID, nil, history.Meta{})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, h2)
}
