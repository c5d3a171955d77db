package api

import (
	"github.com/starford/tramites/internal/tramite"
)

// TramiteDetail is a trámite with its child records.
type TramiteDetail struct {
	*tramite.Tramite
	Documentos     []*tramite.Documento    `json:"documentos"`
	Fechas         []*tramite.Fecha        `json:"fechas"`
	Estados        []*tramite.Estado       `json:"estados"`
	Habilitaciones []*tramite.Habilitacion `json:"habilitaciones"`
}

// StatusChangeRequest is the body of POST /tramites/{id}/estados.
type StatusChangeRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	Manual bool   `json:"manual"`
}

// RemovedResponse reports how many records a delete removed.
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// FechaStatusResponse is the derived status of one fecha.
type FechaStatusResponse struct {
	FechaID string `json:"fechaId"`
	Status  string `json:"status"`
}

// nonNil keeps empty lists serialized as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
