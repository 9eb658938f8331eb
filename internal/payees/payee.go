package payees

import (
	"github.com/google/uuid"
)

// UnknownName is shown for payees missing from the directory.
const UnknownName = "Unknown payee"

// Payee is an entity entitled to royalty payments.
type Payee struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	Name          string     `json:"name"`
	AgreementID   *uuid.UUID `json:"agreement_id,omitempty"`
	AgreementName string     `json:"agreement_name,omitempty"`
}

// Directory resolves payee ids to display details.
type Directory map[uuid.UUID]Payee

// NewDirectory indexes the payees by id.
func NewDirectory(list []Payee) Directory {
	dir := make(Directory, len(list))
	for _, p := range list {
		dir[p.ID] = p
	}
	return dir
}

// Name returns the payee name or UnknownName.
func (d Directory) Name(id uuid.UUID) string {
	if p, ok := d[id]; ok && p.Name != "" {
		return p.Name
	}
	return UnknownName
}

// Agreement returns the agreement name, empty when unknown.
func (d Directory) Agreement(id uuid.UUID) string {
	if p, ok := d[id]; ok {
		return p.AgreementName
	}
	return ""
}
