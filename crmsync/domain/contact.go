package domain

import (
	"context"
	"strconv"
)

// Status do contato. É um conjunto fechado; valores desconhecidos não casam
// com nenhuma condição de regra.
type Status int

const (
	StatusActive Status = iota
	StatusInactive
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func ParseStatus(v string) (Status, bool) {
	switch v {
	case "active":
		return StatusActive, true
	case "inactive":
		return StatusInactive, true
	case "deleted":
		return StatusDeleted, true
	default:
		return 0, false
	}
}

// Contact é o snapshot imutável do contato no momento do evento.
// As regras avaliam apenas este snapshot, nunca o estado mutável do store.
type Contact struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Company   string
	Status    Status
}

// Attribute retorna um atributo opcional pelo nome (ex: "company").
func (c Contact) Attribute(name string) string {
	switch name {
	case "company", "account":
		return c.Company
	case "email":
		return c.Email
	case "first_name":
		return c.FirstName
	case "last_name":
		return c.LastName
	default:
		return ""
	}
}

func (c Contact) ExternalID() string { return strconv.FormatInt(c.ID, 10) }

// ContactSource é o colaborador externo que devolve o snapshot atual do contato.
// Deve retornar ErrEntityNotFound quando o contato não existe mais.
type ContactSource interface {
	Contact(ctx context.Context, id int64) (Contact, error)
}
