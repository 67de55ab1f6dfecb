package rules

import (
	"strings"

	"crm-sync-gateway/crmsync/domain"
)

// Condition é uma variante fechada: só os tipos deste pacote a implementam.
type Condition interface {
	Tag() string
	condition()
}

type (
	Always        struct{}
	Never         struct{}
	ActiveOnly    struct{}
	DeletedStatus struct{}
	// HasAttribute é verdadeira quando o atributo nomeado não está vazio.
	HasAttribute struct{ Attribute string }
	// Unknown guarda uma tag não reconhecida; sempre avalia false.
	Unknown struct{ Raw string }
)

func (Always) condition()        {}
func (Never) condition()         {}
func (ActiveOnly) condition()    {}
func (DeletedStatus) condition() {}
func (HasAttribute) condition()  {}
func (Unknown) condition()       {}

func (Always) Tag() string         { return "always" }
func (Never) Tag() string          { return "never" }
func (ActiveOnly) Tag() string     { return "active_only" }
func (DeletedStatus) Tag() string  { return "deleted_status" }
func (c HasAttribute) Tag() string { return "has_" + c.Attribute }
func (c Unknown) Tag() string      { return c.Raw }

// ParseCondition converte a tag textual. "has_<attr>" vira HasAttribute{attr}.
func ParseCondition(tag string) Condition {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch t {
	case "always":
		return Always{}
	case "never":
		return Never{}
	case "active_only":
		return ActiveOnly{}
	case "deleted_status":
		return DeletedStatus{}
	}
	if attr, ok := strings.CutPrefix(t, "has_"); ok && attr != "" {
		return HasAttribute{Attribute: attr}
	}
	return Unknown{Raw: tag}
}

// Holds avalia a condição contra o snapshot.
func Holds(c Condition, contact domain.Contact) bool {
	switch c := c.(type) {
	case Always:
		return true
	case ActiveOnly:
		return contact.Status == domain.StatusActive
	case DeletedStatus:
		return contact.Status == domain.StatusDeleted
	case HasAttribute:
		return strings.TrimSpace(contact.Attribute(c.Attribute)) != ""
	default:
		// Never, Unknown e nil
		return false
	}
}
