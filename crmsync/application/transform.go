package application

import "crm-sync-gateway/crmsync/domain"

// Transform converte o snapshot no formato que um destino espera. Deve ser pura.
type Transform func(domain.Contact) domain.Record

// DefaultTransforms são as transformações dos destinos conhecidos.
func DefaultTransforms() map[string]Transform {
	return map[string]Transform{
		"salesforce": SalesforceRecord,
		"hubspot":    HubspotRecord,
	}
}

func baseRecord(c domain.Contact) domain.Record {
	return domain.Record{
		"email":      c.Email,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"company":    c.Company,
	}
}

// SalesforceRecord adiciona Account_Name e o campo customizado Status__c.
func SalesforceRecord(c domain.Contact) domain.Record {
	r := baseRecord(c)
	r["Account_Name"] = c.Company
	r["Status__c"] = c.Status.String()
	return r
}

// HubspotRecord deriva lifecyclestage do status.
func HubspotRecord(c domain.Contact) domain.Record {
	r := baseRecord(c)
	stage := "other"
	if c.Status == domain.StatusActive {
		stage = "customer"
	}
	r["lifecyclestage"] = stage
	return r
}
