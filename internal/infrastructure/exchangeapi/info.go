package exchangeapi

import (
	"balance/internal/domain/credential"
	"balance/internal/domain/institution"
)

// Field is a credential input the user fills in to connect an exchange.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Info describes how an exchange is presented and connected.
type Info struct {
	Source   institution.Source `json:"source"`
	Name     string             `json:"name"`
	URL      string             `json:"url"`
	AuthKind credential.Kind    `json:"authKind"`
	Fields   []Field            `json:"fields,omitempty"`
}

// Describer is implemented by clients that expose their Info.
type Describer interface {
	Info() Info
}

// Infos returns the Info of every registered client that has one.
func (r *Registry) Infos() []Info {
	var out []Info
	for _, s := range r.Sources() {
		if d, ok := r.clients[s].(Describer); ok {
			out = append(out, d.Info())
		}
	}
	return out
}
