package exchangeapi

import (
	"fmt"

	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
)

// Registry dispatches on the source tag to the client of each exchange.
type Registry struct {
	clients map[institution.Source]exchange.Client
}

func NewRegistry(clients ...exchange.Client) *Registry {
	r := &Registry{clients: make(map[institution.Source]exchange.Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Source()] = c
	}
	return r
}

func (r *Registry) Client(source institution.Source) (exchange.Client, error) {
	c, ok := r.clients[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnsupportedSource, source)
	}
	return c, nil
}

// Sources lists registered sources in institution.Sources order.
func (r *Registry) Sources() []institution.Source {
	var out []institution.Source
	for _, s := range institution.Sources {
		if _, ok := r.clients[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
