package httputil

import (
	"net/http"
	"time"
)

// Clients holds the outbound HTTP clients, one per collaborator. The
// datastore tolerates slower responses than the interactive lookup path.
type Clients struct {
	Datastore *http.Client // Supabase PostgREST
	Lookup    *http.Client // place lookup
}

func NewClients() *Clients {
	return &Clients{
		Datastore: &http.Client{Timeout: 30 * time.Second},
		Lookup:    &http.Client{Timeout: 15 * time.Second},
	}
}
