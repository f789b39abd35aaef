package models

import "time"

// Domain is a target platform the sessions log into.
type Domain struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	BaseURL   string    `json:"baseUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// Proxy is an egress proxy a session may be bound to.
type Proxy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
