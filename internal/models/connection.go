package models

import (
	"fmt"
	"strings"
)

// Backend selects how a Panorama connection talks to the device.
const (
	BackendREST   = "rest"
	BackendXMLAPI = "xmlapi"
)

// Connection describes a Panorama management endpoint.
type Connection struct {
	Host        string `json:"host"`
	Port        int    `json:"port,omitempty"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	APIKey      string `json:"-"`
	Backend     string `json:"backend"`      // "rest" or "xmlapi"
	RESTVersion string `json:"rest_version"` // "v10.1", detected when empty
	Insecure    bool   `json:"insecure"`     // skip TLS verification
}

// BaseURL returns the full base URL for this connection.
func (c *Connection) BaseURL() string {
	host := strings.TrimSuffix(strings.TrimPrefix(c.Host, "https://"), "/")
	if c.Port == 0 || c.Port == 443 {
		return fmt.Sprintf("https://%s", host)
	}
	return fmt.Sprintf("https://%s:%d", host, c.Port)
}

// RESTPrefix returns the REST API path prefix, e.g. "/restapi/v10.1/".
func (c *Connection) RESTPrefix() string {
	v := c.RESTVersion
	if v == "" {
		v = "v10.1"
	}
	return "/restapi/" + v + "/"
}

// MaskedPassword returns a fixed-width mask for display.
func (c *Connection) MaskedPassword() string {
	if c.Password == "" {
		return ""
	}
	return "••••••••"
}
