package handlers

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
)

// BindNestedOrFlat binds a JSON body to obj whether the payload wraps its
// fields under a resource key or sends them at the top level. The web
// dashboard posts {"loan": {...}} while integrations and older mobile
// builds post the fields flat, so both shapes must keep working.
func BindNestedOrFlat(c *gin.Context, key string, obj interface{}) error {
	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(c.Request.Body)
	}
	// Put the body back so later middleware or bindings can still read it
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err == nil {
		if nested, ok := wrapper[key]; ok {
			// The resource key is present, so the nested object is
			// authoritative even if it fails to bind
			return json.Unmarshal(nested, obj)
		}
	}

	return json.Unmarshal(body, obj)
}
